// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

// Roles of the endpoints of a protocol.
const (
	RoleStore    = "store"
	RoleCustomer = "customer"
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// Counterpart returns the role paired with the given role, or an empty string for unknown roles.
func Counterpart(role string) string {
	switch role {
	case RoleStore:
		return RoleCustomer
	case RoleCustomer:
		return RoleStore
	case RoleProducer:
		return RoleConsumer
	case RoleConsumer:
		return RoleProducer
	default:
		return ""
	}
}
