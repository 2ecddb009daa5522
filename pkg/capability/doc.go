// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package capability implements the capability store and the negotiation of effective limits between two ETP
// endpoints.
//
// A Set maps capability names to optional Values, which are either absent, an integer, a boolean or a string
// list. Typed getters fail closed: asking for an integer which is stored as a boolean yields nothing. Each
// endpoint sends its endpoint Set and one Set per protocol during the session's negotiation. The Negotiated type
// freezes both sides' Sets and derives the effective value of a capability: the minimum for integers, the
// conjunction for booleans. An absent capability stays absent; only Limits falls back to defaults.
package capability
