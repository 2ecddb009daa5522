// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"strings"
)

// Flags of a message Header.
type Flags uint8

const (
	// FlagMultiPart marks a message as one part of a logical message.
	FlagMultiPart Flags = 0x01

	// FlagFinalPart marks the last message of a logical exchange.
	FlagFinalPart Flags = 0x02

	// FlagNoData marks a response without any data.
	FlagNoData Flags = 0x04

	// FlagCompressed marks a compressed body.
	FlagCompressed Flags = 0x08

	// FlagAcknowledge requests an Acknowledge message.
	FlagAcknowledge Flags = 0x10

	// FlagHeaderExtension marks a message carrying an Extension after its Header.
	FlagHeaderExtension Flags = 0x20

	// FlagHistoricalRange marks historical data in the streaming protocols.
	FlagHistoricalRange Flags = 0x40
)

// Has checks if all bits of other are set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

func (f Flags) String() string {
	var names []string
	for _, flag := range []struct {
		f    Flags
		name string
	}{
		{FlagMultiPart, "MULTI_PART"},
		{FlagFinalPart, "FINAL_PART"},
		{FlagNoData, "NO_DATA"},
		{FlagCompressed, "COMPRESSED"},
		{FlagAcknowledge, "ACKNOWLEDGE"},
		{FlagHeaderExtension, "HEADER_EXTENSION"},
		{FlagHistoricalRange, "HISTORICAL_RANGE"},
	} {
		if f.Has(flag.f) {
			names = append(names, flag.name)
		}
	}
	return strings.Join(names, ",")
}
