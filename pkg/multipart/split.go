// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multipart

import (
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

// Split partitions items into ordered chunks. The summed size of each chunk's items does not exceed budget. An
// empty input results in exactly one empty chunk, as a response is always sent. An item larger than the budget on
// its own fails the whole split, such that nothing gets sent.
func Split[T any](items []T, budget int, sizeOf func(T) int) ([][]T, error) {
	if budget <= 0 {
		return nil, protoerr.Limit(protoerr.CodeMaxSizeExceeded, "part budget of %d bytes leaves no room for items", budget)
	}

	if len(items) == 0 {
		return [][]T{{}}, nil
	}

	var (
		chunks    [][]T
		start     int
		chunkSize int
	)

	for i, item := range items {
		size := sizeOf(item)
		if size < 0 {
			return nil, protoerr.Limit(protoerr.CodeInvalidArgument, "item %d cannot be sized", i)
		}
		if size > budget {
			return nil, protoerr.Limit(protoerr.CodeMaxSizeExceeded,
				"item %d has %d bytes, exceeding the part budget of %d bytes", i, size, budget)
		}

		if chunkSize+size > budget && i > start {
			chunks = append(chunks, items[start:i:i])
			start, chunkSize = i, 0
		}
		chunkSize += size
	}
	chunks = append(chunks, items[start:])

	return chunks, nil
}

// PartFlags returns the flags of the i-th of n parts of one logical message. A single part only carries
// FlagFinalPart; multiple parts all carry FlagMultiPart and the last one additionally FlagFinalPart.
func PartFlags(i, n int) msgs.Flags {
	switch {
	case n <= 1:
		return msgs.FlagFinalPart
	case i == n-1:
		return msgs.FlagMultiPart | msgs.FlagFinalPart
	default:
		return msgs.FlagMultiPart
	}
}
