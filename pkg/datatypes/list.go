// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datatypes

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

const maxListLength = 1 << 20

// CborItem is a value which can be written to and read from CBOR through its pointer type.
type CborItem[T any] interface {
	*T
	cboring.CborMarshaler
}

// WriteList writes a CBOR array of items.
func WriteList[T any, P CborItem[T]](items []T, w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(items)), w); err != nil {
		return err
	}
	for i := range items {
		if err := P(&items[i]).MarshalCbor(w); err != nil {
			return err
		}
	}
	return nil
}

// ReadList reads a CBOR array of items written by WriteList.
func ReadList[T any, P CborItem[T]](r io.Reader) ([]T, error) {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}

	if l > maxListLength {
		return nil, fmt.Errorf("list length %d exceeds %d", l, maxListLength)
	}

	items := make([]T, l)
	for i := range items {
		if err := P(&items[i]).UnmarshalCbor(r); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// CborSize is the length of an item's CBOR encoding.
func CborSize[T any, P CborItem[T]](item T) int {
	var buf bytes.Buffer
	if err := P(&item).MarshalCbor(&buf); err != nil {
		return -1
	}
	return buf.Len()
}
