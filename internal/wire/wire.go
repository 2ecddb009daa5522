// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire contains small CBOR helpers on top of cboring which are shared by the message bodies.
package wire

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// ZigZag maps a signed integer onto an unsigned one, keeping small magnitudes small.
func ZigZag(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

// UnZigZag reverses ZigZag.
func UnZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// WriteInt writes a signed integer as a zigzag encoded CBOR unsigned integer.
func WriteInt(n int64, w io.Writer) error {
	return cboring.WriteUInt(ZigZag(n), w)
}

// ReadInt reads a signed integer written by WriteInt.
func ReadInt(r io.Reader) (int64, error) {
	u, err := cboring.ReadUInt(r)
	if err != nil {
		return 0, err
	}
	return UnZigZag(u), nil
}

// WriteOptionalInt writes an optional integer as a CBOR array of length zero or one.
func WriteOptionalInt(n *int64, w io.Writer) error {
	if n == nil {
		return cboring.WriteArrayLength(0, w)
	}
	if err := cboring.WriteArrayLength(1, w); err != nil {
		return err
	}
	return WriteInt(*n, w)
}

// ReadOptionalInt reads an optional integer written by WriteOptionalInt.
func ReadOptionalInt(r io.Reader) (*int64, error) {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}
	switch l {
	case 0:
		return nil, nil
	case 1:
		n, err := ReadInt(r)
		if err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("optional integer has array length %d", l)
	}
}

// WriteStrings writes a list of strings as a CBOR array of text strings.
func WriteStrings(ss []string, w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(ss)), w); err != nil {
		return err
	}
	for _, s := range ss {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	return nil
}

// ReadStrings reads a list of strings written by WriteStrings.
func ReadStrings(r io.Reader) ([]string, error) {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}
	ss := make([]string, 0, l)
	for i := uint64(0); i < l; i++ {
		s, err := cboring.ReadTextString(r)
		if err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	return ss, nil
}

// ExpectArrayLength reads a CBOR array header and compares it against the expected length.
func ExpectArrayLength(expected uint64, r io.Reader) error {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if l != expected {
		return fmt.Errorf("expected array with length %d, got %d", expected, l)
	}
	return nil
}
