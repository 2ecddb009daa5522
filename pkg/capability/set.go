// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dtn7/cboring"
)

// ErrFrozen is returned when modifying a frozen Set.
var ErrFrozen = errors.New("capability set is frozen")

// Set maps capability names to Values. A Set is safe for concurrent use. After Freeze, a Set is immutable.
type Set struct {
	mu     sync.RWMutex
	values map[string]Value
	frozen bool
}

// NewSet creates an empty, mutable Set.
func NewSet() *Set {
	return &Set{values: make(map[string]Value)}
}

// Set a capability. Setting an absent Value removes the capability.
func (s *Set) Set(name string, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}
	if s.values == nil {
		s.values = make(map[string]Value)
	}

	if v.IsAbsent() {
		delete(s.values, name)
	} else {
		s.values[name] = v
	}
	return nil
}

// Get a capability's Value, which is absent for unknown names.
func (s *Set) Get(name string) Value {
	if s == nil {
		return Absent()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[name]
}

// Int returns an integer capability. A missing capability or one of another kind results in false.
func (s *Set) Int(name string) (int64, bool) {
	return s.Get(name).AsInt()
}

// Bool returns a boolean capability. A missing capability or one of another kind results in false.
func (s *Set) Bool(name string) (bool, bool) {
	return s.Get(name).AsBool()
}

// Strings returns a string list capability. A missing capability or one of another kind results in false.
func (s *Set) Strings(name string) ([]string, bool) {
	return s.Get(name).AsStrings()
}

// Names of all present capabilities, sorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len is the amount of present capabilities.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}

// Freeze this Set. Further calls to Set will fail.
func (s *Set) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen checks if this Set was frozen.
func (s *Set) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.frozen
}

// Clone creates a mutable copy.
func (s *Set) Clone() *Set {
	c := NewSet()
	if s == nil {
		return c
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, v := range s.values {
		c.values[name] = v
	}
	return c
}

// Merge creates a new, frozen Set of this Set's values overlaid by other's present values.
func (s *Set) Merge(other *Set) *Set {
	m := s.Clone()

	if other != nil {
		other.mu.RLock()
		for name, v := range other.values {
			m.values[name] = v
		}
		other.mu.RUnlock()
	}

	m.Freeze()
	return m
}

func (s *Set) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fmt.Sprintf("%v", s.values)
}

// MarshalJSON writes an object of capability names to DataValues.
func (s *Set) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return json.Marshal(s.values)
}

// UnmarshalJSON reads an object of capability names to DataValues. Absent entries are skipped.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values map[string]Value
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]Value, len(values))
	for name, v := range values {
		if !v.IsAbsent() {
			s.values[name] = v
		}
	}
	return nil
}

// MarshalCbor writes a CBOR map of capability names to Values, sorted by name.
func (s *Set) MarshalCbor(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := cboring.WriteMapPairLength(uint64(len(names)), w); err != nil {
		return err
	}
	for _, name := range names {
		if err := cboring.WriteTextString(name, w); err != nil {
			return err
		}
		if err := s.values[name].MarshalCbor(w); err != nil {
			return fmt.Errorf("capability %s: %w", name, err)
		}
	}
	return nil
}

// UnmarshalCbor reads a CBOR map written by MarshalCbor.
func (s *Set) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadMapPairLength(r)
	if err != nil {
		return err
	}

	values := make(map[string]Value, l)
	for i := uint64(0); i < l; i++ {
		name, err := cboring.ReadTextString(r)
		if err != nil {
			return err
		}

		var v Value
		if err := cboring.Unmarshal(&v, r); err != nil {
			return fmt.Errorf("capability %s: %w", name, err)
		}
		if !v.IsAbsent() {
			values[name] = v
		}
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}
