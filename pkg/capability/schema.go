// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capability

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Schema maps recognized capability names to their expected Kind.
type Schema map[string]Kind

// Recognized checks if a name is part of this Schema.
func (sc Schema) Recognized(name string) bool {
	_, ok := sc[name]
	return ok
}

// Check a Set against this Schema. Every recognized capability of another kind is reported, all violations are
// returned together. Unknown capabilities are ignored. Negative integers are rejected, as all integer
// capabilities are either periods or sizes.
func (sc Schema) Check(s *Set) (errs error) {
	for _, name := range s.Names() {
		expected, ok := sc[name]
		if !ok {
			continue
		}

		v := s.Get(name)
		if v.Kind() != expected {
			errs = multierror.Append(errs,
				fmt.Errorf("capability %s has kind %v, expected %v", name, v.Kind(), expected))
			continue
		}
		if n, ok := v.AsInt(); ok && n < 0 {
			errs = multierror.Append(errs, fmt.Errorf("capability %s is negative: %d", name, n))
		}
	}
	return
}

var (
	protocolSchemasMutex sync.RWMutex
	protocolSchemas      = make(map[int32]Schema)
)

// RegisterProtocolSchema registers the recognized capabilities of a protocol. A later registration for the same
// protocol extends the former one.
func RegisterProtocolSchema(protocol int32, schema Schema) {
	protocolSchemasMutex.Lock()
	defer protocolSchemasMutex.Unlock()

	merged, ok := protocolSchemas[protocol]
	if !ok {
		merged = make(Schema)
	}
	for name, kind := range schema {
		merged[name] = kind
	}
	protocolSchemas[protocol] = merged
}

// ProtocolSchema returns the registered Schema of a protocol, which might be empty.
func ProtocolSchema(protocol int32) Schema {
	protocolSchemasMutex.RLock()
	defer protocolSchemasMutex.RUnlock()

	schema := make(Schema)
	for name, kind := range protocolSchemas[protocol] {
		schema[name] = kind
	}
	return schema
}
