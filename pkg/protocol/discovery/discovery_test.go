// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"fmt"
	"testing"

	"github.com/openetp/etp-go/internal/etptest"
	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

type fakeSource struct {
	resources []datatypes.Resource
	edges     []datatypes.Edge
	deleted   []datatypes.DeletedResource
}

func (fs *fakeSource) Resources(_ context.Context, query *GetResources) ([]datatypes.Resource, []datatypes.Edge, error) {
	if query.Context.URI != "eml:///" {
		return nil, nil, protoerr.Violation(protoerr.CodeNotFound, "unknown URI %s", query.Context.URI)
	}
	return fs.resources, fs.edges, nil
}

func (fs *fakeSource) DeletedResources(_ context.Context, _ *GetDeletedResources) ([]datatypes.DeletedResource, error) {
	return fs.deleted, nil
}

func newFakeSource(n int) *fakeSource {
	fs := &fakeSource{}
	for i := 0; i < n; i++ {
		uri := fmt.Sprintf("eml:///witsml20.Well(%04d)", i)
		fs.resources = append(fs.resources, datatypes.Resource{URI: uri, Name: fmt.Sprintf("well %d", i)})
		fs.edges = append(fs.edges, datatypes.Edge{SourceURI: "eml:///", TargetURI: uri, RelationshipKind: "Primary"})
		fs.deleted = append(fs.deleted, datatypes.DeletedResource{URI: uri, DeletedTime: int64(i), DataObjectType: "witsml20.Well"})
	}
	return fs
}

func discoveryPair(t *testing.T, enc msgs.Encoding, store *Store, maxPartSize int64) *Customer {
	conf := etptest.Conf(enc)
	conf.Capabilities.MaxPartSize = &maxPartSize

	customer, _ := etptest.Pair(t, conf, conf, DeclareCustomer, store.Attach)
	return NewCustomer(customer)
}

func TestDiscoveryGetResources(t *testing.T) {
	tests := []struct {
		name string
		enc  msgs.Encoding
	}{
		{"binary", msgs.EncodingBinary},
		{"json", msgs.EncodingJSON},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			source := newFakeSource(150)
			customer := discoveryPair(t, test.enc, NewStore(source, 0), 2048)

			resources, edges, err := customer.GetResources(etptest.Context(t), &GetResources{
				Context:      ContextInfo{URI: "eml:///", Depth: 1},
				Scope:        ScopeTargets,
				IncludeEdges: true,
			})
			if err != nil {
				t.Fatal(err)
			}

			if len(resources) != len(source.resources) {
				t.Fatalf("expected %d resources, got %d", len(source.resources), len(resources))
			}
			for i := range resources {
				if resources[i].URI != source.resources[i].URI {
					t.Fatalf("resource %d: expected %s, got %s", i, source.resources[i].URI, resources[i].URI)
				}
			}
			if len(edges) != len(source.edges) {
				t.Fatalf("expected %d edges, got %d", len(source.edges), len(edges))
			}
		})
	}
}

func TestDiscoveryResponseParts(t *testing.T) {
	source := newFakeSource(100)
	customer := discoveryPair(t, msgs.EncodingBinary, NewStore(source, 0), 1024)

	call, err := customer.session.Request(Protocol, &GetResources{
		Context:      ContextInfo{URI: "eml:///"},
		IncludeEdges: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	parts, err := call.Wait(etptest.Context(t))
	if err != nil {
		t.Fatal(err)
	}

	if len(parts) < 3 {
		t.Fatalf("expected a multi-part response, got %d parts", len(parts))
	}

	seenEdges := false
	for i, part := range parts {
		switch part.Body.(type) {
		case *GetResourcesResponse:
			if seenEdges {
				t.Fatalf("part %d: resources after edges", i)
			}
		case *GetResourcesEdgesResponse:
			seenEdges = true
		default:
			t.Fatalf("part %d: unexpected %T", i, part.Body)
		}

		if final := part.Header.IsFinalPart(); final != (i == len(parts)-1) {
			t.Fatalf("part %d: final flag is %t", i, final)
		}
		if part.Header.CorrelationID != call.Header.MessageID {
			t.Fatalf("part %d: correlation %d, expected %d", i, part.Header.CorrelationID, call.Header.MessageID)
		}
	}
	if !seenEdges {
		t.Fatal("no edges were received")
	}
}

func TestDiscoveryWithoutEdges(t *testing.T) {
	source := newFakeSource(10)
	customer := discoveryPair(t, msgs.EncodingBinary, NewStore(source, 0), 4096)

	resources, edges, err := customer.GetResources(etptest.Context(t), &GetResources{
		Context: ContextInfo{URI: "eml:///"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resources) != 10 || len(edges) != 0 {
		t.Fatalf("expected 10 resources and no edges, got %d and %d", len(resources), len(edges))
	}
}

func TestDiscoveryErrors(t *testing.T) {
	source := newFakeSource(20)
	customer := discoveryPair(t, msgs.EncodingBinary, NewStore(source, 5), 4096)

	tests := []struct {
		name  string
		query *GetResources
		code  protoerr.Code
	}{
		{"unknown uri", &GetResources{Context: ContextInfo{URI: "eml:///nope"}}, protoerr.CodeNotFound},
		{"empty uri", &GetResources{}, protoerr.CodeInvalidArgument},
		{"invalid scope", &GetResources{Context: ContextInfo{URI: "eml:///"}, Scope: "sideways"}, protoerr.CodeInvalidArgument},
		{"count", &GetResources{Context: ContextInfo{URI: "eml:///"}}, protoerr.CodeResponseCountExceeded},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := customer.GetResources(etptest.Context(t), test.query)
			if err == nil {
				t.Fatal("expected an error")
			}
			if code := protoerr.CodeOf(err); code != test.code {
				t.Fatalf("expected %v, got %v: %v", test.code, code, err)
			}
		})
	}
}

func TestDiscoveryDeletedResources(t *testing.T) {
	source := newFakeSource(75)
	customer := discoveryPair(t, msgs.EncodingJSON, NewStore(source, 0), 1024)

	deleted, err := customer.GetDeletedResources(etptest.Context(t), &GetDeletedResources{DataspaceURI: "eml:///"})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != len(source.deleted) {
		t.Fatalf("expected %d tombstones, got %d", len(source.deleted), len(deleted))
	}
	for i := range deleted {
		if deleted[i] != source.deleted[i] {
			t.Fatalf("tombstone %d: expected %v, got %v", i, source.deleted[i], deleted[i])
		}
	}
}

func TestStoreCapabilities(t *testing.T) {
	if NewStore(nil, 0).Capabilities().Len() != 0 {
		t.Fatal("no capability expected without a limit")
	}

	caps := NewStore(nil, 42).Capabilities()
	if n, ok := caps.Int(MaxResponseCount); !ok || n != 42 {
		t.Fatalf("expected MaxResponseCount of 42, got %d, %t", n, ok)
	}
	if err := capability.ProtocolSchema(Protocol).Check(caps); err != nil {
		t.Fatal(err)
	}
}
