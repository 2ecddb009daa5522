// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path"
	"testing"
	"time"

	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/protoerr"
	"github.com/openetp/etp-go/pkg/protocol/discovery"
)

const (
	uriWell     = "eml:///witsml20.Well(a)"
	uriWellbore = "eml:///witsml20.Wellbore(b)"
	uriLog      = "eml:///witsml20.Log(c)"
	uriOther    = "eml:///dataspace('demo')/witsml20.Well(d)"
)

func setupStore(t *testing.T) *Store {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	})
	return store
}

// setupCatalog creates a chain of log -> wellbore -> well, plus a well in another dataspace.
func setupCatalog(t *testing.T) *Store {
	store := setupStore(t)

	for _, uri := range []string{uriWell, uriWellbore, uriLog, uriOther} {
		if err := store.Put(datatypes.Resource{URI: uri, Name: uri}, ""); err != nil {
			t.Fatal(err)
		}
	}
	edges := []datatypes.Edge{
		{SourceURI: uriWellbore, TargetURI: uriWell, RelationshipKind: "Primary"},
		{SourceURI: uriLog, TargetURI: uriWellbore, RelationshipKind: "Primary"},
	}
	for _, e := range edges {
		if err := store.Link(e); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func uris(resources []datatypes.Resource) (out []string) {
	for _, r := range resources {
		out = append(out, r.URI)
	}
	return
}

func sameURIs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool)
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func TestStoreResources(t *testing.T) {
	store := setupCatalog(t)

	tests := []struct {
		name     string
		query    discovery.GetResources
		expected []string
		edges    int
	}{
		{"self", discovery.GetResources{Context: discovery.ContextInfo{URI: uriWell}, Scope: discovery.ScopeSelf},
			[]string{uriWell}, 0},
		{"sources", discovery.GetResources{Context: discovery.ContextInfo{URI: uriWell, Depth: 1}, Scope: discovery.ScopeSources},
			[]string{uriWellbore}, 1},
		{"sources deep", discovery.GetResources{Context: discovery.ContextInfo{URI: uriWell, Depth: 2}, Scope: discovery.ScopeSourcesOrSelf},
			[]string{uriWell, uriWellbore, uriLog}, 2},
		{"targets", discovery.GetResources{Context: discovery.ContextInfo{URI: uriLog, Depth: 5}, Scope: discovery.ScopeTargets},
			[]string{uriWellbore, uriWell}, 2},
		{"type filter", discovery.GetResources{
			Context: discovery.ContextInfo{URI: uriLog, Depth: 5, DataObjectTypes: []string{"witsml20.Well"}},
			Scope:   discovery.ScopeTargets},
			[]string{uriWell}, 0},
		{"default dataspace", discovery.GetResources{Context: discovery.ContextInfo{URI: "eml:///"}, Scope: discovery.ScopeTargets},
			[]string{uriWell, uriWellbore, uriLog}, 2},
		{"named dataspace", discovery.GetResources{Context: discovery.ContextInfo{URI: "eml:///dataspace('demo')"}, Scope: discovery.ScopeTargets},
			[]string{uriOther}, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			query := test.query
			query.IncludeEdges = true

			resources, edges, err := store.Resources(context.Background(), &query)
			if err != nil {
				t.Fatal(err)
			}
			if !sameURIs(uris(resources), test.expected...) {
				t.Fatalf("expected %v, got %v", test.expected, uris(resources))
			}
			if len(edges) != test.edges {
				t.Fatalf("expected %d edges, got %v", test.edges, edges)
			}
		})
	}
}

func TestStoreCountsAndFilter(t *testing.T) {
	store := setupCatalog(t)

	resources, _, err := store.Resources(context.Background(), &discovery.GetResources{
		Context:      discovery.ContextInfo{URI: uriWellbore},
		Scope:        discovery.ScopeSelf,
		CountObjects: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resources) != 1 {
		t.Fatalf("expected one resource, got %d", len(resources))
	}
	if r := resources[0]; r.SourceCount == nil || *r.SourceCount != 1 || r.TargetCount == nil || *r.TargetCount != 1 {
		t.Fatalf("unexpected counts for %v", r)
	}

	future := time.Now().Add(time.Hour).UnixMicro()
	resources, _, err = store.Resources(context.Background(), &discovery.GetResources{
		Context:              discovery.ContextInfo{URI: "eml:///"},
		Scope:                discovery.ScopeTargets,
		StoreLastWriteFilter: &future,
	})
	if err != nil {
		t.Fatal(err)
	} else if len(resources) != 0 {
		t.Fatalf("filter should exclude everything, got %v", uris(resources))
	}

	_, _, err = store.Resources(context.Background(), &discovery.GetResources{
		Context: discovery.ContextInfo{URI: "eml:///witsml20.Well(unknown)"},
	})
	if code := protoerr.CodeOf(err); code != protoerr.CodeNotFound {
		t.Fatalf("expected ENOT_FOUND, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store := setupCatalog(t)

	if err := store.Delete(uriWellbore); err != nil {
		t.Fatal(err)
	}
	if store.KnowsResource(uriWellbore) {
		t.Fatal("deleted resource is still known")
	}

	_, edges, err := store.Resources(context.Background(), &discovery.GetResources{
		Context:      discovery.ContextInfo{URI: "eml:///"},
		Scope:        discovery.ScopeTargets,
		IncludeEdges: true,
	})
	if err != nil {
		t.Fatal(err)
	} else if len(edges) != 0 {
		t.Fatalf("edges of the deleted resource remain: %v", edges)
	}

	deleted, err := store.DeletedResources(context.Background(), &discovery.GetDeletedResources{DataspaceURI: "eml:///"})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].URI != uriWellbore || deleted[0].DataObjectType != "witsml20.Wellbore" {
		t.Fatalf("unexpected tombstones %v", deleted)
	}

	future := time.Now().Add(time.Hour).UnixMicro()
	deleted, err = store.DeletedResources(context.Background(), &discovery.GetDeletedResources{DeleteTimeFilter: &future})
	if err != nil {
		t.Fatal(err)
	} else if len(deleted) != 0 {
		t.Fatalf("filter should exclude everything, got %v", deleted)
	}

	// Putting the resource again removes its tombstone.
	if err := store.Put(datatypes.Resource{URI: uriWellbore}, ""); err != nil {
		t.Fatal(err)
	}
	if deleted, _ = store.DeletedResources(context.Background(), &discovery.GetDeletedResources{}); len(deleted) != 0 {
		t.Fatalf("tombstone survived: %v", deleted)
	}

	if err := store.Delete(uriLog); err != nil {
		t.Fatal(err)
	}
	store.PurgeTombstones(time.Now().Add(time.Second))
	if deleted, _ = store.DeletedResources(context.Background(), &discovery.GetDeletedResources{}); len(deleted) != 0 {
		t.Fatalf("tombstone was not purged: %v", deleted)
	}
}

func TestStoreLinkUnknown(t *testing.T) {
	store := setupStore(t)

	err := store.Link(datatypes.Edge{SourceURI: uriLog, TargetURI: uriWell})
	if code := protoerr.CodeOf(err); code != protoerr.CodeNotFound {
		t.Fatalf("expected ENOT_FOUND, got %v", err)
	}
}

func TestStoreImport(t *testing.T) {
	store := setupStore(t)

	catalog := `
deleted = ["eml:///witsml20.Well(missing)"]

[[resource]]
uri = "eml:///witsml20.Well(a)"
name = "Well A"

[[resource]]
uri = "eml:///witsml20.Wellbore(b)"
name = "Wellbore B"
active-status = "Active"

[[edge]]
source = "eml:///witsml20.Wellbore(b)"
target = "eml:///witsml20.Well(a)"

[[data]]
channel = 3
index = 10
value = 0.25
`
	filename := path.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(filename, []byte(catalog), 0600); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Import(filename)
	if err == nil {
		t.Fatal("deleting an unknown resource should fail")
	}
	if stats.Resources != 2 || stats.Edges != 1 || stats.Deleted != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
	if len(stats.Data) != 1 || stats.Data[0] != (datatypes.DataItem{ChannelID: 3, Index: 10, Value: 0.25}) {
		t.Fatalf("unexpected data %v", stats.Data)
	}

	ri, err := store.QueryURI(uriWellbore)
	if err != nil {
		t.Fatal(err)
	}
	if ri.Name != "Wellbore B" || ri.ActiveStatus != "Active" || ri.DataObjectType != "witsml20.Wellbore" {
		t.Fatalf("unexpected item %v", ri)
	}
}

func TestURIHelpers(t *testing.T) {
	tests := []struct {
		uri         string
		dataspace   bool
		dataspaceOf string
		objectType  string
	}{
		{"eml:///", true, "eml:///", ""},
		{"eml:///dataspace('demo')", true, "eml:///dataspace('demo')", "dataspace"},
		{uriWell, false, "eml:///", "witsml20.Well"},
		{uriOther, false, "eml:///dataspace('demo')", "witsml20.Well"},
	}

	for _, test := range tests {
		if d := IsDataspace(test.uri); d != test.dataspace {
			t.Fatalf("%s: IsDataspace is %t", test.uri, d)
		}
		if d := DataspaceOf(test.uri); d != test.dataspaceOf {
			t.Fatalf("%s: DataspaceOf is %s", test.uri, d)
		}
		if !test.dataspace || test.uri != "eml:///" {
			if ot := DataObjectType(test.uri); ot != test.objectType {
				t.Fatalf("%s: DataObjectType is %s", test.uri, ot)
			}
		}
	}

	if !matchesType("witsml20.Well", []string{"witsml20.*"}) || matchesType("prodml22.Well", []string{"witsml20.*"}) {
		t.Fatal("wildcard type filter failed")
	}
}
