// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datatypes

import (
	"bytes"
	"reflect"
	"testing"
)

func TestRecordLists(t *testing.T) {
	sourceCount := int64(3)

	resources := []Resource{
		{URI: "eml:///witsml20.Well(a)", Name: "A", SourceCount: &sourceCount, LastChanged: -1, ActiveStatus: "active"},
		{URI: "eml:///witsml20.Well(b)", Name: "B", AlternateURIs: []string{"eml:///b"}, StoreLastWrite: 1 << 40},
	}
	edges := []Edge{{SourceURI: "a", TargetURI: "b", RelationshipKind: "Primary"}}
	deleted := []DeletedResource{{URI: "c", DeletedTime: 1700000000, DataObjectType: "witsml20.Well"}}
	data := []DataItem{{ChannelID: 1, Index: -5, Value: 3.25}}

	var buf bytes.Buffer
	if err := WriteList(resources, &buf); err != nil {
		t.Fatal(err)
	}
	if err := WriteList(edges, &buf); err != nil {
		t.Fatal(err)
	}
	if err := WriteList(deleted, &buf); err != nil {
		t.Fatal(err)
	}
	if err := WriteList(data, &buf); err != nil {
		t.Fatal(err)
	}

	if rs, err := ReadList[Resource](&buf); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(rs, resources) {
		t.Fatalf("expected %v, got %v", resources, rs)
	}
	if es, err := ReadList[Edge](&buf); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(es, edges) {
		t.Fatalf("expected %v, got %v", edges, es)
	}
	if ds, err := ReadList[DeletedResource](&buf); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(ds, deleted) {
		t.Fatalf("expected %v, got %v", deleted, ds)
	}
	if di, err := ReadList[DataItem](&buf); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(di, data) {
		t.Fatalf("expected %v, got %v", data, di)
	}
}

func TestCborSize(t *testing.T) {
	e := Edge{SourceURI: "a", TargetURI: "b", RelationshipKind: "c"}

	// Array header and three one byte strings with their headers.
	if s := CborSize(e); s != 7 {
		t.Fatalf("expected 7 bytes, got %d", s)
	}
}
