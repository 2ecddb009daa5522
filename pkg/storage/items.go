// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"

	"github.com/openetp/etp-go/pkg/datatypes"
)

// ResourceItem is the stored form of a datatypes.Resource together with meta data for queries.
type ResourceItem struct {
	URI string `badgerhold:"key"`

	Name           string
	DataObjectType string `badgerholdIndex:"DataObjectType"`
	AlternateURIs  []string
	LastChanged    int64
	StoreLastWrite int64
	ActiveStatus   string
}

// Resource converts this item back, without any counts.
func (ri ResourceItem) Resource() datatypes.Resource {
	return datatypes.Resource{
		URI:            ri.URI,
		Name:           ri.Name,
		AlternateURIs:  ri.AlternateURIs,
		LastChanged:    ri.LastChanged,
		StoreLastWrite: ri.StoreLastWrite,
		ActiveStatus:   ri.ActiveStatus,
	}
}

// EdgeItem is a stored datatypes.Edge, indexed by both ends.
type EdgeItem struct {
	Id string `badgerhold:"key"`

	SourceURI        string `badgerholdIndex:"SourceURI"`
	TargetURI        string `badgerholdIndex:"TargetURI"`
	RelationshipKind string
}

func newEdgeItem(e datatypes.Edge) EdgeItem {
	return EdgeItem{
		Id:               edgeId(e.SourceURI, e.TargetURI),
		SourceURI:        e.SourceURI,
		TargetURI:        e.TargetURI,
		RelationshipKind: e.RelationshipKind,
	}
}

// edgeId allows only one edge between two resources in each direction.
func edgeId(source, target string) string {
	return fmt.Sprintf("%s\x00%s", source, target)
}

// Edge converts this item back.
func (ei EdgeItem) Edge() datatypes.Edge {
	return datatypes.Edge{
		SourceURI:        ei.SourceURI,
		TargetURI:        ei.TargetURI,
		RelationshipKind: ei.RelationshipKind,
	}
}

// TombstoneItem remembers a deleted resource.
type TombstoneItem struct {
	URI string `badgerhold:"key"`

	DeletedTime    int64 `badgerholdIndex:"DeletedTime"`
	DataObjectType string
}

// DeletedResource converts this item.
func (ti TombstoneItem) DeletedResource() datatypes.DeletedResource {
	return datatypes.DeletedResource{
		URI:            ti.URI,
		DeletedTime:    ti.DeletedTime,
		DataObjectType: ti.DataObjectType,
	}
}
