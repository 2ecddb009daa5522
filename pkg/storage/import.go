// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/datatypes"
)

// importResource is a resource within a catalog import file.
type importResource struct {
	URI            string
	Name           string
	DataObjectType string   `toml:"data-object-type"`
	AlternateURIs  []string `toml:"alternate-uris"`
	ActiveStatus   string   `toml:"active-status"`
}

// importEdge is an edge within a catalog import file.
type importEdge struct {
	Source string
	Target string
	Kind   string
}

// importData is a channel's data item within a catalog import file.
type importData struct {
	Channel int64
	Index   int64
	Value   float64
}

// importFile describes a TOML catalog import file, e.g.,
//
//	deleted = ["eml:///witsml20.Well(old)"]
//
//	[[resource]]
//	uri = "eml:///witsml20.Well(a)"
//	name = "Well A"
//
//	[[edge]]
//	source = "eml:///witsml20.Wellbore(b)"
//	target = "eml:///witsml20.Well(a)"
//	kind = "Primary"
//
//	[[data]]
//	channel = 1
//	index = 23
//	value = 4.2
type importFile struct {
	Deleted   []string
	Resources []importResource `toml:"resource"`
	Edges     []importEdge     `toml:"edge"`
	Data      []importData     `toml:"data"`
}

// ImportResult counts the catalog changes of an import. Channel data is not stored but returned for streaming.
type ImportResult struct {
	Resources int
	Edges     int
	Deleted   int

	Data []datatypes.DataItem
}

func (ir ImportResult) String() string {
	return fmt.Sprintf("%d resources, %d edges, %d deletions, %d data items",
		ir.Resources, ir.Edges, ir.Deleted, len(ir.Data))
}

// Import a TOML catalog file. Resources are put first, followed by the edges and the deletions. A failing record
// does not stop the import; all failures are returned together.
func (s *Store) Import(filename string) (stats ImportResult, err error) {
	var file importFile
	if _, tomlErr := toml.DecodeFile(filename, &file); tomlErr != nil {
		err = tomlErr
		return
	}

	for _, r := range file.Resources {
		if r.URI == "" {
			err = multierror.Append(err, fmt.Errorf("resource %q has no URI", r.Name))
			continue
		}

		res := datatypes.Resource{
			URI:           r.URI,
			Name:          r.Name,
			AlternateURIs: r.AlternateURIs,
			ActiveStatus:  r.ActiveStatus,
		}
		if putErr := s.Put(res, r.DataObjectType); putErr != nil {
			err = multierror.Append(err, putErr)
		} else {
			stats.Resources++
		}
	}

	for _, e := range file.Edges {
		kind := e.Kind
		if kind == "" {
			kind = "Primary"
		}

		edge := datatypes.Edge{SourceURI: e.Source, TargetURI: e.Target, RelationshipKind: kind}
		if linkErr := s.Link(edge); linkErr != nil {
			err = multierror.Append(err, linkErr)
		} else {
			stats.Edges++
		}
	}

	for _, uri := range file.Deleted {
		if delErr := s.Delete(uri); delErr != nil {
			err = multierror.Append(err, delErr)
		} else {
			stats.Deleted++
		}
	}

	for _, d := range file.Data {
		stats.Data = append(stats.Data, datatypes.DataItem{ChannelID: d.Channel, Index: d.Index, Value: d.Value})
	}

	log.WithFields(log.Fields{
		"file":  filename,
		"stats": stats,
	}).Info("Imported catalog file")
	return
}
