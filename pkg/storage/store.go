// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/protoerr"
	"github.com/openetp/etp-go/pkg/protocol/discovery"
)

const dirBadger string = "db"

// Store is a catalog of resources, the edges between them and tombstones of deleted resources. It serves as a
// discovery.Source.
type Store struct {
	bh *badgerhold.Store

	badgerDir string
}

// NewStore creates a new Store or opens an existing Store from the given path.
func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh:        bh,
			badgerDir: badgerDir,
		}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

func nowMicro() int64 {
	return time.Now().UnixMicro()
}

func ignoreNotFound(err error) error {
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

// Put inserts or updates a resource. An empty data object type is derived from the URI. A tombstone of an
// earlier deletion of this URI is removed.
func (s *Store) Put(r datatypes.Resource, dataObjectType string) error {
	if dataObjectType == "" {
		dataObjectType = DataObjectType(r.URI)
	}

	now := nowMicro()
	if r.LastChanged == 0 {
		r.LastChanged = now
	}

	ri := ResourceItem{
		URI:            r.URI,
		Name:           r.Name,
		DataObjectType: dataObjectType,
		AlternateURIs:  r.AlternateURIs,
		LastChanged:    r.LastChanged,
		StoreLastWrite: now,
		ActiveStatus:   r.ActiveStatus,
	}
	if ri.ActiveStatus == "" {
		ri.ActiveStatus = "Inactive"
	}

	log.WithFields(log.Fields{
		"resource": ri.URI,
		"type":     ri.DataObjectType,
	}).Debug("Store puts resource")

	if err := s.bh.Upsert(ri.URI, ri); err != nil {
		return err
	}
	return ignoreNotFound(s.bh.Delete(ri.URI, TombstoneItem{}))
}

// Link two known resources by an edge.
func (s *Store) Link(e datatypes.Edge) error {
	for _, uri := range []string{e.SourceURI, e.TargetURI} {
		if !s.KnowsResource(uri) {
			return protoerr.Violation(protoerr.CodeNotFound, "edge references unknown resource %s", uri)
		}
	}

	ei := newEdgeItem(e)
	return s.bh.Upsert(ei.Id, ei)
}

// Delete a resource together with all of its edges and leave a tombstone.
func (s *Store) Delete(uri string) error {
	ri, err := s.QueryURI(uri)
	if err != nil {
		return err
	}

	logger := log.WithField("resource", uri)
	logger.Info("Store deletes resource")

	for _, field := range []string{"SourceURI", "TargetURI"} {
		var eis []EdgeItem
		if err := s.bh.Find(&eis, badgerhold.Where(field).Eq(uri)); err != nil {
			return err
		}
		for _, ei := range eis {
			if err := ignoreNotFound(s.bh.Delete(ei.Id, EdgeItem{})); err != nil {
				logger.WithError(err).WithField("edge", ei.Edge()).Warn("Failed to delete edge")
			}
		}
	}

	if err := s.bh.Delete(ri.URI, ResourceItem{}); err != nil {
		return err
	}

	ti := TombstoneItem{
		URI:            ri.URI,
		DeletedTime:    nowMicro(),
		DataObjectType: ri.DataObjectType,
	}
	return s.bh.Upsert(ti.URI, ti)
}

// PurgeTombstones removes all tombstones of resources deleted before the given time.
func (s *Store) PurgeTombstones(before time.Time) {
	var tis []TombstoneItem
	if err := s.bh.Find(&tis, badgerhold.Where("DeletedTime").Lt(before.UnixMicro())); err != nil {
		log.WithError(err).Warn("Failed to get outdated tombstones")
		return
	}

	for _, ti := range tis {
		logger := log.WithField("resource", ti.URI)
		if err := s.bh.Delete(ti.URI, TombstoneItem{}); err != nil {
			logger.WithError(err).Warn("Failed to purge tombstone")
		} else {
			logger.Debug("Purged tombstone")
		}
	}
}

// QueryURI fetches the ResourceItem for an URI. An unknown URI results in a protoerr.CodeNotFound error.
func (s *Store) QueryURI(uri string) (ri ResourceItem, err error) {
	err = s.bh.Get(uri, &ri)
	if errors.Is(err, badgerhold.ErrNotFound) {
		err = protoerr.Violation(protoerr.CodeNotFound, "unknown resource %s", uri)
	}
	return
}

// KnowsResource checks if such a resource exists.
func (s *Store) KnowsResource(uri string) bool {
	_, err := s.QueryURI(uri)
	return err == nil
}

// edgesOf fetches all edges starting or ending at an URI.
func (s *Store) edgesOf(uri string, outgoing bool) (eis []EdgeItem, err error) {
	field := "TargetURI"
	if outgoing {
		field = "SourceURI"
	}
	err = s.bh.Find(&eis, badgerhold.Where(field).Eq(uri))
	return
}

// selection is an ordered set of resources.
type selection struct {
	items []ResourceItem
	known map[string]bool
}

func (sel *selection) add(ri ResourceItem) {
	sel.items = append(sel.items, ri)
	sel.known[ri.URI] = true
}

// walk collects resources reachable within depth hops from the context URI.
func (s *Store) walk(ctx context.Context, contextURI string, depth int32, outgoing bool, sel *selection) error {
	frontier := []string{contextURI}
	for hop := int32(0); hop < depth && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var next []string
		for _, uri := range frontier {
			eis, err := s.edgesOf(uri, outgoing)
			if err != nil {
				return err
			}

			for _, ei := range eis {
				other := ei.TargetURI
				if !outgoing {
					other = ei.SourceURI
				}
				if sel.known[other] {
					continue
				}

				ri, err := s.QueryURI(other)
				if err != nil {
					return err
				}
				sel.add(ri)
				next = append(next, other)
			}
		}
		frontier = next
	}
	return nil
}

// Resources answers a GetResources query.
func (s *Store) Resources(ctx context.Context, query *discovery.GetResources) (
	resources []datatypes.Resource, edges []datatypes.Edge, err error,
) {
	contextURI := query.Context.URI
	sel := &selection{known: map[string]bool{contextURI: true}}

	if IsDataspace(contextURI) {
		if query.Scope.FollowsTargets() {
			var ris []ResourceItem
			if err = s.bh.Find(&ris, nil); err != nil {
				return
			}
			for _, ri := range ris {
				if DataspaceOf(ri.URI) == contextURI {
					sel.add(ri)
				}
			}
		}
	} else {
		var root ResourceItem
		if root, err = s.QueryURI(contextURI); err != nil {
			return
		}
		if query.Scope.IncludesSelf() {
			sel.items = append(sel.items, root)
		}

		depth := query.Context.Depth
		if depth < 1 {
			depth = 1
		}
		if query.Scope.FollowsTargets() || query.Scope.FollowsSources() {
			if err = s.walk(ctx, contextURI, depth, query.Scope.FollowsTargets(), sel); err != nil {
				return
			}
		}
	}

	selected := make(map[string]bool)
	for _, ri := range sel.items {
		if !matchesType(ri.DataObjectType, query.Context.DataObjectTypes) {
			continue
		}
		if query.StoreLastWriteFilter != nil && ri.StoreLastWrite <= *query.StoreLastWriteFilter {
			continue
		}

		r := ri.Resource()
		if query.CountObjects {
			if err = s.count(&r); err != nil {
				return
			}
		}
		resources = append(resources, r)
		selected[ri.URI] = true
	}

	if query.IncludeEdges {
		selected[contextURI] = true
		edges, err = s.edgesWithin(selected)
	}
	return
}

// count sets a Resource's SourceCount and TargetCount.
func (s *Store) count(r *datatypes.Resource) error {
	sources, err := s.edgesOf(r.URI, false)
	if err != nil {
		return err
	}
	targets, err := s.edgesOf(r.URI, true)
	if err != nil {
		return err
	}

	sourceCount, targetCount := int64(len(sources)), int64(len(targets))
	r.SourceCount = &sourceCount
	r.TargetCount = &targetCount
	return nil
}

// edgesWithin returns all edges with both ends being part of the set.
func (s *Store) edgesWithin(uris map[string]bool) (edges []datatypes.Edge, err error) {
	seen := make(map[string]bool)
	for uri := range uris {
		var eis []EdgeItem
		if eis, err = s.edgesOf(uri, true); err != nil {
			return
		}
		for _, ei := range eis {
			if uris[ei.TargetURI] && !seen[ei.Id] {
				seen[ei.Id] = true
				edges = append(edges, ei.Edge())
			}
		}
	}

	sortEdges(edges)
	return
}

// DeletedResources answers a GetDeletedResources query.
func (s *Store) DeletedResources(ctx context.Context, query *discovery.GetDeletedResources) (
	deleted []datatypes.DeletedResource, err error,
) {
	var bhQuery *badgerhold.Query
	if query.DeleteTimeFilter != nil {
		bhQuery = badgerhold.Where("DeletedTime").Gt(*query.DeleteTimeFilter)
	}

	var tis []TombstoneItem
	if err = s.bh.Find(&tis, bhQuery); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}

	for _, ti := range tis {
		if query.DataspaceURI != "" && DataspaceOf(ti.URI) != query.DataspaceURI {
			continue
		}
		if !matchesType(ti.DataObjectType, query.DataObjectTypes) {
			continue
		}
		deleted = append(deleted, ti.DeletedResource())
	}
	return
}
