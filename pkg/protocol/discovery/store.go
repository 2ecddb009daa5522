// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
	"github.com/openetp/etp-go/pkg/session"
)

// MaxResponseCount is the protocol capability limiting the amount of resources within one response.
const MaxResponseCount = "MaxResponseCount"

func init() {
	capability.RegisterProtocolSchema(Protocol, capability.Schema{
		MaxResponseCount: capability.KindInt,
	})
}

// Source provides the resources of a Store.
type Source interface {
	// Resources returns the resources and, if requested, the edges between them for a GetResources query. An
	// unknown context URI should result in a protoerr.CodeNotFound error.
	Resources(ctx context.Context, query *GetResources) ([]datatypes.Resource, []datatypes.Edge, error)

	// DeletedResources returns the tombstones for a GetDeletedResources query.
	DeletedResources(ctx context.Context, query *GetDeletedResources) ([]datatypes.DeletedResource, error)
}

// Store answers Discovery queries of customers from a Source.
type Store struct {
	source           Source
	maxResponseCount int64
}

// NewStore for a Source. A positive maxResponseCount is announced as the MaxResponseCount capability.
func NewStore(source Source, maxResponseCount int64) *Store {
	return &Store{
		source:           source,
		maxResponseCount: maxResponseCount,
	}
}

// Capabilities of this Store's protocol.
func (st *Store) Capabilities() *capability.Set {
	caps := capability.NewSet()
	if st.maxResponseCount > 0 {
		_ = caps.Set(MaxResponseCount, capability.Int(st.maxResponseCount))
	}
	return caps
}

// Attach declares the Discovery protocol in the store role and registers the handlers.
func (st *Store) Attach(s *session.Session) error {
	if err := s.Declare(Protocol, msgs.RoleStore, st.Capabilities()); err != nil {
		return err
	}

	routes := []session.Route{
		{Protocol: Protocol, MessageType: MsgGetResources, Role: msgs.RoleStore, Handle: st.handleGetResources},
		{Protocol: Protocol, MessageType: MsgGetDeletedResources, Role: msgs.RoleStore, Handle: st.handleGetDeletedResources},
	}
	for _, r := range routes {
		if err := s.Register(r); err != nil {
			return err
		}
	}
	return nil
}

func (st *Store) log(req *session.Request) *log.Entry {
	return log.WithFields(log.Fields{
		"session":  req.Session(),
		"protocol": "discovery",
		"request":  req.Header.MessageID,
	})
}

// checkCount enforces the negotiated MaxResponseCount.
func checkCount(req *session.Request, n int) error {
	limit, ok := req.Protocol.Capabilities.EffectiveInt(MaxResponseCount).AsInt()
	if ok && limit > 0 && int64(n) > limit {
		return protoerr.Limit(protoerr.CodeResponseCountExceeded,
			"%d results exceed the MaxResponseCount of %d", n, limit)
	}
	return nil
}

func (st *Store) handleGetResources(req *session.Request) error {
	query := req.Body().(*GetResources)

	if query.Context.URI == "" {
		return protoerr.Violation(protoerr.CodeInvalidArgument, "GetResources requires a context URI")
	}
	if query.Scope == "" {
		query.Scope = ScopeSelf
	} else if !query.Scope.Valid() {
		return protoerr.Violation(protoerr.CodeInvalidArgument, "unknown scope %q", query.Scope)
	}

	resources, edges, err := st.source.Resources(req.Context(), query)
	if err != nil {
		return err
	}
	if !query.IncludeEdges {
		edges = nil
	}
	if err := checkCount(req, len(resources)); err != nil {
		return err
	}

	st.log(req).WithFields(log.Fields{
		"query":     query,
		"resources": len(resources),
		"edges":     len(edges),
	}).Debug("Answering GetResources")

	_, err = session.RespondDualList(req,
		resources, session.ItemSizer[datatypes.Resource](req),
		func(chunk []datatypes.Resource) msgs.Body { return &GetResourcesResponse{Resources: chunk} },
		edges, session.ItemSizer[datatypes.Edge](req),
		func(chunk []datatypes.Edge) msgs.Body { return &GetResourcesEdgesResponse{Edges: chunk} })
	return err
}

func (st *Store) handleGetDeletedResources(req *session.Request) error {
	query := req.Body().(*GetDeletedResources)

	deleted, err := st.source.DeletedResources(req.Context(), query)
	if err != nil {
		return err
	}
	if err := checkCount(req, len(deleted)); err != nil {
		return err
	}

	st.log(req).WithField("deleted", len(deleted)).Debug("Answering GetDeletedResources")

	_, err = session.RespondList(req, deleted, session.ItemSizer[datatypes.DeletedResource](req),
		func(chunk []datatypes.DeletedResource) msgs.Body {
			return &GetDeletedResourcesResponse{DeletedResources: chunk}
		})
	return err
}
