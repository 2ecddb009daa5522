// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"fmt"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/session"
)

// Customer sends Discovery queries to a store.
type Customer struct {
	session *session.Session
}

// DeclareCustomer declares the Discovery protocol in the customer role, before the Session's start.
func DeclareCustomer(s *session.Session) error {
	return s.Declare(Protocol, msgs.RoleCustomer, capability.NewSet())
}

// NewCustomer for an established Session.
func NewCustomer(s *session.Session) *Customer {
	return &Customer{session: s}
}

// GetResources queries resources and edges. All response parts are collected.
func (c *Customer) GetResources(ctx context.Context, query *GetResources) (
	resources []datatypes.Resource, edges []datatypes.Edge, err error,
) {
	call, err := c.session.Request(Protocol, query)
	if err != nil {
		return
	}

	parts, err := call.Wait(ctx)
	if err != nil {
		return
	}

	for _, part := range parts {
		switch body := part.Body.(type) {
		case *GetResourcesResponse:
			resources = append(resources, body.Resources...)
		case *GetResourcesEdgesResponse:
			edges = append(edges, body.Edges...)
		default:
			err = fmt.Errorf("unexpected response %v", part.Header.Key())
			return
		}
	}
	return
}

// GetDeletedResources queries tombstones. All response parts are collected.
func (c *Customer) GetDeletedResources(ctx context.Context, query *GetDeletedResources) (
	deleted []datatypes.DeletedResource, err error,
) {
	call, err := c.session.Request(Protocol, query)
	if err != nil {
		return
	}

	parts, err := call.Wait(ctx)
	if err != nil {
		return
	}

	for _, part := range parts {
		body, ok := part.Body.(*GetDeletedResourcesResponse)
		if !ok {
			err = fmt.Errorf("unexpected response %v", part.Header.Key())
			return
		}
		deleted = append(deleted, body.DeletedResources...)
	}
	return
}
