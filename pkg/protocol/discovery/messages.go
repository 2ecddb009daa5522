// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
)

// Protocol is the Discovery protocol's ID.
const Protocol int32 = 3

// Message types of the Discovery protocol.
const (
	MsgGetResources                int32 = 1
	MsgGetResourcesResponse        int32 = 4
	MsgGetDeletedResources         int32 = 5
	MsgGetDeletedResourcesResponse int32 = 6
	MsgGetResourcesEdgesResponse   int32 = 7
)

// Scope of a GetResources query, relative to its context URI.
type Scope string

const (
	ScopeSelf          Scope = "self"
	ScopeSources       Scope = "sources"
	ScopeSourcesOrSelf Scope = "sourcesOrSelf"
	ScopeTargets       Scope = "targets"
	ScopeTargetsOrSelf Scope = "targetsOrSelf"
)

// Valid checks for a known Scope.
func (sc Scope) Valid() bool {
	switch sc {
	case ScopeSelf, ScopeSources, ScopeSourcesOrSelf, ScopeTargets, ScopeTargetsOrSelf:
		return true
	default:
		return false
	}
}

// IncludesSelf is true for scopes containing the context resource itself.
func (sc Scope) IncludesSelf() bool {
	return sc == ScopeSelf || sc == ScopeSourcesOrSelf || sc == ScopeTargetsOrSelf
}

// FollowsTargets is true for scopes walking from sources to targets.
func (sc Scope) FollowsTargets() bool {
	return sc == ScopeTargets || sc == ScopeTargetsOrSelf
}

// FollowsSources is true for scopes walking from targets to sources.
func (sc Scope) FollowsSources() bool {
	return sc == ScopeSources || sc == ScopeSourcesOrSelf
}

// ContextInfo is the starting point of a GetResources query.
type ContextInfo struct {
	URI             string   `json:"uri"`
	Depth           int32    `json:"depth"`
	DataObjectTypes []string `json:"dataObjectTypes"`
}

func (ci ContextInfo) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(ci.URI, w); err != nil {
		return err
	}
	if err := wire.WriteInt(int64(ci.Depth), w); err != nil {
		return err
	}
	return wire.WriteStrings(ci.DataObjectTypes, w)
}

func (ci *ContextInfo) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(3, r); err != nil {
		return
	}
	if ci.URI, err = cboring.ReadTextString(r); err != nil {
		return
	}

	depth, err := wire.ReadInt(r)
	if err != nil {
		return
	}
	ci.Depth = int32(depth)

	ci.DataObjectTypes, err = wire.ReadStrings(r)
	return
}

// GetResources queries the resources around a context URI.
type GetResources struct {
	Context      ContextInfo `json:"context"`
	Scope        Scope       `json:"scope"`
	CountObjects bool        `json:"countObjects"`
	IncludeEdges bool        `json:"includeEdges"`

	// StoreLastWriteFilter only selects resources written after this time, in microseconds since the epoch.
	StoreLastWriteFilter *int64 `json:"storeLastWriteFilter,omitempty"`
}

func (*GetResources) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgGetResources}
}

func (gr *GetResources) String() string {
	return fmt.Sprintf("GetResources(%s, %s, depth=%d)", gr.Context.URI, gr.Scope, gr.Context.Depth)
}

func (gr *GetResources) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}
	if err := gr.Context.MarshalCbor(w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(string(gr.Scope), w); err != nil {
		return err
	}
	for _, b := range []bool{gr.CountObjects, gr.IncludeEdges} {
		if err := cboring.WriteBoolean(b, w); err != nil {
			return err
		}
	}
	return wire.WriteOptionalInt(gr.StoreLastWriteFilter, w)
}

func (gr *GetResources) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(5, r); err != nil {
		return
	}
	if err = gr.Context.UnmarshalCbor(r); err != nil {
		return
	}

	scope, err := cboring.ReadTextString(r)
	if err != nil {
		return
	}
	gr.Scope = Scope(scope)

	if gr.CountObjects, err = cboring.ReadBoolean(r); err != nil {
		return
	}
	if gr.IncludeEdges, err = cboring.ReadBoolean(r); err != nil {
		return
	}
	gr.StoreLastWriteFilter, err = wire.ReadOptionalInt(r)
	return
}

// GetResourcesResponse is one part of the resources answering GetResources.
type GetResourcesResponse struct {
	Resources []datatypes.Resource `json:"resources"`
}

func (*GetResourcesResponse) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgGetResourcesResponse}
}

func (grr *GetResourcesResponse) MarshalCbor(w io.Writer) error {
	return datatypes.WriteList(grr.Resources, w)
}

func (grr *GetResourcesResponse) UnmarshalCbor(r io.Reader) (err error) {
	grr.Resources, err = datatypes.ReadList[datatypes.Resource](r)
	return
}

// GetResourcesEdgesResponse is one part of the edges answering GetResources, following all resource parts.
type GetResourcesEdgesResponse struct {
	Edges []datatypes.Edge `json:"edges"`
}

func (*GetResourcesEdgesResponse) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgGetResourcesEdgesResponse}
}

func (ger *GetResourcesEdgesResponse) MarshalCbor(w io.Writer) error {
	return datatypes.WriteList(ger.Edges, w)
}

func (ger *GetResourcesEdgesResponse) UnmarshalCbor(r io.Reader) (err error) {
	ger.Edges, err = datatypes.ReadList[datatypes.Edge](r)
	return
}

// GetDeletedResources queries the tombstones of a dataspace.
type GetDeletedResources struct {
	DataspaceURI string `json:"dataspaceUri"`

	// DeleteTimeFilter only selects resources deleted after this time, in microseconds since the epoch.
	DeleteTimeFilter *int64 `json:"deleteTimeFilter,omitempty"`

	DataObjectTypes []string `json:"dataObjectTypes"`
}

func (*GetDeletedResources) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgGetDeletedResources}
}

func (gdr *GetDeletedResources) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(gdr.DataspaceURI, w); err != nil {
		return err
	}
	if err := wire.WriteOptionalInt(gdr.DeleteTimeFilter, w); err != nil {
		return err
	}
	return wire.WriteStrings(gdr.DataObjectTypes, w)
}

func (gdr *GetDeletedResources) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(3, r); err != nil {
		return
	}
	if gdr.DataspaceURI, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if gdr.DeleteTimeFilter, err = wire.ReadOptionalInt(r); err != nil {
		return
	}
	gdr.DataObjectTypes, err = wire.ReadStrings(r)
	return
}

// GetDeletedResourcesResponse is one part of the tombstones answering GetDeletedResources.
type GetDeletedResourcesResponse struct {
	DeletedResources []datatypes.DeletedResource `json:"deletedResources"`
}

func (*GetDeletedResourcesResponse) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgGetDeletedResourcesResponse}
}

func (gdr *GetDeletedResourcesResponse) MarshalCbor(w io.Writer) error {
	return datatypes.WriteList(gdr.DeletedResources, w)
}

func (gdr *GetDeletedResourcesResponse) UnmarshalCbor(r io.Reader) (err error) {
	gdr.DeletedResources, err = datatypes.ReadList[datatypes.DeletedResource](r)
	return
}

func init() {
	msgs.RegisterBody(&GetResources{})
	msgs.RegisterBody(&GetResourcesResponse{})
	msgs.RegisterBody(&GetResourcesEdgesResponse{})
	msgs.RegisterBody(&GetDeletedResources{})
	msgs.RegisterBody(&GetDeletedResourcesResponse{})
}
