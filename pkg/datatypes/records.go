// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datatypes

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
)

// Resource describes a data object known to a store.
type Resource struct {
	URI            string   `json:"uri"`
	Name           string   `json:"name"`
	AlternateURIs  []string `json:"alternateUris,omitempty"`
	SourceCount    *int64   `json:"sourceCount,omitempty"`
	TargetCount    *int64   `json:"targetCount,omitempty"`
	LastChanged    int64    `json:"lastChanged"`
	StoreLastWrite int64    `json:"storeLastWrite"`
	ActiveStatus   string   `json:"activeStatus"`
}

func (r Resource) String() string {
	return fmt.Sprintf("Resource(%s)", r.URI)
}

func (r Resource) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(8, w); err != nil {
		return err
	}

	for _, s := range []string{r.URI, r.Name} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	if err := wire.WriteStrings(r.AlternateURIs, w); err != nil {
		return err
	}
	for _, n := range []*int64{r.SourceCount, r.TargetCount} {
		if err := wire.WriteOptionalInt(n, w); err != nil {
			return err
		}
	}
	for _, n := range []int64{r.LastChanged, r.StoreLastWrite} {
		if err := wire.WriteInt(n, w); err != nil {
			return err
		}
	}
	return cboring.WriteTextString(r.ActiveStatus, w)
}

func (r *Resource) UnmarshalCbor(rd io.Reader) (err error) {
	if err = wire.ExpectArrayLength(8, rd); err != nil {
		return
	}

	if r.URI, err = cboring.ReadTextString(rd); err != nil {
		return
	}
	if r.Name, err = cboring.ReadTextString(rd); err != nil {
		return
	}
	if r.AlternateURIs, err = wire.ReadStrings(rd); err != nil {
		return
	}
	if len(r.AlternateURIs) == 0 {
		r.AlternateURIs = nil
	}
	if r.SourceCount, err = wire.ReadOptionalInt(rd); err != nil {
		return
	}
	if r.TargetCount, err = wire.ReadOptionalInt(rd); err != nil {
		return
	}
	if r.LastChanged, err = wire.ReadInt(rd); err != nil {
		return
	}
	if r.StoreLastWrite, err = wire.ReadInt(rd); err != nil {
		return
	}
	r.ActiveStatus, err = cboring.ReadTextString(rd)
	return
}

// Edge is a relationship between two Resources.
type Edge struct {
	SourceURI        string `json:"sourceUri"`
	TargetURI        string `json:"targetUri"`
	RelationshipKind string `json:"relationshipKind"`
}

func (e Edge) String() string {
	return fmt.Sprintf("Edge(%s -> %s)", e.SourceURI, e.TargetURI)
}

func (e Edge) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	for _, s := range []string{e.SourceURI, e.TargetURI, e.RelationshipKind} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Edge) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(3, r); err != nil {
		return
	}
	for _, s := range []*string{&e.SourceURI, &e.TargetURI, &e.RelationshipKind} {
		if *s, err = cboring.ReadTextString(r); err != nil {
			return
		}
	}
	return
}

// DeletedResource is a tombstone of a removed Resource.
type DeletedResource struct {
	URI            string `json:"uri"`
	DeletedTime    int64  `json:"deletedTime"`
	DataObjectType string `json:"dataObjectType"`
}

func (d DeletedResource) String() string {
	return fmt.Sprintf("DeletedResource(%s)", d.URI)
}

func (d DeletedResource) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(d.URI, w); err != nil {
		return err
	}
	if err := wire.WriteInt(d.DeletedTime, w); err != nil {
		return err
	}
	return cboring.WriteTextString(d.DataObjectType, w)
}

func (d *DeletedResource) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(3, r); err != nil {
		return
	}
	if d.URI, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if d.DeletedTime, err = wire.ReadInt(r); err != nil {
		return
	}
	d.DataObjectType, err = cboring.ReadTextString(r)
	return
}

// DataItem is one measured value of a channel at an index.
type DataItem struct {
	ChannelID int64   `json:"channelId"`
	Index     int64   `json:"index"`
	Value     float64 `json:"value"`
}

func (d DataItem) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := wire.WriteInt(d.ChannelID, w); err != nil {
		return err
	}
	if err := wire.WriteInt(d.Index, w); err != nil {
		return err
	}
	return cboring.WriteFloat64(d.Value, w)
}

func (d *DataItem) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(3, r); err != nil {
		return
	}
	if d.ChannelID, err = wire.ReadInt(r); err != nil {
		return
	}
	if d.Index, err = wire.ReadInt(r); err != nil {
		return
	}
	d.Value, err = cboring.ReadFloat64(r)
	return
}
