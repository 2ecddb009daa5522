// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package streaming implements the ChannelStreaming protocol's producer and consumer.
//
// A consumer starts the streaming of channels by a ChannelStreamingStart message, which names a start index per
// channel, and stops it by ChannelStreamingStop. The producer sends ChannelData messages for all started channels.
// A producer with the SimpleStreamer capability ignores the selection and always streams all of its channels.
package streaming

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/openetp/etp-go/internal/wire"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
)

// Protocol is the ChannelStreaming protocol's ID.
const Protocol int32 = 1

// Message types of the ChannelStreaming protocol.
const (
	MsgChannelData           int32 = 3
	MsgChannelStreamingStart int32 = 4
	MsgChannelStreamingStop  int32 = 5
)

// ChannelStreamingInfo selects one channel, starting at an index.
type ChannelStreamingInfo struct {
	ChannelID  int64                         `json:"channelId"`
	StartIndex datatypes.StreamingStartIndex `json:"startIndex"`

	ReceiveChangeNotification bool `json:"receiveChangeNotification"`
}

func (csi ChannelStreamingInfo) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := wire.WriteInt(csi.ChannelID, w); err != nil {
		return err
	}
	if err := csi.StartIndex.MarshalCbor(w); err != nil {
		return err
	}
	return cboring.WriteBoolean(csi.ReceiveChangeNotification, w)
}

func (csi *ChannelStreamingInfo) UnmarshalCbor(r io.Reader) (err error) {
	if err = wire.ExpectArrayLength(3, r); err != nil {
		return
	}
	if csi.ChannelID, err = wire.ReadInt(r); err != nil {
		return
	}
	if err = csi.StartIndex.UnmarshalCbor(r); err != nil {
		return
	}
	csi.ReceiveChangeNotification, err = cboring.ReadBoolean(r)
	return
}

// ChannelStreamingStart requests the streaming of channels from a producer.
type ChannelStreamingStart struct {
	Channels []ChannelStreamingInfo `json:"channels"`
}

func (*ChannelStreamingStart) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgChannelStreamingStart}
}

func (css *ChannelStreamingStart) String() string {
	return fmt.Sprintf("ChannelStreamingStart(%d channels)", len(css.Channels))
}

func (css *ChannelStreamingStart) MarshalCbor(w io.Writer) error {
	return datatypes.WriteList(css.Channels, w)
}

func (css *ChannelStreamingStart) UnmarshalCbor(r io.Reader) (err error) {
	css.Channels, err = datatypes.ReadList[ChannelStreamingInfo](r)
	return
}

// ChannelStreamingStop stops the streaming of channels.
type ChannelStreamingStop struct {
	Channels []int64 `json:"channels"`
}

func (*ChannelStreamingStop) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgChannelStreamingStop}
}

func (css *ChannelStreamingStop) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(css.Channels)), w); err != nil {
		return err
	}
	for _, id := range css.Channels {
		if err := wire.WriteInt(id, w); err != nil {
			return err
		}
	}
	return nil
}

func (css *ChannelStreamingStop) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	css.Channels = make([]int64, 0, l)
	for i := uint64(0); i < l; i++ {
		id, err := wire.ReadInt(r)
		if err != nil {
			return err
		}
		css.Channels = append(css.Channels, id)
	}
	return nil
}

// ChannelData carries the data items of streamed channels.
type ChannelData struct {
	Data []datatypes.DataItem `json:"data"`
}

func (*ChannelData) MessageKey() msgs.Key {
	return msgs.Key{Protocol: Protocol, MessageType: MsgChannelData}
}

func (cd *ChannelData) MarshalCbor(w io.Writer) error {
	return datatypes.WriteList(cd.Data, w)
}

func (cd *ChannelData) UnmarshalCbor(r io.Reader) (err error) {
	cd.Data, err = datatypes.ReadList[datatypes.DataItem](r)
	return
}

func init() {
	msgs.RegisterBody(&ChannelStreamingStart{})
	msgs.RegisterBody(&ChannelStreamingStop{})
	msgs.RegisterBody(&ChannelData{})
}
