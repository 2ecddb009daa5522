// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package streaming

import (
	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/session"
)

// Consumer receives streamed channel data from a producer.
type Consumer struct {
	session *session.Session
	data    chan datatypes.DataItem
}

// AttachConsumer declares the ChannelStreaming protocol in the consumer role for a Session, which must not be
// started. Received items are buffered up to the given size; a full buffer blocks this protocol's dispatching.
func AttachConsumer(s *session.Session, buffer int) (*Consumer, error) {
	if err := s.Declare(Protocol, msgs.RoleConsumer, capability.NewSet()); err != nil {
		return nil, err
	}

	c := &Consumer{
		session: s,
		data:    make(chan datatypes.DataItem, buffer),
	}

	err := s.Register(session.Route{
		Protocol:     Protocol,
		MessageType:  MsgChannelData,
		Role:         msgs.RoleConsumer,
		Handle:       c.handleData,
		Notification: true,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consumer) handleData(req *session.Request) error {
	for _, item := range req.Body().(*ChannelData).Data {
		select {
		case c.data <- item:
		case <-req.Context().Done():
			return req.Context().Err()
		}
	}
	return nil
}

// Data of all streamed channels in their order of arrival.
func (c *Consumer) Data() <-chan datatypes.DataItem {
	return c.data
}

// SimpleStreamer checks if the producer streams all of its channels anyway.
func (c *Consumer) SimpleStreamer() bool {
	p, ok := c.session.Protocol(Protocol)
	if !ok {
		return false
	}
	simple, _ := p.Capabilities.EffectiveBool(SimpleStreamer).AsBool()
	return simple
}

// Start streaming channels.
func (c *Consumer) Start(channels ...ChannelStreamingInfo) error {
	_, err := c.session.Notify(Protocol, &ChannelStreamingStart{Channels: channels})
	return err
}

// Stop streaming channels.
func (c *Consumer) Stop(channelIDs ...int64) error {
	_, err := c.session.Notify(Protocol, &ChannelStreamingStop{Channels: channelIDs})
	return err
}
