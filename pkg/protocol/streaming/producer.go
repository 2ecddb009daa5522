// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package streaming

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
	"github.com/openetp/etp-go/pkg/session"
)

// SimpleStreamer is the producer capability to always stream all channels, ignoring the consumer's selection.
const SimpleStreamer = "SimpleStreamer"

func init() {
	capability.RegisterProtocolSchema(Protocol, capability.Schema{
		SimpleStreamer: capability.KindBool,
	})
}

// Producer streams channel data to the consumer of one Session.
type Producer struct {
	simple bool

	session *session.Session

	mutex    sync.Mutex
	channels map[int64]datatypes.StartIndex
}

// NewProducer creates a Producer, being a SimpleStreamer if simple is set.
func NewProducer(simple bool) *Producer {
	return &Producer{
		simple:   simple,
		channels: make(map[int64]datatypes.StartIndex),
	}
}

// Capabilities of this Producer's protocol.
func (p *Producer) Capabilities() *capability.Set {
	caps := capability.NewSet()
	if p.simple {
		_ = caps.Set(SimpleStreamer, capability.Bool(true))
	}
	return caps
}

// Attach declares the ChannelStreaming protocol in the producer role for a Session, which must not be started.
func (p *Producer) Attach(s *session.Session) error {
	if err := s.Declare(Protocol, msgs.RoleProducer, p.Capabilities()); err != nil {
		return err
	}

	routes := []session.Route{
		{MessageType: MsgChannelStreamingStart, Handle: p.handleStart},
		{MessageType: MsgChannelStreamingStop, Handle: p.handleStop},
	}
	for _, r := range routes {
		r.Protocol = Protocol
		r.Role = msgs.RoleProducer
		r.Notification = true
		if err := s.Register(r); err != nil {
			return err
		}
	}

	p.session = s
	return nil
}

func (p *Producer) log() *log.Entry {
	return log.WithFields(log.Fields{
		"session":  p.session,
		"protocol": "streaming",
		"simple":   p.simple,
	})
}

func (p *Producer) handleStart(req *session.Request) error {
	start := req.Body().(*ChannelStreamingStart)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, info := range start.Channels {
		p.channels[info.ChannelID] = info.StartIndex.Item
	}

	p.log().WithField("channels", len(start.Channels)).Debug("Consumer started streaming")
	return nil
}

func (p *Producer) handleStop(req *session.Request) error {
	stop := req.Body().(*ChannelStreamingStop)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, id := range stop.Channels {
		delete(p.channels, id)
	}

	p.log().WithField("channels", len(stop.Channels)).Debug("Consumer stopped streaming")
	return nil
}

// Streaming checks if a channel is currently streamed.
func (p *Producer) Streaming(channelID int64) bool {
	if p.simple {
		return true
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, ok := p.channels[channelID]
	return ok
}

// accept filters items by their channel's start index.
func (p *Producer) accept(items []datatypes.DataItem) (accepted []datatypes.DataItem) {
	if p.simple {
		return items
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, item := range items {
		start, ok := p.channels[item.ChannelID]
		if !ok {
			continue
		}
		if !start.IsAbsent() && item.Index < start.Value {
			continue
		}
		accepted = append(accepted, item)
	}
	return
}

// Publish sends all items of streamed channels within one ChannelData message. The amount of sent items is
// returned, being zero if no item was streamed.
func (p *Producer) Publish(items ...datatypes.DataItem) (int, error) {
	if p.session == nil {
		return 0, protoerr.Violation(protoerr.CodeInvalidState, "producer is not attached to a session")
	}

	accepted := p.accept(items)
	if len(accepted) == 0 {
		return 0, nil
	}

	if _, err := p.session.Notify(Protocol, &ChannelData{Data: accepted}); err != nil {
		return 0, err
	}
	return len(accepted), nil
}
