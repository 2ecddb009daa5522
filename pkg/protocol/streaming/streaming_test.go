// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package streaming

import (
	"testing"
	"time"

	"github.com/openetp/etp-go/internal/etptest"
	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/session"
)

func streamingPair(t *testing.T, enc msgs.Encoding, producer *Producer) *Consumer {
	var consumer *Consumer
	consumerSetup := func(s *session.Session) (err error) {
		consumer, err = AttachConsumer(s, 64)
		return
	}

	etptest.Pair(t, etptest.Conf(enc), etptest.Conf(enc), consumerSetup, producer.Attach)
	return consumer
}

func waitStreaming(t *testing.T, p *Producer, channelID int64, streaming bool) {
	deadline := time.After(5 * time.Second)
	for p.Streaming(channelID) != streaming {
		select {
		case <-deadline:
			t.Fatalf("channel %d never reached streaming state %t", channelID, streaming)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func receive(t *testing.T, c *Consumer) datatypes.DataItem {
	select {
	case item := <-c.Data():
		return item
	case <-time.After(5 * time.Second):
		t.Fatal("timeout while waiting for data")
		return datatypes.DataItem{}
	}
}

func TestStreamingStartStop(t *testing.T) {
	tests := []struct {
		name string
		enc  msgs.Encoding
	}{
		{"binary", msgs.EncodingBinary},
		{"json", msgs.EncodingJSON},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			producer := NewProducer(false)
			consumer := streamingPair(t, test.enc, producer)

			if consumer.SimpleStreamer() {
				t.Fatal("producer is no simple streamer")
			}

			err := consumer.Start(
				ChannelStreamingInfo{ChannelID: 1, StartIndex: datatypes.StreamingStartIndex{Item: datatypes.Int64Index(10)}},
				ChannelStreamingInfo{ChannelID: 2})
			if err != nil {
				t.Fatal(err)
			}
			waitStreaming(t, producer, 1, true)
			waitStreaming(t, producer, 2, true)

			n, err := producer.Publish(
				datatypes.DataItem{ChannelID: 1, Index: 5, Value: 0.5},
				datatypes.DataItem{ChannelID: 1, Index: 10, Value: 1.0},
				datatypes.DataItem{ChannelID: 2, Index: 1, Value: 2.0},
				datatypes.DataItem{ChannelID: 3, Index: 20, Value: 3.0})
			if err != nil {
				t.Fatal(err)
			}
			if n != 2 {
				t.Fatalf("expected 2 published items, got %d", n)
			}

			expected := []datatypes.DataItem{
				{ChannelID: 1, Index: 10, Value: 1.0},
				{ChannelID: 2, Index: 1, Value: 2.0},
			}
			for _, exp := range expected {
				if item := receive(t, consumer); item != exp {
					t.Fatalf("expected %v, got %v", exp, item)
				}
			}

			if err := consumer.Stop(1); err != nil {
				t.Fatal(err)
			}
			waitStreaming(t, producer, 1, false)

			if n, err := producer.Publish(datatypes.DataItem{ChannelID: 1, Index: 11}); err != nil || n != 0 {
				t.Fatalf("stopped channel was published: %d, %v", n, err)
			}
		})
	}
}

func TestStreamingSimpleStreamer(t *testing.T) {
	producer := NewProducer(true)
	consumer := streamingPair(t, msgs.EncodingBinary, producer)

	if !consumer.SimpleStreamer() {
		t.Fatal("producer is a simple streamer")
	}

	items := []datatypes.DataItem{
		{ChannelID: 7, Index: 1, Value: 1.5},
		{ChannelID: 8, Index: 2, Value: -1.5},
	}
	if n, err := producer.Publish(items...); err != nil || n != len(items) {
		t.Fatalf("publishing failed: %d, %v", n, err)
	}

	for _, exp := range items {
		if item := receive(t, consumer); item != exp {
			t.Fatalf("expected %v, got %v", exp, item)
		}
	}
}

func TestProducerUnattached(t *testing.T) {
	if _, err := NewProducer(true).Publish(datatypes.DataItem{}); err == nil {
		t.Fatal("publishing without a session succeeded")
	}
}
