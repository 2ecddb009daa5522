// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/protocol/streaming"
	"github.com/openetp/etp-go/pkg/session"
)

// parseChannel of the form "id" or "id@start-index".
func parseChannel(arg string) (info streaming.ChannelStreamingInfo, err error) {
	idStr, indexStr, hasIndex := strings.Cut(arg, "@")

	if info.ChannelID, err = strconv.ParseInt(idStr, 10, 64); err != nil {
		return
	}
	if hasIndex {
		var index int64
		if index, err = strconv.ParseInt(indexStr, 10, 64); err != nil {
			return
		}
		info.StartIndex = datatypes.StreamingStartIndex{Item: datatypes.Int64Index(index)}
	}
	return
}

// stream for the "stream" CLI option.
func stream(args []string) {
	if len(args) < 2 {
		printUsage()
	}

	var channels []streaming.ChannelStreamingInfo
	for _, arg := range args[1:] {
		info, err := parseChannel(arg)
		if err != nil {
			printFatal(err, "Parsing channel errored")
		}
		channels = append(channels, info)
	}

	var consumer *streaming.Consumer
	s := dial(args[0], func(s *session.Session) (err error) {
		consumer, err = streaming.AttachConsumer(s, 256)
		return
	})
	defer func() { _ = s.Close() }()

	if consumer.SimpleStreamer() {
		log.Info("Producer is a simple streamer and sends all of its channels")
	} else if err := consumer.Start(channels...); err != nil {
		printFatal(err, "Starting streaming errored")
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	for {
		select {
		case <-signalChan:
			log.Info("Received interrupt signal")
			if !consumer.SimpleStreamer() {
				ids := make([]int64, len(channels))
				for i, c := range channels {
					ids[i] = c.ChannelID
				}
				_ = consumer.Stop(ids...)
			}
			return

		case <-s.Done():
			log.WithError(s.Err()).Info("Session closed")
			return

		case item := <-consumer.Data():
			fmt.Printf("%d\t%d\t%g\n", item.ChannelID, item.Index, item.Value)
		}
	}
}
