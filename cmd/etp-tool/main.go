// SPDX-FileCopyrightText: 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// etp-tool is a command line client for ETP servers.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/session"
)

const dialTimeout = 30 * time.Second

// printUsage of etp-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s discover|deleted|stream:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s discover websocket uri [scope [depth]]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists the resources and edges around the given URI, e.g., eml:/// for the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  default dataspace. The scope defaults to targets, the depth to 1.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s deleted websocket dataspace-uri\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists the deleted resources of a dataspace.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s stream websocket channel-id[@start-index]...\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the streamed data of the given channels until an interrupt.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "The ETP_ENCODING environment variable selects binary (default) or json.\n")

	os.Exit(1)
}

// printFatal of an error with a short context description and exits afterwards.
func printFatal(err error, msg string) {
	log.WithError(err).Fatal(msg)
}

// dial a WebSocket and negotiate a session.
func dial(url string, setup session.SetupFunc) *session.Session {
	conf := session.Configuration{
		ApplicationName:    "etp-tool",
		ApplicationVersion: "0.1.0",
	}
	if name := os.Getenv("ETP_ENCODING"); name != "" {
		enc, err := msgs.ParseEncoding(name)
		if err != nil {
			printFatal(err, "Unknown encoding")
		}
		conf.Encoding = enc
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	s, err := session.DialWebSocket(ctx, url, conf, setup)
	if err != nil {
		printFatal(err, "Establishing an ETP session errored")
	}

	log.WithFields(log.Fields{
		"session": s.ID(),
		"peer":    s.PeerApplication(),
	}).Debug("Established ETP session")
	return s
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "discover":
		discover(os.Args[2:])

	case "deleted":
		deleted(os.Args[2:])

	case "stream":
		stream(os.Args[2:])

	default:
		printUsage()
	}
}
