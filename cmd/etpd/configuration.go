// SPDX-FileCopyrightText: 2019, 2020, 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/openetp/etp-go/pkg/capability"
	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protocol/discovery"
	"github.com/openetp/etp-go/pkg/protocol/streaming"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core         coreConf
	Logging      logConf
	Listen       listenConf
	Capabilities capability.Endpoint
	Catalog      catalogConf
	Protocol     []protocolConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Store           string
	ApplicationName string `toml:"application-name"`
	Encoding        string
	HandlerTimeout  string `toml:"handler-timeout"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// listenConf describes the HTTP server, serving the WebSocket endpoint.
type listenConf struct {
	Address string
	Path    string
	Metrics bool
}

// catalogConf describes the catalog's import directory and its tombstone handling.
type catalogConf struct {
	Import             string
	TombstoneRetention string `toml:"tombstone-retention"`
}

// protocolConf describes an offered protocol, used for each "protocol" block.
type protocolConf struct {
	Name             string
	MaxResponseCount int64 `toml:"max-response-count"`
	SimpleStreamer   bool  `toml:"simple-streamer"`
}

// id of the configured protocol.
func (pc protocolConf) id() (int32, error) {
	switch pc.Name {
	case "discovery":
		return discovery.Protocol, nil
	case "streaming":
		return streaming.Protocol, nil
	default:
		return 0, fmt.Errorf("unknown protocol.name \"%s\"", pc.Name)
	}
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseDuration of an optional configuration value.
func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	return time.ParseDuration(value)
}

// parseConfig reads and checks the TOML configuration.
func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if conf.Core.Store == "" {
		err = fmt.Errorf("core.store is empty")
		return
	}
	if conf.Core.ApplicationName == "" {
		conf.Core.ApplicationName = "etpd"
	}
	if conf.Core.Encoding != "" {
		if _, err = msgs.ParseEncoding(conf.Core.Encoding); err != nil {
			return
		}
	}

	if conf.Listen.Address == "" {
		conf.Listen.Address = ":9002"
	}
	if conf.Listen.Path == "" {
		conf.Listen.Path = "/etp"
	}

	if len(conf.Protocol) == 0 {
		err = fmt.Errorf("no protocol is configured")
		return
	}
	seen := make(map[int32]bool)
	for _, pc := range conf.Protocol {
		id, idErr := pc.id()
		if idErr != nil {
			err = idErr
			return
		}
		if seen[id] {
			err = fmt.Errorf("protocol \"%s\" is configured twice", pc.Name)
			return
		}
		seen[id] = true
	}

	if err = capability.EndpointSchema.Check(conf.Capabilities.ToSet()); err != nil {
		return
	}
	return
}
