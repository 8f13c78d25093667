// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/rendezvous-go/pkg/relay"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging  logConf
	Relay    relayConf
	Store    storeConf
	Announce announceConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// relayConf describes the Relay-configuration block.
type relayConf struct {
	Listen        string
	Path          string
	TTL           string `toml:"ttl"`
	MaxPayload    int64  `toml:"max-payload"`
	SweepInterval string `toml:"sweep-interval"`
	PublicUrl     string `toml:"public-url"`
}

// storeConf describes the Store-configuration block.
type storeConf struct {
	Type string
	Path string
}

// announceConf describes the Announce-configuration block for LAN discovery.
type announceConf struct {
	Enabled  bool
	IPv4     bool
	IPv6     bool
	Interval uint
}

const defaultPath = "/_matrix/client/unstable/org.matrix.msc4108/rendezvous"

// parseConfig reads a TOML configuration file and fills in defaults.
func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if conf.Relay.Path == "" {
		conf.Relay.Path = defaultPath
	}
	if conf.Store.Type == "" {
		conf.Store.Type = "memory"
	}
	if conf.Announce.Interval == 0 {
		conf.Announce.Interval = 10
	}
	return
}

// relayConfig converts the Relay-configuration block, starting from relay.DefaultConfig.
func (conf tomlConfig) relayConfig() (relayConfig relay.Config, err error) {
	relayConfig = relay.DefaultConfig()

	if conf.Relay.TTL != "" {
		if relayConfig.TTL, err = time.ParseDuration(conf.Relay.TTL); err != nil {
			err = fmt.Errorf("relay.ttl: %w", err)
			return
		}
	}
	if conf.Relay.SweepInterval != "" {
		if relayConfig.SweepInterval, err = time.ParseDuration(conf.Relay.SweepInterval); err != nil {
			err = fmt.Errorf("relay.sweep-interval: %w", err)
			return
		}
	}
	if conf.Relay.MaxPayload != 0 {
		relayConfig.MaxPayloadSize = conf.Relay.MaxPayload
	}
	relayConfig.PublicURL = conf.Relay.PublicUrl
	return
}

// validate the configuration and report all problems at once.
func (conf tomlConfig) validate() error {
	var errs error

	if conf.Relay.Listen == "" {
		errs = multierror.Append(errs, fmt.Errorf("relay.listen is empty"))
	}
	if !strings.HasPrefix(conf.Relay.Path, "/") {
		errs = multierror.Append(errs, fmt.Errorf("relay.path %q must start with a slash", conf.Relay.Path))
	}

	if relayConfig, err := conf.relayConfig(); err != nil {
		errs = multierror.Append(errs, err)
	} else {
		if relayConfig.TTL <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("relay.ttl must be positive"))
		}
		if relayConfig.MaxPayloadSize <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("relay.max-payload must be positive"))
		}
		if relayConfig.SweepInterval != 0 && relayConfig.SweepInterval < time.Second {
			errs = multierror.Append(errs, fmt.Errorf("relay.sweep-interval must be at least one second"))
		}
	}

	switch conf.Store.Type {
	case "memory":
	case "badger":
		if conf.Store.Path == "" {
			errs = multierror.Append(errs, fmt.Errorf("store.path is empty"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown store.type %q", conf.Store.Type))
	}

	if conf.Relay.PublicUrl != "" || conf.Announce.Enabled {
		if u, err := url.Parse(conf.Relay.PublicUrl); err != nil || !u.IsAbs() || u.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("relay.public-url must be an absolute URL"))
		}
	}
	if conf.Announce.Enabled {
		if !conf.Announce.IPv4 && !conf.Announce.IPv6 {
			errs = multierror.Append(errs, fmt.Errorf("announcing requires announce.ipv4 or announce.ipv6"))
		}
	}

	return errs
}

// configureLogging for logrus based on the Logging-configuration block.
func configureLogging(conf logConf) {
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
