// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/rendezvous-go/pkg/discovery"
	"github.com/dtn7/rendezvous-go/pkg/relay"
	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// daemon bundles the relay with its HTTP server, Store and optional LAN announcements.
type daemon struct {
	conf tomlConfig

	store      relay.Store
	relay      *relay.Server
	httpServer *http.Server
	listener   net.Listener
	announcer  *discovery.Manager
}

// newDaemon creates all components of a validated configuration without starting to listen.
func newDaemon(conf tomlConfig) (d *daemon, err error) {
	d = &daemon{conf: conf}

	relayConfig, err := conf.relayConfig()
	if err != nil {
		return nil, err
	}

	switch conf.Store.Type {
	case "badger":
		d.store, err = relay.NewBadgerStore(conf.Store.Path)
	default:
		d.store = relay.NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	subrouter := router.PathPrefix(strings.TrimRight(conf.Relay.Path, "/")).Subrouter()
	if d.relay, err = relay.NewServer(subrouter, d.store, relayConfig); err != nil {
		_ = d.store.Close()
		return nil, err
	}

	d.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return d, nil
}

// start listening and, if configured, announcing the relay.
func (d *daemon) start() (err error) {
	if d.listener, err = net.Listen("tcp", d.conf.Relay.Listen); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"listen": d.listener.Addr().String(),
		"path":   d.conf.Relay.Path,
	}).Info("Relay is listening")

	go func() {
		if err := d.httpServer.Serve(d.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server errored")
		}
	}()

	if d.conf.Announce.Enabled {
		announcements := []discovery.Announcement{{
			Capability: rendezvous.CapabilityCurrent,
			Endpoint:   strings.TrimRight(d.conf.Relay.PublicUrl, "/") + d.conf.Relay.Path,
		}}

		d.announcer, err = discovery.NewManager(
			announcements, time.Duration(d.conf.Announce.Interval)*time.Second,
			d.conf.Announce.IPv4, d.conf.Announce.IPv6)
	}
	return
}

// Close all components, collecting their errors.
func (d *daemon) Close() error {
	var errs error

	if d.announcer != nil {
		d.announcer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.httpServer.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}

	d.relay.Close()

	if err := d.store.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs
}
