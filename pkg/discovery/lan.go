// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// LANProvider listens for relays announced by a Manager within the local network.
//
// The first CreationEndpoint call listens for the configured time limit; its results are reused afterwards.
type LANProvider struct {
	timeLimit time.Duration
	ipVersion peerdiscovery.IPVersion

	mutex      sync.Mutex
	discovered []peerdiscovery.Discovered
	done       bool
}

// NewLANProvider which listens for timeLimit on either IPv4 or IPv6 multicast.
func NewLANProvider(timeLimit time.Duration, ipv6 bool) *LANProvider {
	lp := &LANProvider{
		timeLimit: timeLimit,
		ipVersion: peerdiscovery.IPv4,
	}
	if ipv6 {
		lp.ipVersion = peerdiscovery.IPv6
	}
	return lp
}

// CreationEndpoint of the first discovered relay announcing the requested Capability.
func (lp *LANProvider) CreationEndpoint(ctx context.Context, capability rendezvous.Capability) (string, bool, error) {
	lp.mutex.Lock()
	defer lp.mutex.Unlock()

	if !lp.done {
		discovered, err := lp.discover(ctx)
		if err != nil {
			return "", false, err
		}

		lp.discovered = discovered
		lp.done = true
	}

	endpoint, ok := endpointFor(lp.discovered, capability)
	return endpoint, ok, nil
}

func (lp *LANProvider) discover(ctx context.Context) ([]peerdiscovery.Discovered, error) {
	multicastAddress := address4
	if lp.ipVersion == peerdiscovery.IPv6 {
		multicastAddress = address6
	}

	// An empty announcement list, parsable by other listeners.
	query, err := MarshalAnnouncements(nil)
	if err != nil {
		return nil, err
	}

	settings := peerdiscovery.Settings{
		Limit:            -1,
		Port:             fmt.Sprintf("%d", port),
		MulticastAddress: multicastAddress,
		Payload:          query,
		Delay:            250 * time.Millisecond,
		TimeLimit:        lp.timeLimit,
		AllowSelf:        true,
		IPVersion:        lp.ipVersion,
	}

	type result struct {
		discovered []peerdiscovery.Discovered
		err        error
	}
	resultChan := make(chan result, 1)

	go func() {
		discovered, err := peerdiscovery.Discover(settings)
		resultChan <- result{discovered, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case r := <-resultChan:
		if r.err != nil {
			return nil, r.err
		}

		log.WithFields(log.Fields{
			"peers":      len(r.discovered),
			"time limit": lp.timeLimit,
		}).Debug("Finished listening for relay announcements")
		return r.discovered, nil
	}
}

// endpointFor returns the first announced endpoint for a Capability.
func endpointFor(discovered []peerdiscovery.Discovered, capability rendezvous.Capability) (string, bool) {
	for _, peer := range discovered {
		announcements, err := UnmarshalAnnouncements(peer.Payload)
		if err != nil {
			log.WithError(err).WithField("peer", peer.Address).Debug("Ignoring unparsable multicast package")
			continue
		}

		for _, announcement := range announcements {
			if announcement.Capability == capability {
				log.WithFields(log.Fields{
					"peer":         peer.Address,
					"announcement": announcement,
				}).Debug("Found relay announcement")
				return announcement.Endpoint, true
			}
		}
	}

	return "", false
}
