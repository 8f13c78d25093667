// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// Capability names a variant of the rendezvous creation endpoint a server might support.
type Capability string

const (
	// CapabilityCurrent is the current rendezvous protocol, MSC4108.
	CapabilityCurrent Capability = "org.matrix.msc4108"

	// CapabilityLegacy is the older, unstable rendezvous protocol, MSC3886.
	CapabilityLegacy Capability = "org.matrix.msc3886"
)

// Capabilities in the order they are probed.
var Capabilities = []Capability{CapabilityCurrent, CapabilityLegacy}

// CapabilityProvider resolves the creation endpoint for a Capability. If the Capability is not supported, ok is
// false. Errors are not fatal for a Channel; it falls back to its static relay.
type CapabilityProvider interface {
	CreationEndpoint(ctx context.Context, capability Capability) (endpoint string, ok bool, err error)
}

// CapabilityProviderFunc adapts a function to the CapabilityProvider interface.
type CapabilityProviderFunc func(ctx context.Context, capability Capability) (string, bool, error)

// CreationEndpoint calls f(ctx, capability).
func (f CapabilityProviderFunc) CreationEndpoint(ctx context.Context, capability Capability) (string, bool, error) {
	return f(ctx, capability)
}

// parseAbsoluteUrl parses a URL which must contain both a scheme and a host.
func parseAbsoluteUrl(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: URL %q is not absolute", ErrConfiguration, raw)
	}
	return u, nil
}

// creationEndpoint probes the CapabilityProvider and falls back to the static relay.
func (c *Channel) creationEndpoint(ctx context.Context) (*url.URL, error) {
	if c.provider != nil {
	probe:
		for _, capability := range Capabilities {
			logger := log.WithField("capability", capability)

			endpoint, ok, err := c.provider.CreationEndpoint(ctx, capability)
			switch {
			case err != nil:
				logger.WithError(err).Warn("Failed to discover rendezvous capability, using fallback relay")
				break probe

			case !ok:
				logger.Debug("Rendezvous capability is not supported")
				continue
			}

			if u, err := parseAbsoluteUrl(endpoint); err != nil {
				logger.WithError(err).WithField("endpoint", endpoint).Warn("Discovered rendezvous endpoint is invalid")
			} else {
				logger.WithField("endpoint", u).Debug("Discovered rendezvous creation endpoint")
				return u, nil
			}
		}
	}

	if c.fallback != nil {
		return c.fallback, nil
	}
	return nil, fmt.Errorf("%w: no rendezvous creation endpoint available", ErrConfiguration)
}
