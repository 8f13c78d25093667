// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
)

// probeRecorder is a CapabilityProvider answering from a map and recording each probe.
type probeRecorder struct {
	endpoints map[Capability]string
	err       error
	probes    []Capability
}

func (pr *probeRecorder) CreationEndpoint(_ context.Context, capability Capability) (string, bool, error) {
	pr.probes = append(pr.probes, capability)
	if pr.err != nil {
		return "", false, pr.err
	}

	endpoint, ok := pr.endpoints[capability]
	return endpoint, ok, nil
}

func TestChannelCreationEndpoint(t *testing.T) {
	const (
		current  = "https://hs.example.org/_matrix/client/unstable/org.matrix.msc4108/rendezvous"
		legacy   = "https://hs.example.org/_matrix/client/unstable/org.matrix.msc3886/rendezvous"
		fallback = "https://fallback.example.org/rendezvous"
	)

	tests := []struct {
		name           string
		provider       *probeRecorder
		expected       string
		expectedProbes []Capability
	}{
		{
			name:           "current",
			provider:       &probeRecorder{endpoints: map[Capability]string{CapabilityCurrent: current, CapabilityLegacy: legacy}},
			expected:       current,
			expectedProbes: []Capability{CapabilityCurrent},
		},
		{
			name:           "legacy",
			provider:       &probeRecorder{endpoints: map[Capability]string{CapabilityLegacy: legacy}},
			expected:       legacy,
			expectedProbes: []Capability{CapabilityCurrent, CapabilityLegacy},
		},
		{
			name:           "unsupported",
			provider:       &probeRecorder{},
			expected:       fallback,
			expectedProbes: []Capability{CapabilityCurrent, CapabilityLegacy},
		},
		{
			name:           "invalid endpoint",
			provider:       &probeRecorder{endpoints: map[Capability]string{CapabilityCurrent: "/relative", CapabilityLegacy: legacy}},
			expected:       legacy,
			expectedProbes: []Capability{CapabilityCurrent, CapabilityLegacy},
		},
		{
			name:           "discovery error",
			provider:       &probeRecorder{err: errors.New("homeserver unreachable")},
			expected:       fallback,
			expectedProbes: []Capability{CapabilityCurrent},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			mt := newMockTransport(respond(http.StatusCreated, "", "Location", "channel"))
			c := newTestChannel(t, mt, WithCapabilityProvider(test.provider), WithFallbackRelay(fallback))

			if err := c.Send(context.Background(), []byte("hello")); err != nil {
				t.Fatal(err)
			}

			reqs := mt.recorded()
			if l := len(reqs); l != 1 {
				t.Fatalf("%d requests instead of 1", l)
			}
			if u := reqs[0].URL.String(); u != test.expected {
				t.Fatalf("channel was created at %q, expected %q", u, test.expected)
			}
			if !reflect.DeepEqual(test.provider.probes, test.expectedProbes) {
				t.Fatalf("probed %v, expected %v", test.provider.probes, test.expectedProbes)
			}
		})
	}
}

func TestChannelCreationEndpointWithoutFallback(t *testing.T) {
	mt := newMockTransport()
	provider := CapabilityProviderFunc(func(context.Context, Capability) (string, bool, error) {
		return "", false, nil
	})
	c := newTestChannel(t, mt, WithCapabilityProvider(provider))

	if err := c.Send(context.Background(), []byte("hello")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if l := len(mt.recorded()); l != 0 {
		t.Fatalf("%d requests were issued", l)
	}
}
