// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery resolves rendezvous creation endpoints.
//
// Each provider implements rendezvous.CapabilityProvider. The HomeserverProvider asks a Matrix homeserver for its
// unstable features, the StaticProvider serves a fixed configuration and the LANProvider listens for relays announcing
// themselves through UDP multicast. The Manager is the counterpart of the LANProvider, used by a relay to publish
// its Announcements.
package discovery

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "224.23.23.42"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::2342"

	// port is the default multicast UDP port used for discovery.
	port = 35042
)
