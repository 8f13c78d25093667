// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rendezvous implements the client side of an HTTP rendezvous channel.
//
// Two parties, neither of them reachable from the outside, exchange a small number of opaque text messages through a
// third-party relay. One party creates the channel by POSTing its first message to the relay's creation endpoint and
// receives the channel's URL in return. Afterwards both parties read the channel by long-polling it with conditional
// GET requests and write it with conditional PUT requests. The relay's entity tags act as version tags, such that a
// write never silently overwrites a message the writer has not seen.
//
// The Channel type is the session for one such exchange. It owns the channel's URL, the last seen version tag, the
// relay-declared expiry and the lifecycle flags. Its Cancel method is the single terminal transition; a registered
// FailureListener is informed exactly once about the reason.
//
// The creation endpoint is either resolved through a CapabilityProvider, e.g., a Matrix homeserver announcing support
// for MSC4108, or taken from a statically configured fallback relay.
package rendezvous
