// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package relay implements a rendezvous relay, the HTTP counterpart of the rendezvous.Channel.
//
// A POST to the creation endpoint creates a new channel, holding the request's body. The channel's location is
// returned both as a Location header and within a JSON body. The channel can be read by GET, replaced by PUT and
// removed by DELETE. Each write results in a new entity tag; conditional requests based on If-Match and If-None-Match
// allow clients to detect concurrent writes and to long-poll for changes. Channels expire after a configured TTL.
//
// Channels are kept in a Store, either a MemoryStore or a BadgerStore for persistence across restarts.
package relay
