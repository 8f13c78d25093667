// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"fmt"
	"time"
)

// ChannelItem is the stored state of one rendezvous channel.
type ChannelItem struct {
	Id string `badgerhold:"key"`

	Payload     []byte
	ContentType string
	ETag        string

	Created time.Time
	Updated time.Time
	Expires time.Time `badgerholdIndex:"Expires"`
}

// Expired checks if the ChannelItem's lifetime has ended at the given time.
func (ci ChannelItem) Expired(now time.Time) bool {
	return !ci.Expires.After(now)
}

func (ci ChannelItem) String() string {
	return fmt.Sprintf("ChannelItem(%s,%s,%d bytes)", ci.Id, ci.ETag, len(ci.Payload))
}
