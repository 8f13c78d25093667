// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Cancel the Channel. This is the Channel's only terminal transition and always succeeds locally.
//
// An unknown reason is refined to ReasonExpired if the relay-declared expiry has passed. The FailureListener is
// called synchronously with the refined reason. If the user declined, the channel is deleted on the relay on a best
// effort basis. Only the first call has an effect; later calls are ignored.
func (c *Channel) Cancel(ctx context.Context, reason Reason) {
	c.mutex.Lock()
	if c.cancelled {
		c.mutex.Unlock()
		log.WithField("reason", reason).Debug("Rendezvous channel is already cancelled")
		return
	}

	if reason == ReasonUnknown && c.expired() {
		reason = ReasonExpired
	}

	c.cancelled = true
	c.ready = false
	c.stopExpiryTimer()

	target, listener := c.url, c.onFailure
	c.mutex.Unlock()

	logger := log.WithFields(log.Fields{
		"channel": c,
		"reason":  reason,
	})
	logger.Info("Cancelled rendezvous channel")

	if listener != nil {
		listener(reason)
	}

	if reason != ReasonUserDeclined || target == nil {
		return
	}

	req := &Request{
		Method: http.MethodDelete,
		URL:    target,
		Header: make(http.Header),
	}
	if resp, err := c.transport.Do(ctx, req); err != nil {
		logger.WithError(err).Warn("Failed to delete rendezvous channel")
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WithError(newStatusError(req, resp)).Warn("Relay refused to delete rendezvous channel")
	} else {
		logger.Debug("Deleted rendezvous channel")
	}
}
