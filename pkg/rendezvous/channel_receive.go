// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Receive long-polls the channel until the other party wrote a new payload.
//
// A nil payload without an error is returned if the Channel is or gets cancelled, e.g., because the relay reports
// the channel as gone. The context aborts the waiting between two polls; the relay is responsible for expiring the
// channel otherwise.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	c.mutex.Lock()
	target := c.url
	c.mutex.Unlock()

	if target == nil {
		return nil, ErrNotReady
	}

	logger := log.WithField("url", target.String())

	for {
		c.mutex.Lock()
		cancelled, etag := c.cancelled, c.etag
		c.mutex.Unlock()

		if cancelled {
			return nil, nil
		}

		req := &Request{
			Method: http.MethodGet,
			URL:    target,
			Header: make(http.Header),
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		logger.WithField("if-none-match", etag).Debug("Polling rendezvous channel")

		resp, err := c.transport.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rendezvous %s %s: %w", req.Method, req.URL, err)
		}

		respEtag := resp.Header.Get("ETag")

		switch {
		case resp.StatusCode == http.StatusNotFound:
			logger.Info("Rendezvous channel is gone")
			c.Cancel(ctx, ReasonUnknown)
			return nil, nil

		case resp.mediaType() != ContentType:
			// Not a payload, e.g., 304 Not Modified. Only its version tag is of interest.
			if respEtag != "" {
				c.setETag(respEtag)
			}

		case resp.StatusCode == http.StatusOK:
			if respEtag == "" {
				logger.Warn("Received rendezvous payload without an ETag")
			}
			c.setETag(respEtag)

			logger.WithFields(log.Fields{
				"etag": respEtag,
				"size": len(resp.Body),
			}).Debug("Received rendezvous payload")
			return resp.Body, nil

		default:
			logger.WithField("status", resp.StatusCode).Debug("Unexpected status while polling rendezvous channel")
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
}

func (c *Channel) setETag(etag string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.etag = etag
}
