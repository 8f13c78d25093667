// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

// createResponse is the JSON body of newer relays, carrying the channel's URL instead of a Location header.
type createResponse struct {
	URL string `json:"url"`
}

// Send the payload. The first Send of a Channel without a URL creates the channel; every other Send replaces the
// channel's content, conditional on the last seen version tag.
//
// Send is a no-op for a cancelled Channel. If the relay reports the channel as gone, the Channel is cancelled and
// nil is returned.
func (c *Channel) Send(ctx context.Context, payload []byte) error {
	c.mutex.Lock()
	if c.cancelled {
		c.mutex.Unlock()
		return nil
	}
	target, etag := c.url, c.etag
	c.mutex.Unlock()

	req := &Request{
		Method: http.MethodPut,
		URL:    target,
		Header: make(http.Header),
		Body:   payload,
	}
	if target == nil {
		endpoint, err := c.creationEndpoint(ctx)
		if err != nil {
			return err
		}

		req.Method = http.MethodPost
		req.URL = endpoint
	}

	req.Header.Set("Content-Type", ContentType)
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	logger := log.WithFields(log.Fields{
		"method":   req.Method,
		"url":      req.URL.String(),
		"if-match": etag,
		"size":     len(payload),
	})
	logger.Debug("Sending rendezvous payload")

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("rendezvous %s %s: %w", req.Method, req.URL, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		logger.Info("Rendezvous channel is gone")
		c.Cancel(ctx, ReasonUnknown)
		return nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		logger.WithField("status", resp.StatusCode).Warn("Relay rejected rendezvous payload")
		return newStatusError(req, resp)
	}

	if req.Method == http.MethodPost {
		return c.handleCreated(resp, logger)
	}

	c.mutex.Lock()
	c.etag = resp.Header.Get("ETag")
	c.mutex.Unlock()

	logger.WithField("etag", resp.Header.Get("ETag")).Debug("Relay accepted rendezvous payload")
	return nil
}

// handleCreated inspects the relay's response to a create request.
func (c *Channel) handleCreated(resp *Response, logger *log.Entry) error {
	location, err := channelLocation(resp)
	if err != nil {
		return err
	}

	expiresAt, expiresErr := parseExpires(resp)
	if expiresErr != nil {
		logger.WithError(expiresErr).Warn("Ignoring unparsable Expires header")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.url = location
	c.etag = resp.Header.Get("ETag")
	if !expiresAt.IsZero() {
		c.expiresAt = expiresAt
	}

	// A concurrent Cancel during the create request wins.
	if c.cancelled {
		return nil
	}

	c.ready = true
	c.armExpiryTimer()

	logger.WithFields(log.Fields{
		"channel": location.String(),
		"etag":    c.etag,
		"expires": c.expiresAt,
	}).Info("Created rendezvous channel")
	return nil
}

// channelLocation resolves the created channel's URL from a Location header or, for newer relays, a JSON body.
func channelLocation(resp *Response) (*url.URL, error) {
	ref := resp.Header.Get("Location")
	if ref == "" && resp.mediaType() == "application/json" {
		var body createResponse
		if err := json.Unmarshal(resp.Body, &body); err == nil {
			ref = body.URL
		}
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: relay's create response carries no channel location", ErrConfiguration)
	}

	location, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid channel location %q: %v", ErrConfiguration, ref, err)
	}

	if resp.URL != nil {
		location = resp.URL.ResolveReference(location)
	}
	if !location.IsAbs() {
		return nil, fmt.Errorf("%w: channel location %q cannot be resolved", ErrConfiguration, ref)
	}
	return location, nil
}

// parseExpires of a response. A missing header results in the zero time.
func parseExpires(resp *Response) (expiresAt time.Time, err error) {
	if expires := resp.Header.Get("Expires"); expires != "" {
		expiresAt, err = http.ParseTime(expires)
	}
	return
}
