// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// ContentType of payloads exchanged over a channel.
	ContentType = "text/plain"

	// DefaultPollInterval between two read attempts of Receive.
	DefaultPollInterval = time.Second
)

// Sleeper waits for the given duration or until the context is done. It is the only suspension point of Receive.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Channel is the client's session of one rendezvous channel.
//
// A Channel is meant to be driven by one caller, alternating between Send and Receive. Cancel might be called
// concurrently; the in-flight operation observes it at its next check.
type Channel struct {
	mutex sync.Mutex

	url       *url.URL
	etag      string
	expiresAt time.Time
	ready     bool
	cancelled bool

	fallback  *url.URL
	provider  CapabilityProvider
	onFailure FailureListener
	transport Transport

	sleep        Sleeper
	now          func() time.Time
	pollInterval time.Duration

	expiryTimerEnabled bool
	expiryTimer        *time.Timer
}

// Option configures a Channel on creation.
type Option func(*Channel) error

// WithURL configures an existing channel. No channel will be created and the Channel is ready.
func WithURL(channelUrl string) Option {
	return func(c *Channel) (err error) {
		c.url, err = parseAbsoluteUrl(channelUrl)
		return
	}
}

// WithFallbackRelay sets the creation endpoint used when no CapabilityProvider yields one.
func WithFallbackRelay(relayUrl string) Option {
	return func(c *Channel) (err error) {
		c.fallback, err = parseAbsoluteUrl(relayUrl)
		return
	}
}

// WithCapabilityProvider sets the CapabilityProvider to resolve the creation endpoint.
func WithCapabilityProvider(provider CapabilityProvider) Option {
	return func(c *Channel) error {
		c.provider = provider
		return nil
	}
}

// WithFailureListener registers the listener to be informed about the cancellation.
func WithFailureListener(listener FailureListener) Option {
	return func(c *Channel) error {
		c.onFailure = listener
		return nil
	}
}

// WithTransport replaces the default HTTPTransport.
func WithTransport(transport Transport) Option {
	return func(c *Channel) error {
		if transport == nil {
			return fmt.Errorf("%w: transport is nil", ErrConfiguration)
		}
		c.transport = transport
		return nil
	}
}

// WithPollInterval sets the delay between two read attempts.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Channel) error {
		if interval < 0 {
			return fmt.Errorf("%w: negative poll interval %v", ErrConfiguration, interval)
		}
		c.pollInterval = interval
		return nil
	}
}

// WithSleeper replaces the waiting primitive between two read attempts.
func WithSleeper(sleeper Sleeper) Option {
	return func(c *Channel) error {
		c.sleep = sleeper
		return nil
	}
}

// WithClock replaces time.Now, e.g., for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) error {
		c.now = now
		return nil
	}
}

// WithExpiryTimer enables or disables cancelling the Channel as expired as soon as the relay-declared expiry passes.
// It is enabled by default.
func WithExpiryTimer(enabled bool) Option {
	return func(c *Channel) error {
		c.expiryTimerEnabled = enabled
		return nil
	}
}

// NewChannel creates a new Channel. Either WithURL for an existing channel or WithFallbackRelay and/or
// WithCapabilityProvider to create a new channel on the first Send should be supplied.
func NewChannel(opts ...Option) (*Channel, error) {
	c := &Channel{
		transport:          NewHTTPTransport(nil),
		sleep:              sleepContext,
		now:                time.Now,
		pollInterval:       DefaultPollInterval,
		expiryTimerEnabled: true,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.ready = c.url != nil
	return c, nil
}

// URL of the channel or an empty string if it is not yet known.
func (c *Channel) URL() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.url == nil {
		return ""
	}
	return c.url.String()
}

// ETag is the last seen version tag.
func (c *Channel) ETag() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.etag
}

// ExpiresAt is the relay-declared expiry or the zero time if unknown.
func (c *Channel) ExpiresAt() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.expiresAt
}

// Ready is true if the channel's URL is known and the Channel was not cancelled.
func (c *Channel) Ready() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.ready
}

// Cancelled is true after the Channel's terminal transition. Callers should rely on the FailureListener instead of
// polling this flag.
func (c *Channel) Cancelled() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.cancelled
}

// Close releases the expiry timer. It neither cancels the Channel nor contacts the relay.
func (c *Channel) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.stopExpiryTimer()
	return nil
}

func (c *Channel) String() string {
	if u := c.URL(); u != "" {
		return fmt.Sprintf("Channel(%s)", u)
	}
	return "Channel(uninitialized)"
}

// expired checks if a known expiry has passed. The mutex must be held.
func (c *Channel) expired() bool {
	return !c.expiresAt.IsZero() && c.expiresAt.Before(c.now())
}

// armExpiryTimer starts a timer to cancel the Channel at its expiry. The mutex must be held.
func (c *Channel) armExpiryTimer() {
	if !c.expiryTimerEnabled || c.expiresAt.IsZero() {
		return
	}

	c.stopExpiryTimer()
	c.expiryTimer = time.AfterFunc(c.expiresAt.Sub(c.now()), func() {
		log.WithField("channel", c).Info("Rendezvous channel reached its expiry")
		c.Cancel(context.Background(), ReasonExpired)
	})
}

// stopExpiryTimer stops a running expiry timer. The mutex must be held.
func (c *Channel) stopExpiryTimer() {
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
		c.expiryTimer = nil
	}
}
