// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dtn7/rendezvous-go/pkg/discovery"
	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

func newTestChannel(t *testing.T, opts ...rendezvous.Option) *rendezvous.Channel {
	c, err := rendezvous.NewChannel(append([]rendezvous.Option{rendezvous.WithPollInterval(10 * time.Millisecond)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func receiveWithin(t *testing.T, c *rendezvous.Channel, expected string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if payload, err := c.Receive(ctx); err != nil {
		t.Fatal(err)
	} else if string(payload) != expected {
		t.Fatalf("received %q instead of %q", payload, expected)
	}
}

func TestRendezvousExchange(t *testing.T) {
	_, httpServer := startRelay(t, DefaultConfig())
	ctx := context.Background()

	reasons := make(chan rendezvous.Reason, 1)
	provider := discovery.StaticProvider{rendezvous.CapabilityCurrent: httpServer.URL + testPrefix}
	alice := newTestChannel(t,
		rendezvous.WithCapabilityProvider(provider),
		rendezvous.WithFailureListener(func(reason rendezvous.Reason) { reasons <- reason }))

	if err := alice.Send(ctx, []byte("offer")); err != nil {
		t.Fatal(err)
	}
	if !alice.Ready() {
		t.Fatal("creating Channel is not ready")
	}
	if alice.ExpiresAt().IsZero() {
		t.Fatal("relay did not declare an expiry")
	}

	bob := newTestChannel(t, rendezvous.WithURL(alice.URL()))

	receiveWithin(t, bob, "offer")
	if err := bob.Send(ctx, []byte("answer")); err != nil {
		t.Fatal(err)
	}

	receiveWithin(t, alice, "answer")
	if err := alice.Send(ctx, []byte("ack")); err != nil {
		t.Fatal(err)
	}

	receiveWithin(t, bob, "ack")

	bob.Cancel(ctx, rendezvous.ReasonUserDeclined)

	// The relay deleted the channel, Alice learns about it on her next poll.
	if payload, err := alice.Receive(ctx); err != nil {
		t.Fatal(err)
	} else if payload != nil {
		t.Fatalf("received %q from a deleted channel", payload)
	}

	select {
	case reason := <-reasons:
		if reason != rendezvous.ReasonUnknown {
			t.Fatalf("Alice's Channel was cancelled with %v", reason)
		}
	default:
		t.Fatal("Alice's listener was not called")
	}
}

func TestRendezvousConcurrentWrite(t *testing.T) {
	_, httpServer := startRelay(t, DefaultConfig())
	ctx := context.Background()

	alice := newTestChannel(t, rendezvous.WithFallbackRelay(httpServer.URL+testPrefix))
	if err := alice.Send(ctx, []byte("offer")); err != nil {
		t.Fatal(err)
	}

	bob := newTestChannel(t, rendezvous.WithURL(alice.URL()))
	receiveWithin(t, bob, "offer")

	// Alice writes again before Bob answered; Bob's answer must not overwrite it.
	if err := alice.Send(ctx, []byte("second offer")); err != nil {
		t.Fatal(err)
	}
	if err := bob.Send(ctx, []byte("answer")); !errors.Is(err, rendezvous.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	receiveWithin(t, bob, "second offer")
}

func TestRendezvousReceiveWaitsForPeer(t *testing.T) {
	_, httpServer := startRelay(t, DefaultConfig())
	ctx := context.Background()

	alice := newTestChannel(t, rendezvous.WithFallbackRelay(httpServer.URL+testPrefix))
	if err := alice.Send(ctx, []byte("offer")); err != nil {
		t.Fatal(err)
	}

	bob := newTestChannel(t, rendezvous.WithURL(alice.URL()))
	receiveWithin(t, bob, "offer")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = bob.Send(context.Background(), []byte("late answer"))
	}()

	receiveWithin(t, alice, "late answer")
}
