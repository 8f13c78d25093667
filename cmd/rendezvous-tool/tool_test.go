// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/dtn7/rendezvous-go/pkg/relay"
	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

const testPrefix = "/_matrix/client/unstable/org.matrix.msc4108/rendezvous"

func startRelay(t *testing.T) string {
	r := mux.NewRouter()
	s, err := relay.NewServer(r.PathPrefix(testPrefix).Subrouter(), relay.NewMemoryStore(), relay.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	httpServer := httptest.NewServer(r)
	t.Cleanup(func() {
		httpServer.Close()
		s.Close()
	})
	return httpServer.URL + testPrefix
}

func runTool(t *testing.T, stdin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer

	root := newRootCmd()
	root.SetArgs(append([]string{"--poll-interval", "10ms"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func newTestChannel(t *testing.T, opts ...rendezvous.Option) *rendezvous.Channel {
	c, err := rendezvous.NewChannel(append([]rendezvous.Option{rendezvous.WithPollInterval(10 * time.Millisecond)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestToolSendRecvDecline(t *testing.T) {
	endpoint := startRelay(t)

	out, err := runTool(t, "offer", "--relay", endpoint, "send")
	if err != nil {
		t.Fatal(err)
	}
	channelUrl := strings.TrimSpace(out)
	if !strings.HasPrefix(channelUrl, endpoint+"/") {
		t.Fatalf("send printed %q, expected a channel below %q", out, endpoint)
	}

	if out, err := runTool(t, "", "recv", channelUrl); err != nil {
		t.Fatal(err)
	} else if out != "offer" {
		t.Fatalf("received %q", out)
	}

	if out, err := runTool(t, "answer", "send", channelUrl); err != nil {
		t.Fatal(err)
	} else if out != "" {
		t.Fatalf("sending to an existing channel printed %q", out)
	}

	if out, err := runTool(t, "", "recv", channelUrl); err != nil {
		t.Fatal(err)
	} else if out != "answer" {
		t.Fatalf("received %q", out)
	}

	if _, err := runTool(t, "", "decline", channelUrl); err != nil {
		t.Fatal(err)
	}

	if _, err := runTool(t, "", "recv", channelUrl); err == nil {
		t.Fatal("receiving from a declined channel did not fail")
	} else if !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestToolSendWithoutRelay(t *testing.T) {
	t.Setenv("RENDEZVOUS_RELAY", "")
	t.Setenv("RENDEZVOUS_HOMESERVER", "")

	if _, err := runTool(t, "offer", "send"); !errors.Is(err, rendezvous.ErrConfiguration) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestToolArgs(t *testing.T) {
	tests := [][]string{
		{"recv"},
		{"decline"},
		{"send", "a", "b"},
		{"exchange"},
		{"--log-level", "chatty", "decline", "http://localhost/"},
	}

	for _, args := range tests {
		if _, err := runTool(t, "", args...); err == nil {
			t.Fatalf("%v did not fail", args)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExchangeInitiator(t *testing.T) {
	endpoint := startRelay(t)
	directory := t.TempDir()

	alice := newTestChannel(t, rendezvous.WithFallbackRelay(endpoint))
	ex, err := newExchange(directory, alice, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ex.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go func() { errs <- ex.run(ctx, true) }()

	// Move the file into place at once, as documented for the exchange.
	tmpFile := filepath.Join(t.TempDir(), "offer")
	if err := os.WriteFile(tmpFile, []byte("offer"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmpFile, filepath.Join(directory, "offer")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "channel creation", alice.Ready)

	bob := newTestChannel(t, rendezvous.WithURL(alice.URL()))
	recvCtx, recvCancel := context.WithTimeout(ctx, 5*time.Second)
	defer recvCancel()

	if payload, err := bob.Receive(recvCtx); err != nil {
		t.Fatal(err)
	} else if string(payload) != "offer" {
		t.Fatalf("received %q", payload)
	}
	if err := bob.Send(recvCtx, []byte("answer")); err != nil {
		t.Fatal(err)
	}

	receivedFile := filepath.Join(directory, "received-001")
	waitFor(t, "received file", func() bool {
		data, err := os.ReadFile(receivedFile)
		return err == nil && string(data) == "answer"
	})

	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestExchangeDeclined(t *testing.T) {
	endpoint := startRelay(t)
	ctx := context.Background()

	alice := newTestChannel(t, rendezvous.WithFallbackRelay(endpoint))
	if err := alice.Send(ctx, []byte("offer")); err != nil {
		t.Fatal(err)
	}
	alice.Cancel(ctx, rendezvous.ReasonUserDeclined)

	bob := newTestChannel(t, rendezvous.WithURL(alice.URL()))
	ex, err := newExchange(t.TempDir(), bob, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ex.Close()

	if err := ex.run(ctx, false); !errors.Is(err, errChannelClosed) {
		t.Fatalf("expected a closed channel, got %v", err)
	}
	if !bob.Cancelled() {
		t.Fatal("channel is not cancelled")
	}
}
