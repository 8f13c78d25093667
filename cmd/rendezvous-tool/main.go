// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"

	"github.com/dtn7/rendezvous-go/pkg/discovery"
	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// toolConfig is shared between all subcommands and filled by the persistent flags.
type toolConfig struct {
	relay        string
	homeserver   string
	lan          time.Duration
	lanIPv6      bool
	logLevel     string
	pollInterval time.Duration

	// reasons receives the cancellation reason of the current Channel.
	reasons chan rendezvous.Reason
}

// newChannel for an existing channel URL or, if empty, for a channel to be created on the first send.
func (tc *toolConfig) newChannel(channelUrl string) (*rendezvous.Channel, error) {
	opts := []rendezvous.Option{
		rendezvous.WithTransport(rendezvous.NewHTTPTransport(http.DefaultClient)),
		rendezvous.WithPollInterval(tc.pollInterval),
		rendezvous.WithFailureListener(func(reason rendezvous.Reason) {
			select {
			case tc.reasons <- reason:
			default:
			}
		}),
	}

	if channelUrl != "" {
		return rendezvous.NewChannel(append(opts, rendezvous.WithURL(channelUrl))...)
	}

	var providers discovery.Chain
	if tc.homeserver != "" {
		hp, err := discovery.NewHomeserverProvider(tc.homeserver, http.DefaultClient)
		if err != nil {
			return nil, err
		}
		providers = append(providers, hp)
	}
	if tc.lan > 0 {
		providers = append(providers, discovery.NewLANProvider(tc.lan, tc.lanIPv6))
	}
	if len(providers) > 0 {
		opts = append(opts, rendezvous.WithCapabilityProvider(providers))
	}
	if tc.relay != "" {
		opts = append(opts, rendezvous.WithFallbackRelay(tc.relay))
	}

	return rendezvous.NewChannel(opts...)
}

// cancelled reports the reason why the Channel was cancelled as an error.
func (tc *toolConfig) cancelled() error {
	select {
	case reason := <-tc.reasons:
		return fmt.Errorf("rendezvous channel was cancelled: %v", reason)
	default:
		return fmt.Errorf("rendezvous channel was cancelled")
	}
}

func newRootCmd() *cobra.Command {
	tc := &toolConfig{reasons: make(chan rendezvous.Reason, 1)}

	root := &cobra.Command{
		Use:           "rendezvous-tool",
		Short:         "Exchange payloads over a rendezvous relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(tc.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&tc.relay, "relay", os.Getenv("RENDEZVOUS_RELAY"),
		"fallback relay endpoint for creating channels (env RENDEZVOUS_RELAY)")
	root.PersistentFlags().StringVar(&tc.homeserver, "homeserver", os.Getenv("RENDEZVOUS_HOMESERVER"),
		"homeserver base URL to discover a relay (env RENDEZVOUS_HOMESERVER)")
	root.PersistentFlags().DurationVar(&tc.lan, "lan", 0, "listen this long for relays announced in the local network")
	root.PersistentFlags().BoolVar(&tc.lanIPv6, "lan-ipv6", false, "use IPv6 multicast for local network discovery")
	root.PersistentFlags().StringVar(&tc.logLevel, "log-level", "warn", "logrus log level")
	root.PersistentFlags().DurationVar(&tc.pollInterval, "poll-interval", rendezvous.DefaultPollInterval,
		"delay between two polls while waiting for a payload")

	root.AddCommand(sendCmd(tc), recvCmd(tc), declineCmd(tc), exchangeCmd(tc))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
