// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// send [url]: write stdin to an existing channel or create a new one and print its URL.
func sendCmd(tc *toolConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "send [url]",
		Short: "Send stdin, creating a new channel if no URL is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var channelUrl string
			if len(args) == 1 {
				channelUrl = args[0]
			}

			payload, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}

			c, err := tc.newChannel(channelUrl)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Send(cmd.Context(), payload); err != nil {
				return err
			}
			if c.Cancelled() {
				return tc.cancelled()
			}

			if channelUrl == "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.URL())
			}
			return nil
		},
	}
}

// recv url: wait for the next payload and write it to stdout.
func recvCmd(tc *toolConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "recv <url>",
		Short: "Wait for a payload on the channel and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := tc.newChannel(args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			payload, err := c.Receive(cmd.Context())
			if err != nil {
				return err
			} else if payload == nil {
				return tc.cancelled()
			}

			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}
}

// decline url: cancel the channel and ask the relay to delete it.
func declineCmd(tc *toolConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "decline <url>",
		Short: "Decline the channel, deleting it from the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := tc.newChannel(args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			c.Cancel(cmd.Context(), rendezvous.ReasonUserDeclined)
			return nil
		},
	}
}
