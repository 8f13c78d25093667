// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// errChannelClosed is returned by the exchange if the Channel was cancelled, e.g., declined by the other side.
var errChannelClosed = errors.New("rendezvous channel closed")

// exchange payloads between a directory and a rendezvous Channel, taking turns.
//
// While sending, the next new file dropped into the directory is sent. While receiving, the next payload is stored
// as a new file in the directory. Files should be moved into the directory at once, empty files are skipped.
type exchange struct {
	directory  string
	channel    *rendezvous.Channel
	knownFiles sync.Map
	watcher    *fsnotify.Watcher
	received   int

	// out receives the channel URL after the first payload created a new channel.
	out io.Writer
}

// exchange [url] directory
func exchangeCmd(tc *toolConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "exchange [url] <directory>",
		Short: "Take turns sending new files from a directory and storing received payloads there",
		Long: "Without an URL, the first file dropped into the directory creates a new channel whose URL is " +
			"printed. With an URL, the exchange starts by waiting for the other side's payload.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var channelUrl, directory string
			if len(args) == 2 {
				channelUrl, directory = args[0], args[1]
			} else {
				directory = args[0]
			}

			c, err := tc.newChannel(channelUrl)
			if err != nil {
				return err
			}
			defer c.Close()

			ex, err := newExchange(directory, c, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer ex.Close()

			err = ex.run(cmd.Context(), channelUrl == "")
			if errors.Is(err, errChannelClosed) {
				return tc.cancelled()
			} else if errors.Is(err, context.Canceled) {
				log.Info("Received interrupt signal")
				c.Cancel(context.Background(), rendezvous.ReasonUserCancelled)
				return nil
			}
			return err
		},
	}
}

// newExchange starts watching the directory. Files created afterwards are candidates for sending.
func newExchange(directory string, channel *rendezvous.Channel, out io.Writer) (ex *exchange, err error) {
	ex = &exchange{
		directory: directory,
		channel:   channel,
		out:       out,
	}

	if ex.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("starting file watcher errored: %w", err)
	}
	if err = ex.watcher.Add(directory); err != nil {
		_ = ex.watcher.Close()
		return nil, fmt.Errorf("adding directory to file watcher errored: %w", err)
	}
	return ex, nil
}

// Close the file watcher.
func (ex *exchange) Close() error {
	return ex.watcher.Close()
}

// cleanFilepath creates a relative path from the initial path to a new file's path.
func (ex *exchange) cleanFilepath(f string) string {
	if rel, err := filepath.Rel(ex.directory, f); err != nil {
		return f
	} else {
		return rel
	}
}

// run alternates between sending and receiving, starting with sending if sendFirst is set.
func (ex *exchange) run(ctx context.Context, sendFirst bool) error {
	sending := sendFirst

	for {
		if sending {
			if err := ex.sendNextFile(ctx); err != nil {
				return err
			}
		} else {
			if err := ex.receiveFile(ctx); err != nil {
				return err
			}
		}

		sending = !sending
	}
}

// sendNextFile waits for the next unknown file within the directory and sends its content.
func (ex *exchange) sendNextFile(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-ex.watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify's Event channel was closed")
			}

			if _, ok := ex.knownFiles.Load(ex.cleanFilepath(e.Name)); ok {
				log.WithField("file", e.Name).Debug("Skipping file; already known")
				continue
			}

			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			payload, ok := ex.readNewFile(e.Name)
			if !ok {
				continue
			}

			wasReady := ex.channel.Ready()
			if err := ex.channel.Send(ctx, payload); err != nil {
				return err
			} else if ex.channel.Cancelled() {
				return errChannelClosed
			}

			ex.knownFiles.Store(ex.cleanFilepath(e.Name), struct{}{})
			log.WithFields(log.Fields{
				"file":    e.Name,
				"channel": ex.channel.URL(),
			}).Info("Sent file")

			if !wasReady && ex.out != nil {
				_, _ = fmt.Fprintln(ex.out, ex.channel.URL())
			}
			return nil

		case err, ok := <-ex.watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify's Errors channel was closed")
			}
			return fmt.Errorf("fsnotify errored: %w", err)
		}
	}
}

// readNewFile with a few retries. Empty files are reported as not ok, awaiting a later write.
func (ex *exchange) readNewFile(name string) ([]byte, bool) {
	for i := 0; i < 5; i++ {
		if payload, err := os.ReadFile(name); err != nil {
			log.WithError(err).WithField("file", name).Warn("Reading file errored, retrying..")
		} else if len(payload) == 0 {
			log.WithField("file", name).Debug("Skipping empty file")
			return nil, false
		} else {
			return payload, true
		}

		time.Sleep(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond)
	}

	log.WithField("file", name).Error("Failed to read file, giving up.")
	return nil, false
}

// receiveFile waits for the next payload and stores it within the directory.
func (ex *exchange) receiveFile(ctx context.Context) error {
	payload, err := ex.channel.Receive(ctx)
	if err != nil {
		return err
	} else if payload == nil {
		return errChannelClosed
	}

	ex.received++
	filePath := filepath.Join(ex.directory, fmt.Sprintf("received-%03d", ex.received))
	logger := log.WithField("file", filePath)

	ex.knownFiles.Store(ex.cleanFilepath(filePath), struct{}{})
	if err := os.WriteFile(filePath, payload, 0644); err != nil {
		logger.WithError(err).Error("Writing file errored")
		return err
	}

	logger.Info("Saved received payload")
	return nil
}
