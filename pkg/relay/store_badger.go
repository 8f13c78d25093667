// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"
)

// BadgerStore is a Store backed by badgerhold, surviving restarts of the relay.
type BadgerStore struct {
	bh *badgerhold.Store
}

// NewBadgerStore creates a new BadgerStore or opens an existing BadgerStore from the given path.
func NewBadgerStore(dir string) (s *BadgerStore, err error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(dir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &BadgerStore{bh: bh}
	}
	return
}

// Close the BadgerStore. It must not be used afterwards.
func (s *BadgerStore) Close() error {
	return s.bh.Close()
}

func (s *BadgerStore) Insert(ci ChannelItem) error {
	log.WithField("channel", ci.Id).Debug("Store inserts ChannelItem")

	if err := s.bh.Insert(ci.Id, ci); err == badgerhold.ErrKeyExists {
		return ErrExists
	} else {
		return err
	}
}

func (s *BadgerStore) Get(id string) (ci ChannelItem, err error) {
	if err = s.bh.Get(id, &ci); err == badgerhold.ErrNotFound {
		err = ErrNotFound
	}
	return
}

func (s *BadgerStore) Update(ci ChannelItem) error {
	log.WithField("channel", ci.Id).Debug("Store updates ChannelItem")

	if err := s.bh.Update(ci.Id, ci); err == badgerhold.ErrNotFound {
		return ErrNotFound
	} else {
		return err
	}
}

func (s *BadgerStore) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	log.WithField("channel", id).Debug("Store deletes ChannelItem")
	return s.bh.Delete(id, ChannelItem{})
}

// DeleteExpired removes all expired ChannelItems.
func (s *BadgerStore) DeleteExpired(now time.Time) (n int, err error) {
	var cis []ChannelItem
	if err = s.bh.Find(&cis, badgerhold.Where("Expires").Lt(now)); err != nil {
		return
	}

	for _, ci := range cis {
		logger := log.WithField("channel", ci.Id)
		if delErr := s.bh.Delete(ci.Id, ChannelItem{}); delErr != nil {
			logger.WithError(delErr).Warn("Failed to delete expired ChannelItem")
		} else {
			logger.Debug("Deleted expired ChannelItem")
			n++
		}
	}
	return
}
