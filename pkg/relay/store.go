// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by a Store for unknown channels.
	ErrNotFound = errors.New("channel not found")

	// ErrExists is returned by a Store when inserting a known channel.
	ErrExists = errors.New("channel already exists")
)

// Store persists ChannelItems.
type Store interface {
	// Insert a new ChannelItem.
	Insert(ci ChannelItem) error

	// Get the ChannelItem for an id or ErrNotFound.
	Get(id string) (ChannelItem, error)

	// Update an existing ChannelItem.
	Update(ci ChannelItem) error

	// Delete the ChannelItem for an id or return ErrNotFound.
	Delete(id string) error

	// DeleteExpired removes all ChannelItems expired at the given time and returns their amount.
	DeleteExpired(now time.Time) (int, error)

	// Close the Store. It must not be used afterwards.
	Close() error
}

// MemoryStore is a volatile Store.
type MemoryStore struct {
	mutex sync.Mutex
	items map[string]ChannelItem
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]ChannelItem),
	}
}

func (ms *MemoryStore) Insert(ci ChannelItem) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.items[ci.Id]; exists {
		return fmt.Errorf("%w: %s", ErrExists, ci.Id)
	}
	ms.items[ci.Id] = ci
	return nil
}

func (ms *MemoryStore) Get(id string) (ChannelItem, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if ci, exists := ms.items[id]; exists {
		return ci, nil
	}
	return ChannelItem{}, ErrNotFound
}

func (ms *MemoryStore) Update(ci ChannelItem) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.items[ci.Id]; !exists {
		return ErrNotFound
	}
	ms.items[ci.Id] = ci
	return nil
}

func (ms *MemoryStore) Delete(id string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if _, exists := ms.items[id]; !exists {
		return ErrNotFound
	}
	delete(ms.items, id)
	return nil
}

func (ms *MemoryStore) DeleteExpired(now time.Time) (n int, err error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for id, ci := range ms.items {
		if ci.Expires.Before(now) {
			delete(ms.items, id)
			n++
		}
	}
	return
}

func (ms *MemoryStore) Close() error {
	return nil
}
