package core

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by KVStore.Get when nothing was ever stored under the key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrVersionConflict is returned by KVStore.Put when the stored version is not the expected one.
	// It is retryable: re-read, re-apply and write again.
	ErrVersionConflict = errors.New("version conflict")
)

type (
	// KVEntry is a value along with the version it was stored at.
	// Versions start at 1 and grow by one on every successful Put.
	KVEntry struct {
		Value   []byte
		Version int64
	}

	// KVEvent notifies watchers that a key changed.
	KVEvent struct {
		Key     string
		Version int64
	}

	// KVStore is the generic persistence collaborator.
	KVStore interface {
		// Get returns the current entry stored under key, or ErrKeyNotFound.
		Get(ctx context.Context, key string) (KVEntry, error)
		// Put stores value under key if the current version equals expectedVersion
		// (0 means the key must not exist yet) and returns the new version.
		Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)
		// Watch delivers an event every time key changes, until ctx is done.
		// The channel is closed once the watch stops.
		Watch(ctx context.Context, key string) (<-chan KVEvent, error)
		Close() error
	}
)
