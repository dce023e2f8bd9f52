// Package inmemdb is a process-local core.KVStore, for tests and single instance deployments.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/tribunal/core"
)

// watchBuffer is the number of events a slow watcher may lag behind before events are dropped.
// Dropping is fine: an event only says "re-read the key".
const watchBuffer = 16

type (
	KVStore struct {
		mutex    sync.RWMutex
		table    map[string]core.KVEntry
		watchers map[string]map[*watcher]struct{}
		done     chan struct{}
		closed   bool
	}

	watcher struct {
		ch   chan core.KVEvent
		once sync.Once
	}
)

var _ core.KVStore = (*KVStore)(nil)

func NewKVStore() *KVStore {
	return &KVStore{
		table:    make(map[string]core.KVEntry),
		watchers: make(map[string]map[*watcher]struct{}),
		done:     make(chan struct{}),
	}
}

func (s *KVStore) Get(ctx context.Context, key string) (core.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return core.KVEntry{}, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return core.KVEntry{}, core.ErrStoreClosed
	}

	entry, ok := s.table[key]
	if !ok {
		return core.KVEntry{}, core.ErrKeyNotFound
	}
	return core.KVEntry{Value: copyBytes(entry.Value), Version: entry.Version}, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return 0, core.ErrStoreClosed
	}

	if s.table[key].Version != expectedVersion { // zero value when missing
		return 0, core.ErrVersionConflict
	}
	version := expectedVersion + 1
	s.table[key] = core.KVEntry{Value: copyBytes(value), Version: version}

	evt := core.KVEvent{Key: key, Version: version}
	for w := range s.watchers[key] {
		select {
		case w.ch <- evt:
		default:
		}
	}
	return version, nil
}

func (s *KVStore) Watch(ctx context.Context, key string) (<-chan core.KVEvent, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w := &watcher{ch: make(chan core.KVEvent, watchBuffer)}
	if s.closed {
		w.close()
		return w.ch, nil
	}
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[*watcher]struct{})
	}
	s.watchers[key][w] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mutex.Lock()
		delete(s.watchers[key], w)
		if len(s.watchers[key]) == 0 {
			delete(s.watchers, key)
		}
		s.mutex.Unlock()
		w.close()
	}()
	return w.ch, nil
}

// Close ends every watch. Reads and writes fail with core.ErrStoreClosed afterwards.
func (s *KVStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (w *watcher) close() {
	w.once.Do(func() { close(w.ch) })
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
