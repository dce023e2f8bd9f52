// Package sqlxdb is a core.KVStore on the kv_entries table of PostgreSQL.
// Writes are guarded by the version column; changes are pushed to watchers with LISTEN/NOTIFY.
package sqlxdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tribunal/core"
)

// Channel is the NOTIFY channel the kv_entries trigger publishes on.
const Channel = "kv_entries"

const (
	minReconnect = 10 * time.Millisecond
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

const (
	getQuery    = `SELECT value, version FROM kv_entries WHERE key = $1`
	insertQuery = `INSERT INTO kv_entries (key, value, version) VALUES ($1, $2, 1) ON CONFLICT (key) DO NOTHING`
	updateQuery = `UPDATE kv_entries SET value = $2, version = version + 1, updated_at = NOW() WHERE key = $1 AND version = $3`
)

type (
	KVStore struct {
		db     *sqlx.DB
		dsn    string
		logger core.Logger

		mutex  sync.Mutex
		done   chan struct{}
		closed bool
	}

	entry struct {
		Value   []byte `db:"value"`
		Version int64  `db:"version"`
	}

	notification struct {
		Key     string `json:"key"`
		Version int64  `json:"version"`
	}
)

var _ core.KVStore = (*KVStore)(nil)

// NewKVStore returns a store on db. dsn is used to open the LISTEN connections of watchers.
// The store does not own db: Close leaves it open.
func NewKVStore(db *sqlx.DB, dsn string, logger core.Logger) *KVStore {
	return &KVStore{db: db, dsn: dsn, logger: logger, done: make(chan struct{})}
}

func (s *KVStore) Get(ctx context.Context, key string) (core.KVEntry, error) {
	if s.isClosed() {
		return core.KVEntry{}, core.ErrStoreClosed
	}
	var e entry
	if err := s.db.GetContext(ctx, &e, getQuery, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.KVEntry{}, core.ErrKeyNotFound
		}
		return core.KVEntry{}, errors.Wrapf(err, "selecting %q", key)
	}
	return core.KVEntry{Value: e.Value, Version: e.Version}, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if s.isClosed() {
		return 0, core.ErrStoreClosed
	}
	if value == nil {
		value = []byte{}
	}
	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx, insertQuery, key, value)
	} else {
		res, err = s.db.ExecContext(ctx, updateQuery, key, value, expectedVersion)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "writing %q", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "writing %q", key)
	}
	if n == 0 {
		return 0, core.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// Watch opens a dedicated LISTEN connection. After a reconnection the current version is sent,
// since notifications may have been missed meanwhile.
func (s *KVStore) Watch(ctx context.Context, key string) (<-chan core.KVEvent, error) {
	out := make(chan core.KVEvent, 1)
	if s.isClosed() {
		close(out)
		return out, nil
	}

	listener := pq.NewListener(s.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("sqlxdb.Watch", errors.Wrap(err, "listener event"), map[string]interface{}{"key": key})
		}
	})
	if err := listener.Listen(Channel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrapf(err, "listening on %s", Channel)
	}

	go func() {
		defer close(out)
		defer func() { _ = listener.Close() }()

		send := func(evt core.KVEvent) bool {
			select {
			case out <- evt:
				return true
			case <-ctx.Done():
			case <-s.done:
			}
			return false
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case n := <-listener.Notify:
				if n == nil { // reconnected
					e, err := s.Get(ctx, key)
					if err != nil {
						continue
					}
					if !send(core.KVEvent{Key: key, Version: e.Version}) {
						return
					}
					continue
				}
				var payload notification
				if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
					s.logger.Warn("sqlxdb.Watch", errors.Wrap(err, "decoding notification"))
					continue
				}
				if payload.Key != key {
					continue
				}
				if !send(core.KVEvent{Key: key, Version: payload.Version}) {
					return
				}
			case <-time.After(pingInterval):
				_ = listener.Ping()
			}
		}
	}()
	return out, nil
}

// Close ends every watch.
func (s *KVStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *KVStore) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}
