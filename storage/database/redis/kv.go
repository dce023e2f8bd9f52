// Package redisdb is a core.KVStore on Redis.
// An entry is a hash {value, version}; writes use optimistic transactions (WATCH/MULTI) and
// every write is published on the key's channel for watchers.
package redisdb

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/trezcool/tribunal/core"
)

const (
	DefaultPrefix = "tribunal:kv:"

	valueField   = "value"
	versionField = "version"
)

type KVStore struct {
	rdb    goredis.UniversalClient
	prefix string
	logger core.Logger

	mutex  sync.Mutex
	done   chan struct{}
	closed bool
}

var _ core.KVStore = (*KVStore)(nil)

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, conf *core.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Redis.Addr,
		Password:    conf.Redis.Password,
		DB:          conf.Redis.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

// NewKVStore returns a store on rdb, namespacing keys with prefix (DefaultPrefix if empty).
// The store owns rdb: Close closes it.
func NewKVStore(rdb goredis.UniversalClient, prefix string, logger core.Logger) *KVStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KVStore{rdb: rdb, prefix: prefix, logger: logger, done: make(chan struct{})}
}

func (s *KVStore) key(key string) string     { return s.prefix + key }
func (s *KVStore) channel(key string) string { return s.prefix + "events:" + key }

func (s *KVStore) Get(ctx context.Context, key string) (core.KVEntry, error) {
	if s.isClosed() {
		return core.KVEntry{}, core.ErrStoreClosed
	}
	vals, err := s.rdb.HMGet(ctx, s.key(key), valueField, versionField).Result()
	if err != nil {
		return core.KVEntry{}, errors.Wrapf(err, "getting %q", key)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return core.KVEntry{}, core.ErrKeyNotFound
	}
	value, _ := vals[0].(string)
	version, err := strconv.ParseInt(toString(vals[1]), 10, 64)
	if err != nil {
		return core.KVEntry{}, errors.Wrapf(err, "parsing version of %q", key)
	}
	return core.KVEntry{Value: []byte(value), Version: version}, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	if s.isClosed() {
		return 0, core.ErrStoreClosed
	}
	rkey := s.key(key)
	version := expectedVersion + 1

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.HGet(ctx, rkey, versionField).Int64()
		if errors.Is(err, goredis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expectedVersion {
			return core.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, rkey, valueField, value, versionField, version)
			pipe.Publish(ctx, s.channel(key), version)
			return nil
		})
		return err
	}, rkey)

	switch {
	case err == nil:
		return version, nil
	case errors.Is(err, core.ErrVersionConflict), errors.Is(err, goredis.TxFailedErr):
		return 0, core.ErrVersionConflict
	default:
		return 0, errors.Wrapf(err, "putting %q", key)
	}
}

func (s *KVStore) Watch(ctx context.Context, key string) (<-chan core.KVEvent, error) {
	out := make(chan core.KVEvent, 1)
	if s.isClosed() {
		close(out)
		return out, nil
	}

	sub := s.rdb.Subscribe(ctx, s.channel(key))
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errors.Wrapf(err, "subscribing to %q", key)
	}

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				version, err := strconv.ParseInt(m.Payload, 10, 64)
				if err != nil {
					s.logger.Warn("redisdb.Watch", errors.Wrap(err, "bad payload"), map[string]interface{}{"key": key})
					continue
				}
				select {
				case out <- core.KVEvent{Key: key, Version: version}:
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
		}
	}()
	return out, nil
}

// Close ends every watch and closes the client.
func (s *KVStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return s.rdb.Close()
}

func toString(v interface{}) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return string(vv)
	}
	return ""
}

func (s *KVStore) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}
