// Package distlock provides best-effort mutual exclusion across scheduler
// replicas. The campaign status compare-and-set remains the real guard;
// these locks only keep replicas from racing for the same campaign.
package distlock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single named lock held by one owner at a time.
// A value is not safe for concurrent use; create one per acquisition.
type DistLock interface {
	// Acquire tries to take the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory creates a lock for key.
type Factory func(key string) DistLock

// NewFactory picks the best available backend: Redis when a client is
// given, PostgreSQL advisory locks when only db is set, otherwise an
// in-process lock table.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return func(key string) DistLock { return NewRedisLock(redisClient, key, ttl) }
	case db != nil:
		return func(key string) DistLock { return NewPGAdvisoryLock(db, key) }
	default:
		table := NewLocalTable()
		return table.Lock
	}
}

// PGAdvisoryLock uses pg_try_advisory_lock, which is session-scoped: the
// lock belongs to one connection and drops with it. The connection is
// pinned from Acquire until Release so the unlock runs on the same session.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// ErrNotHeld is returned by Release when the session no longer held the lock.
var ErrNotHeld = errors.New("advisory lock was not held")

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already acquired", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("pin connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		// Drop the session so the server frees the lock with it.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return err
	}
	if !released {
		return fmt.Errorf("%w: %d", ErrNotHeld, l.lockID)
	}
	return nil
}

// LocalTable holds in-process locks for single-replica deployments.
type LocalTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalTable creates an empty lock table.
func NewLocalTable() *LocalTable {
	return &LocalTable{held: make(map[string]struct{})}
}

// Lock returns a lock on key backed by the table.
func (t *LocalTable) Lock(key string) DistLock {
	return &localLock{table: t, key: key}
}

type localLock struct {
	table *LocalTable
	key   string
	owned bool
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if _, taken := l.table.held[l.key]; taken {
		return false, nil
	}
	l.table.held[l.key] = struct{}{}
	l.owned = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	if !l.owned {
		return nil
	}
	l.table.mu.Lock()
	delete(l.table.held, l.key)
	l.table.mu.Unlock()
	l.owned = false
	return nil
}
