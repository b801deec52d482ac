// Package dblock provides non-blocking Postgres advisory locks used to
// guard the periodic jobs in internal/scheduler from double-firing across
// multiple process instances.
package dblock

import (
	"context"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Key maps a job name to a stable int64 advisory-lock key via FNV-1a, so
// callers name locks by string instead of managing an int registry by hand.
func Key(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// TryLock attempts to acquire a session-level advisory lock without
// blocking. It must be released on the same pooled connection, so callers
// receive a Release func bound to the connection that acquired it; failing
// to call Release leaks the connection back to the pool still holding the
// lock until that connection closes.
func TryLock(ctx context.Context, pool *pgxpool.Pool, name string) (acquired bool, release func(), err error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, nil, err
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, Key(name)).Scan(&ok); err != nil {
		conn.Release()
		return false, nil, err
	}
	if !ok {
		conn.Release()
		return false, nil, nil
	}

	release = func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, Key(name))
		conn.Release()
	}
	return true, release, nil
}
