package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock is a session-level lock held on one pooled connection.
type AdvisoryLock struct {
	conn   *pgxpool.Conn
	lockID int64
}

// TryAcquireAdvisoryLock takes lockID without waiting. It returns nil when
// another session holds the lock.
func (db *DB) TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (*AdvisoryLock, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()

		return nil, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return nil, nil //nolint:nilnil // nil lock means another session holds it
	}

	return &AdvisoryLock{conn: conn, lockID: lockID}, nil
}

// Release unlocks and returns the connection to the pool. When the unlock
// fails the session may still hold the lock, so the connection is closed
// instead of going back to the pool.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockCloseTimeout)
		defer cancel()

		_ = l.conn.Hijack().Close(closeCtx)

		return fmt.Errorf("release advisory lock: %w", err)
	}

	l.conn.Release()

	return nil
}
