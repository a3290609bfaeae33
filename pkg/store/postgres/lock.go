package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/uptrace/bun"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/store"
)

const embeddingLockKey = "label_chunks_embedding"

// generateLockID generates a unique lock ID for the given key.
func generateLockID(key string) uint64 {
	hasher := sha256.New()
	hasher.Write([]byte(key))
	hash := hasher.Sum(nil)
	return binary.BigEndian.Uint64(hash[:8])
}

// tryAcquireAdvisoryLock attempts to acquire a PostgreSQL advisory lock using pg_try_advisory_lock.
// This function will fail if it's unable to immediately acquire a lock.
func tryAcquireAdvisoryLock(ctx context.Context, db bun.IDB, key string) (uint64, error) {
	lockID := generateLockID(key)

	var acquired bool
	if err := db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(?)", lockID).Scan(&acquired); err != nil {
		return 0, fmt.Errorf("tryAcquireAdvisoryLock: %w", err)
	}
	if !acquired {
		return 0, models.NewAdvisoryLockError(fmt.Errorf("failed to acquire advisory lock for %s", key))
	}
	return lockID, nil
}

// releaseAdvisoryLock releases a PostgreSQL advisory lock for the given key.
func releaseAdvisoryLock(ctx context.Context, db bun.IDB, lockID uint64) error {
	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_unlock(?)", lockID); err != nil {
		return store.NewStorageError("failed to release advisory lock", err)
	}

	return nil
}

// lockSession takes a session advisory lock for key on a dedicated connection,
// retrying with backoff while another session holds it. Advisory locks belong to
// the session, so lock and unlock must run on the same connection.
func lockSession(ctx context.Context, db *bun.DB, key string) (func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, store.NewStorageError("failed to get connection", err)
	}

	lockRetryPolicy := retrypolicy.Builder[any]().
		HandleErrors(models.ErrLockAcquisitionFailed).
		WithBackoff(200*time.Millisecond, 10*time.Second).
		WithMaxRetries(7).
		Build()

	lockIDVal, err := failsafe.Get(func() (any, error) {
		return tryAcquireAdvisoryLock(ctx, conn, key)
	}, lockRetryPolicy)
	if err != nil {
		closeConn(conn)
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	lockID, ok := lockIDVal.(uint64)
	if !ok {
		closeConn(conn)
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", models.ErrLockAcquisitionFailed)
	}

	return func() {
		// the caller's context may already be done
		if err := releaseAdvisoryLock(context.WithoutCancel(ctx), conn, lockID); err != nil {
			log.Errorf("failed to release advisory lock: %v", err)
		}
		closeConn(conn)
	}, nil
}

func closeConn(conn bun.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		log.Errorf("failed to close connection: %v", err)
	}
}
