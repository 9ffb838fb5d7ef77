package pgx

import (
	"context"
	"errors"

	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	SendBatch(ctx context.Context, b *pgxv5.Batch) pgxv5.BatchResults
}

// GraphDBStorage implements store.Gateway on PostgreSQL. Sessions are
// pooled connections, transactions are pgx transactions, and the number of
// write transactions in flight is capped by a weighted semaphore so that
// long ingestions cannot starve the pool.
type GraphDBStorage struct {
	pool       *pgxpool.Pool
	txLimit    *semaphore.Weighted
	maxRetries int
}

type GraphDBStorageOption func(*GraphDBStorage)

// WithMaxTransactions caps concurrent write transactions.
func WithMaxTransactions(n int64) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		if n > 0 {
			s.txLimit = semaphore.NewWeighted(n)
		}
	}
}

// WithRetries sets how often a transaction that failed with a serialization
// failure or deadlock is attempted.
func WithRetries(n int) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewGraphDBStorageWithConnection wraps an existing pool.
func NewGraphDBStorageWithConnection(pool *pgxpool.Pool, opts ...GraphDBStorageOption) *GraphDBStorage {
	s := &GraphDBStorage{
		pool:       pool,
		txLimit:    semaphore.NewWeighted(16),
		maxRetries: 3,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// WithSession acquires one pooled connection for the duration of fn.
func (s *GraphDBStorage) WithSession(ctx context.Context, fn store.UnitOfWork) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return &common.StoreError{Op: "acquire", Err: err}
	}
	defer conn.Release()

	return fn(ctx, &session{conn: conn})
}

// WithTransaction runs fn inside a single pgx transaction. The transaction
// is rolled back on error, panic or cancellation.
func (s *GraphDBStorage) WithTransaction(ctx context.Context, fn store.UnitOfWork) error {
	return util.RetryErrWithContextIf(ctx, s.maxRetries, isRetryable, func(ctx context.Context) error {
		return s.runTx(ctx, fn)
	})
}

func (s *GraphDBStorage) runTx(ctx context.Context, fn store.UnitOfWork) error {
	if err := s.txLimit.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.txLimit.Release(1)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return &common.StoreError{Op: "acquire", Err: err}
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return &common.StoreError{Op: "begin", Err: err}
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &session{conn: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &common.StoreError{Op: "commit", Err: err}
	}
	return nil
}

func (s *GraphDBStorage) Close() {
	s.pool.Close()
}

// isRetryable reports serialization failures and deadlocks, the two
// conflicts Postgres expects clients to retry.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		logger.Warn("[Store][Tx] Retrying conflicting transaction", "code", pgErr.Code, "err", pgErr.Message)
		return true
	}
	return false
}
