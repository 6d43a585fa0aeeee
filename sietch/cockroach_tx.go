package sietch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seb7887/lazarus/backoff"
)

const serializationFailure = "40001"

// Queryable interface abstracts both pgxpool.Pool and pgx.Tx
type Queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is a Queryable that can open transactions. *pgxpool.Pool
// satisfies it, and so does pgx.Tx, whose Begin creates a savepoint.
type Beginner interface {
	Queryable
	Begin(ctx context.Context) (pgx.Tx, error)
}

// txKey is the context key type for transaction injection
type txKey struct{}

// getTxFromContext extracts the transaction from context, if present
func getTxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

func (s *CockroachStore) queryable(ctx context.Context) Queryable {
	if tx, ok := getTxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// WithTx executes fn within a transaction.
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
// If fn panics, the transaction is rolled back and the panic is re-raised.
// Called with a context already carrying a transaction, WithTx opens a
// savepoint instead; rolling it back leaves the outer transaction usable.
// A top-level transaction that fails with a serialization conflict is run
// again, so fn must not keep state across calls.
func (s *CockroachStore) WithTx(ctx context.Context, fn TxFunc) error {
	if parent, nested := getTxFromContext(ctx); nested {
		return s.runTx(ctx, parent, true, fn)
	}
	return retryTx(ctx, s.attempts, s.backoff, func() error {
		return s.runTx(ctx, s.db, false, fn)
	})
}

func (s *CockroachStore) runTx(ctx context.Context, begin Beginner, nested bool, fn TxFunc) error {
	tx, err := begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		if nested {
			return err
		}
		return fmt.Errorf("tx error: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// retryTx calls run until it succeeds, fails with anything but a
// serialization conflict, or has been called attempts times.
func retryTx(ctx context.Context, attempts int, b backoff.Backoff, run func() error) error {
	for retry := 0; ; retry++ {
		err := run()
		if err == nil || !IsSerializationFailure(err) || retry+1 >= attempts {
			return err
		}
		if b == nil {
			continue
		}
		timer := time.NewTimer(b.Next(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// IsSerializationFailure reports whether err is a transaction conflict
// (SQLSTATE 40001) the database expects the client to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}
