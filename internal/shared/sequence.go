package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceAllocator hands out gapless monotonic numbers per scope from the
// document_sequences table. The UPDATE takes a row lock, so two concurrent
// allocations for the same scope serialize and never observe the same value.
type SequenceAllocator struct {
	pool *pgxpool.Pool
}

// NewSequenceAllocator constructs the allocator.
func NewSequenceAllocator(pool *pgxpool.Pool) *SequenceAllocator {
	return &SequenceAllocator{pool: pool}
}

// NextInTx allocates the next value for scope inside an existing transaction,
// creating the scope row on first use.
func NextInTx(ctx context.Context, tx pgx.Tx, scope string) (int64, error) {
	if scope == "" {
		return 0, errors.New("sequence scope required")
	}
	var value int64
	err := tx.QueryRow(ctx, `INSERT INTO document_sequences (scope, next_value)
VALUES ($1, 2)
ON CONFLICT (scope) DO UPDATE SET next_value = document_sequences.next_value + 1
RETURNING next_value - 1`, scope).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence %s: %w", scope, err)
	}
	return value, nil
}

// Next allocates the next value for scope in its own transaction.
func (a *SequenceAllocator) Next(ctx context.Context, scope string) (int64, error) {
	if a == nil {
		return 0, errors.New("sequence allocator not initialised")
	}
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	value, err := NextInTx(ctx, tx, scope)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return value, nil
}
