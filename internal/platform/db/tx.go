package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations repositories depend on. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so repository methods work the same
// inside and outside a transaction scope.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner abstracts transaction creation so the manager can be tested
// without a live pool.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// ErrScopeAborted is returned when a nested scope failed and the outer
// commit is refused.
var ErrScopeAborted = errors.New("platform/db: transaction scope aborted")

// ErrNoScope is returned when a savepoint is requested outside a scope.
var ErrNoScope = errors.New("platform/db: no active transaction scope")

type scopeContextKey struct{}

// Scope is one reference-counted database transaction. Nested WithinTx calls
// share the scope instead of opening a second transaction; only the outermost
// call commits, and a failure at any depth marks the scope aborted.
type Scope struct {
	tx      pgx.Tx
	depth   int
	aborted bool
}

func scopeFromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(*Scope)
	return scope
}

// InScope reports whether ctx carries an active transaction scope.
func InScope(ctx context.Context) bool {
	return scopeFromContext(ctx) != nil
}

// QuerierFromContext returns the scope's transaction when one is active,
// otherwise the fallback (normally the pool).
func QuerierFromContext(ctx context.Context, fallback Querier) Querier {
	if scope := scopeFromContext(ctx); scope != nil {
		return scope.tx
	}
	return fallback
}

// TxManager hands out reference-counted transaction scopes.
type TxManager struct {
	pool Beginner
}

// NewTxManager constructs TxManager.
func NewTxManager(pool Beginner) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx runs fn inside a transaction scope. The first call on a context
// begins a repeatable-read transaction; nested calls only increment the scope
// depth. The outermost call commits once every nested call returned cleanly;
// an error at any depth aborts the whole scope.
func (m *TxManager) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	if scope := scopeFromContext(ctx); scope != nil {
		scope.depth++
		err := fn(ctx)
		scope.depth--
		if err != nil {
			scope.aborted = true
			return err
		}
		if scope.aborted {
			return ErrScopeAborted
		}
		return nil
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	scope := &Scope{tx: tx, depth: 1}
	scopedCtx := context.WithValue(ctx, scopeContextKey{}, scope)

	if err := fn(scopedCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if scope.aborted {
		_ = tx.Rollback(ctx)
		return ErrScopeAborted
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

// WithinSavepoint runs fn under a savepoint of the active scope. A failure
// rolls back to the savepoint only, leaving the outer transaction usable.
func (m *TxManager) WithinSavepoint(ctx context.Context, fn func(context.Context) error) error {
	scope := scopeFromContext(ctx)
	if scope == nil {
		return ErrNoScope
	}

	sp, err := scope.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: begin savepoint: %w", err)
	}
	inner := &Scope{tx: sp, depth: 1}
	innerCtx := context.WithValue(ctx, scopeContextKey{}, inner)

	if err := fn(innerCtx); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	if inner.aborted {
		_ = sp.Rollback(ctx)
		return ErrScopeAborted
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: release savepoint: %w", err)
	}
	return nil
}
