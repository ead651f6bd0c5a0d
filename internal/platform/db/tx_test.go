package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	begins    int
	commits   int
	rollbacks int
	children  []*fakeTx
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	t.begins++
	child := &fakeTx{}
	t.children = append(t.children, child)
	return child, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *fakeTx) Conn() *pgx.Conn { return nil }

type fakeBeginner struct {
	begins int
	last   *fakeTx
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	b.last = &fakeTx{}
	return b.last, nil
}

func TestWithinTxNestedSharesOneTransaction(t *testing.T) {
	beginner := &fakeBeginner{}
	manager := NewTxManager(beginner)
	ctx := context.Background()

	var depthSeen int
	err := manager.WithinTx(ctx, func(ctx context.Context) error {
		require.True(t, InScope(ctx))
		return manager.WithinTx(ctx, func(ctx context.Context) error {
			return manager.WithinTx(ctx, func(ctx context.Context) error {
				depthSeen = scopeFromContext(ctx).depth
				return nil
			})
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, beginner.begins)
	require.Equal(t, 1, beginner.last.commits)
	require.Zero(t, beginner.last.rollbacks)
	require.Equal(t, 3, depthSeen)
}

func TestWithinTxInnerErrorAbortsScope(t *testing.T) {
	beginner := &fakeBeginner{}
	manager := NewTxManager(beginner)
	boom := errors.New("boom")

	err := manager.WithinTx(context.Background(), func(ctx context.Context) error {
		return manager.WithinTx(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, beginner.last.rollbacks)
	require.Zero(t, beginner.last.commits)
}

func TestWithinTxSwallowedInnerErrorStillRefusesCommit(t *testing.T) {
	beginner := &fakeBeginner{}
	manager := NewTxManager(beginner)

	err := manager.WithinTx(context.Background(), func(ctx context.Context) error {
		_ = manager.WithinTx(ctx, func(ctx context.Context) error {
			return errors.New("ignored by caller")
		})
		return nil
	})
	require.ErrorIs(t, err, ErrScopeAborted)
	require.Equal(t, 1, beginner.last.rollbacks)
	require.Zero(t, beginner.last.commits)
}

func TestWithinSavepointRollsBackOnlyTheSavepoint(t *testing.T) {
	beginner := &fakeBeginner{}
	manager := NewTxManager(beginner)
	boom := errors.New("line failed")

	err := manager.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := manager.WithinSavepoint(ctx, func(ctx context.Context) error {
			return boom
		}); !errors.Is(err, boom) {
			return errors.New("unexpected savepoint result")
		}
		return manager.WithinSavepoint(ctx, func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, beginner.last.commits)
	require.Zero(t, beginner.last.rollbacks)

	require.Len(t, beginner.last.children, 2)
	require.Equal(t, 1, beginner.last.children[0].rollbacks)
	require.Equal(t, 1, beginner.last.children[1].commits)
}

func TestWithinSavepointRequiresScope(t *testing.T) {
	manager := NewTxManager(&fakeBeginner{})
	err := manager.WithinSavepoint(context.Background(), func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNoScope)
}
