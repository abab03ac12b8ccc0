package core

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := &fakeDB{tx: &fakeTx{}}
		if err := WithTx(ctx, db, func(pgx.Tx) error { return nil }); err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if !db.tx.committed || db.tx.rolledBack {
			t.Errorf("committed = %v, rolledBack = %v; want true, false", db.tx.committed, db.tx.rolledBack)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := &fakeDB{tx: &fakeTx{}}
		want := errors.New("insert failed")
		err := WithTx(ctx, db, func(pgx.Tx) error { return want })
		if !errors.Is(err, want) {
			t.Fatalf("WithTx() error = %v, want %v", err, want)
		}
		if db.tx.committed || !db.tx.rolledBack {
			t.Errorf("committed = %v, rolledBack = %v; want false, true", db.tx.committed, db.tx.rolledBack)
		}
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		db := &fakeDB{tx: &fakeTx{}}
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
			if !db.tx.rolledBack {
				t.Error("transaction not rolled back after panic")
			}
		}()
		_ = WithTx(ctx, db, func(pgx.Tx) error { panic("boom") })
	})

	t.Run("begin failure", func(t *testing.T) {
		db := &fakeDB{beginErr: errors.New("pool closed")}
		err := WithTx(ctx, db, func(pgx.Tx) error {
			t.Error("fn called without a transaction")
			return nil
		})
		if err == nil || err.Error() != "begin transaction: pool closed" {
			t.Errorf("WithTx() error = %v", err)
		}
		if !errors.Is(err, ErrBegin) {
			t.Error("begin failure should match ErrBegin")
		}
	})

	t.Run("commit failure rolls back", func(t *testing.T) {
		db := &fakeDB{tx: &fakeTx{commitErr: errors.New("connection reset")}}
		err := WithTx(ctx, db, func(pgx.Tx) error { return nil })
		if err == nil || err.Error() != "commit: connection reset" {
			t.Errorf("WithTx() error = %v", err)
		}
		if !db.tx.rolledBack {
			t.Error("expected rollback after failed commit")
		}
	})
}

func TestQualifiedName(t *testing.T) {
	if got := QualifiedName(RawSchema, RawTable); got != `"raw_data"."raw_transactions"` {
		t.Errorf("QualifiedName() = %s", got)
	}
}
