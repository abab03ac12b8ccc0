package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// DB is a DBTX that can open transactions.
// *pgxpool.Pool satisfies it, and so does pgx.Tx (Begin creates a savepoint).
type DB interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// ErrBegin marks errors from WithTx that happened before fn ran.
var ErrBegin = errors.New("begin transaction")

// WithTx runs fn inside a transaction opened on db.
//
// The transaction is committed when fn returns nil and rolled back when fn
// returns an error or panics. The connection is always released.
func WithTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBegin, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// QualifiedName returns schema.name with both parts quoted.
func QualifiedName(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
