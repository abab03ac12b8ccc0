// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/jackc/pgx/v5"
)

// ResetTimeout is the maximum duration for database reset operations.
const ResetTimeout = 30 * time.Second

// Reset scopes.
const (
	ScopeRaw        = "raw"
	ScopeNormalized = "normalized"
	ScopeAll        = "all"
)

// Resetter empties pipeline tables.
type Resetter struct {
	DB core.DB
}

type resetFn func(ctx context.Context, tx pgx.Tx) error

func truncate(schema, table string, cascade bool) resetFn {
	sql := "TRUNCATE TABLE " + core.QualifiedName(schema, table)
	if cascade {
		sql += " CASCADE"
	}
	return func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("truncate %s.%s: %w", schema, table, err)
		}
		return nil
	}
}

// Reset truncates the tables of scope in one transaction.
// This is a destructive operation - use with caution.
func (r *Resetter) Reset(ctx context.Context, scope string) error {
	var resets []resetFn
	switch scope {
	case ScopeRaw:
		resets = []resetFn{truncate(core.RawSchema, core.RawTable, false)}
	case ScopeNormalized:
		resets = []resetFn{
			truncate(core.NormalizedSchema, core.ChargesTable, false),
			truncate(core.NormalizedSchema, core.CompaniesTable, true),
		}
	case ScopeAll:
		resets = []resetFn{
			truncate(core.NormalizedSchema, core.ChargesTable, false),
			truncate(core.NormalizedSchema, core.CompaniesTable, true),
			truncate(core.RawSchema, core.RawTable, false),
		}
	default:
		return core.NewError(core.KindPipeline, core.CodeInvalidOption, "unknown reset scope: "+scope).
			With("supported", []string{ScopeRaw, ScopeNormalized, ScopeAll})
	}

	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	if err := core.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		return runResets(ctx, tx, resets)
	}); err != nil {
		return err
	}

	logging.FromContext(ctx).Warn("tables reset", "scope", scope)
	return nil
}

func runResets(ctx context.Context, tx pgx.Tx, resets []resetFn) error {
	for _, reset := range resets {
		if err := reset(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}
