// Package transform turns staged raw transactions into normalized companies
// and charges.
//
// A run reads every raw row, cleans or converts it, applies the enabled
// business rules and then inserts the derived companies and charges in one
// transaction. Existing rows are never updated, so running the transform
// twice over the same staging data creates nothing the second time.
package transform

import (
	"context"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/config"
	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/jackc/pgx/v5"
)

// insertChunk bounds the statements sent in one batch round trip.
const insertChunk = 1000

var (
	rawTable       = pgx.Identifier{core.RawSchema, core.RawTable}
	companiesTable = pgx.Identifier{core.NormalizedSchema, core.CompaniesTable}
	chargesTable   = pgx.Identifier{core.NormalizedSchema, core.ChargesTable}
)

var selectRawSQL = `
	SELECT row_id, id, name, company_id, amount, status, created_at, paid_at
	FROM ` + rawTable.Sanitize() + `
	ORDER BY row_id`

var insertCompanySQL = `INSERT INTO ` + companiesTable.Sanitize() + `
	(company_id, company_name, created_at, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (company_id) DO NOTHING`

var insertChargeSQL = `INSERT INTO ` + chargesTable.Sanitize() + `
	(id, company_id, amount, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`

// Options controls a single transform.
type Options struct {
	// Validate cleans every field and excludes rows that cannot be repaired.
	// When false rows are only type-converted.
	Validate bool
	// ApplyBusinessRules enables the rules toggled on in Rules.
	ApplyBusinessRules bool
	Rules              config.Rules
}

// DefaultOptions validates and applies every business rule.
func DefaultOptions() Options {
	return Options{Validate: true, ApplyBusinessRules: true, Rules: config.DefaultRules()}
}

// Transformer moves data from raw staging into the normalized tables.
type Transformer struct {
	db core.DB
}

// New creates a Transformer.
func New(db core.DB) *Transformer {
	return &Transformer{db: db}
}

// Transform runs one full pass over the raw staging table.
//
// Row problems are recorded in the report. A database error while reading
// staging or writing normalized rows aborts the run, nothing is committed
// and the error is a *core.Error of kind transformation.
func (t *Transformer) Transform(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	rep := newReport(start)
	logger := logging.FromContext(ctx)

	raws, err := t.fetchRaw(ctx)
	if err != nil {
		return nil, core.WrapError(core.KindTransformation, core.CodeRawFetchFailed, "read raw transactions", err)
	}
	rep.TotalRawRows = len(raws)
	if len(raws) == 0 {
		rep.finish(start)
		logger.Info("transform skipped, no raw rows")
		return rep, nil
	}
	logger.Info("transform started", "raw_rows", len(raws), "validate", opts.Validate, "business_rules", opts.ApplyBusinessRules)

	recs := make([]record, 0, len(raws))
	for i, raw := range raws {
		if !opts.Validate {
			rec, err := convertRow(raw, i)
			if err != nil {
				rep.DataQualityIssues = append(rep.DataQualityIssues, Issue{
					Type:         IssueConversion,
					Message:      err.Error(),
					RowIndex:     core.Ptr(i),
					OriginalData: raw.Data(),
				})
				continue
			}
			recs = append(recs, rec)
			continue
		}

		rec, errs, warns := cleanRow(raw, i)
		if len(errs) > 0 {
			rep.DataQualityIssues = append(rep.DataQualityIssues, Issue{
				Type:         IssueValidation,
				RowIndex:     core.Ptr(i),
				Errors:       errs,
				Warnings:     warns,
				OriginalData: raw.Data(),
			})
			continue
		}
		if len(warns) > 0 {
			rep.DataQualityIssues = append(rep.DataQualityIssues, Issue{
				Type:         IssueValidationWarning,
				RowIndex:     core.Ptr(i),
				Warnings:     warns,
				OriginalData: raw.Data(),
			})
		}
		recs = append(recs, rec)
	}

	if opts.ApplyBusinessRules {
		var issues []Issue
		recs, issues = applyRules(recs, opts.Rules)
		rep.DataQualityIssues = append(rep.DataQualityIssues, issues...)
	}

	companies := deriveCompanies(recs, time.Now().UTC())
	charges := deriveCharges(recs)
	rep.TransformedRows = len(charges)

	var companiesCreated, chargesCreated int
	err = core.WithTx(ctx, t.db, func(tx pgx.Tx) error {
		var err error
		if companiesCreated, err = insertCompanies(ctx, tx, companies); err != nil {
			return err
		}
		chargesCreated, err = insertCharges(ctx, tx, charges)
		return err
	})
	if err != nil {
		logger.Error("transform aborted", "error", err)
		return nil, core.WrapError(core.KindTransformation, core.CodeTransformFailed, "transformation aborted", err)
	}
	rep.CompaniesCreated = companiesCreated
	rep.ChargesCreated = chargesCreated

	rep.finish(start)
	logger.Info("transform finished",
		"transformed_rows", rep.TransformedRows,
		"skipped_rows", rep.SkippedRows,
		"companies_created", rep.CompaniesCreated,
		"charges_created", rep.ChargesCreated,
		"quality_issues", len(rep.DataQualityIssues),
		"duration_ms", rep.ExecutionTime.Milliseconds(),
	)
	return rep, nil
}

func (t *Transformer) fetchRaw(ctx context.Context) ([]core.RawTransaction, error) {
	rows, err := t.db.Query(ctx, selectRawSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.RawTransaction
	for rows.Next() {
		var r core.RawTransaction
		if err := rows.Scan(&r.RowID, &r.ID, &r.Name, &r.CompanyID, &r.Amount, &r.Status, &r.CreatedAt, &r.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertCompanies(ctx context.Context, tx pgx.Tx, companies []core.Company) (int, error) {
	args := make([][]any, len(companies))
	for i, c := range companies {
		args[i] = []any{c.CompanyID, c.CompanyName, core.ToPgTimestamp(c.CreatedAt), core.ToPgTimestampPtr(c.UpdatedAt)}
	}
	return insertIfAbsent(ctx, tx, insertCompanySQL, args)
}

func insertCharges(ctx context.Context, tx pgx.Tx, charges []core.Charge) (int, error) {
	args := make([][]any, len(charges))
	for i, c := range charges {
		args[i] = []any{
			c.ID,
			c.CompanyID,
			core.ToPgNumeric(c.Amount),
			c.Status,
			core.ToPgTimestamp(c.CreatedAt),
			core.ToPgTimestampPtr(c.UpdatedAt),
		}
	}
	return insertIfAbsent(ctx, tx, insertChargeSQL, args)
}

// insertIfAbsent queues one statement per argument list and returns the
// number of rows actually inserted.
func insertIfAbsent(ctx context.Context, tx pgx.Tx, sql string, args [][]any) (int, error) {
	created := 0
	for lo := 0; lo < len(args); lo += insertChunk {
		hi := min(lo+insertChunk, len(args))

		batch := &pgx.Batch{}
		for _, a := range args[lo:hi] {
			batch.Queue(sql, a...)
		}

		br := tx.SendBatch(ctx, batch)
		for range args[lo:hi] {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return created, err
			}
			created += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return created, err
		}
	}
	return created, nil
}
