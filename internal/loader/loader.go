// Package loader ingests charge CSV files into raw_data.raw_transactions.
//
// A load reads the whole file, optionally validates every row, and then
// persists rows in batches. Each batch is bulk-copied in its own
// transaction; when the copy fails the batch is replayed one row per
// transaction so a single bad row costs only itself. Rows are appended, so
// loading the same file twice stores its rows twice.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultBatchSize is used when Options.BatchSize is zero.
const DefaultBatchSize = 1000

var rawTable = pgx.Identifier{core.RawSchema, core.RawTable}

var copyColumns = []string{
	"id", "name", "company_id", "amount", "status", "created_at", "paid_at", "load_id", "loaded_at",
}

var insertRawSQL = `INSERT INTO ` + rawTable.Sanitize() + `
	(id, name, company_id, amount, status, created_at, paid_at, load_id, loaded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// rawWidths mirrors the raw staging column definitions.
var rawWidths = []struct {
	field string
	max   int
}{
	{"id", core.RawMaxIDLen},
	{"name", core.RawMaxNameLen},
	{"company_id", core.RawMaxCompanyIDLen},
	{"amount", core.RawMaxAmountLen},
	{"status", core.RawMaxStatusLen},
	{"created_at", core.RawMaxDateLen},
	{"paid_at", core.RawMaxDateLen},
}

// Options controls a single load.
type Options struct {
	// BatchSize is the number of rows per transaction. Zero means DefaultBatchSize.
	BatchSize int
	// Validate runs the field checks and attaches a ValidationReport.
	// Invalid rows are still attempted.
	Validate bool
}

// Loader writes raw charge rows to the staging table.
type Loader struct {
	db             core.DB
	errorThreshold float64
}

// New creates a Loader. errorThreshold is the invalid-row share that flags
// a validation report.
func New(db core.DB, errorThreshold float64) *Loader {
	return &Loader{db: db, errorThreshold: errorThreshold}
}

// Load reads the CSV at path and appends its rows to the staging table.
//
// Precondition failures (missing, empty or malformed file, missing columns)
// return a *core.Error before anything is written. Row and batch failures
// are recorded in the report instead.
func (l *Loader) Load(ctx context.Context, path string, opts Options) (*LoadingReport, error) {
	start := time.Now()

	rows, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, path, rows, opts, start)
}

// LoadReader is Load for an already-open stream, such as an HTTP upload.
// name is recorded as the report's file path.
func (l *Loader) LoadReader(ctx context.Context, name string, r io.Reader, opts Options) (*LoadingReport, error) {
	start := time.Now()

	rows, err := Read(r)
	if err != nil {
		var perr *core.Error
		if errors.As(err, &perr) {
			perr.With("file_path", name)
		}
		return nil, err
	}
	return l.load(ctx, name, rows, opts, start)
}

func (l *Loader) load(ctx context.Context, name string, rows []core.RawTransaction, opts Options, start time.Time) (*LoadingReport, error) {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 0 {
		return nil, core.NewError(core.KindLoading, core.CodeInvalidOption, "Batch size must be positive").
			With("batch_size", batchSize)
	}

	rep := &LoadingReport{
		FilePath:           name,
		LoadID:             uuid.New(),
		TotalRowsProcessed: len(rows),
		LoadingErrors:      []LoadError{},
		StartedAt:          start.UTC(),
	}

	logger := logging.WithFields(ctx, "load_id", rep.LoadID, "file", name)
	logger.Info("load started", "rows", len(rows), "batch_size", batchSize, "validate", opts.Validate)

	if opts.Validate {
		rep.Validation = ValidateRows(rows, l.errorThreshold)
		if rep.Validation.ExceedsThreshold {
			logger.Warn("invalid rows exceed error threshold",
				"invalid_rows", rep.Validation.InvalidRows,
				"total_rows", rep.Validation.TotalRows,
				"threshold", l.errorThreshold,
			)
		}
	}

	loadedAt := time.Now().UTC()
	for b, lo := 0, 0; lo < len(rows); b, lo = b+1, lo+batchSize {
		if err := ctx.Err(); err != nil {
			rep.finish(start)
			return rep, fmt.Errorf("load cancelled after %d rows: %w", rep.RowsLoaded, err)
		}

		hi := min(lo+batchSize, len(rows))
		l.persistBatch(ctx, rep, b, lo, rows[lo:hi], loadedAt)
	}

	rep.finish(start)
	logger.Info("load finished",
		"rows_loaded", rep.RowsLoaded,
		"rows_skipped", rep.RowsSkipped,
		"errors", len(rep.LoadingErrors),
		"duration_ms", rep.ExecutionTime.Milliseconds(),
	)
	return rep, nil
}

// persistBatch copies one batch; offset is the data index of batch[0].
func (l *Loader) persistBatch(ctx context.Context, rep *LoadingReport, batch, offset int, rows []core.RawTransaction, loadedAt time.Time) {
	logger := logging.FromContext(ctx)

	values := make([][]any, 0, len(rows))
	index := make([]int, 0, len(rows))
	for i, r := range rows {
		vals, err := rawValues(r, rep.LoadID, loadedAt)
		if err != nil {
			rep.LoadingErrors = append(rep.LoadingErrors, LoadError{
				Type:    ErrRowConversion,
				Row:     core.Ptr(offset + i),
				Batch:   batch,
				Message: err.Error(),
			})
			continue
		}
		values = append(values, vals)
		index = append(index, offset+i)
	}
	if len(values) == 0 {
		return
	}

	err := core.WithTx(ctx, l.db, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, rawTable, copyColumns, pgx.CopyFromRows(values))
		if err != nil {
			return err
		}
		if int(n) != len(values) {
			return fmt.Errorf("copied %d of %d rows", n, len(values))
		}
		return nil
	})
	if err == nil {
		rep.RowsLoaded += len(values)
		return
	}
	if errors.Is(err, core.ErrBegin) {
		logger.Error("batch skipped", "batch", batch, "error", err)
		rep.LoadingErrors = append(rep.LoadingErrors, LoadError{
			Type:    ErrDatabase,
			Batch:   batch,
			Message: err.Error(),
		})
		return
	}

	logger.Warn("batch copy failed, retrying rows individually", "batch", batch, "rows", len(values), "error", err)
	for i, vals := range values {
		err := core.WithTx(ctx, l.db, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, insertRawSQL, vals...)
			return err
		})
		if err != nil {
			typ := ErrIndividualRow
			if errors.Is(err, core.ErrBegin) {
				typ = ErrDatabase
			}
			rep.LoadingErrors = append(rep.LoadingErrors, LoadError{
				Type:    typ,
				Row:     core.Ptr(index[i]),
				Batch:   batch,
				Message: err.Error(),
			})
			continue
		}
		rep.RowsLoaded++
	}
}

// rawValues converts a row to staging column values. A value wider than
// its column is a conversion error.
func rawValues(r core.RawTransaction, loadID uuid.UUID, loadedAt time.Time) ([]any, error) {
	for _, w := range rawWidths {
		v := r.Field(w.field)
		if v == nil {
			continue
		}
		if n := utf8.RuneCountInString(*v); n > w.max {
			return nil, fmt.Errorf("%s is %d characters, column allows %d", w.field, n, w.max)
		}
	}
	return []any{
		core.ToPgText(r.ID),
		core.ToPgText(r.Name),
		core.ToPgText(r.CompanyID),
		core.ToPgText(r.Amount),
		core.ToPgText(r.Status),
		core.ToPgText(r.CreatedAt),
		core.ToPgText(r.PaidAt),
		core.ToPgUUID(loadID),
		loadedAt,
	}, nil
}
