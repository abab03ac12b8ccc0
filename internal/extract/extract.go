// Package extract writes staged, normalized and summary data to files.
//
// Rows are read in chunks ordered by a stable key and streamed to a CSV,
// Parquet or XLSX writer. Every extraction produces a Metadata record kept
// in the extractor's history.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DefaultChunkSize is used when Config.ChunkSize is zero.
const DefaultChunkSize = 10000

// Config holds extractor defaults.
type Config struct {
	ChunkSize     int
	Delimiter     rune
	IncludeHeader bool
	DateLayout    string
	Compression   string
}

// Filters restricts extracted rows. Empty slices disable a filter.
type Filters struct {
	CompanyIDs []string `json:"company_ids,omitempty"`
	Statuses   []string `json:"statuses,omitempty"`
}

// Request describes one extraction.
type Request struct {
	Source     string
	Format     string
	OutputPath string
	Filters    Filters
}

// Metadata records one finished extraction.
type Metadata struct {
	ExtractionID     string              `json:"extraction_id"`
	SourceTable      string              `json:"source_table"`
	SourceSchema     string              `json:"source_schema"`
	OutputFormat     string              `json:"output_format"`
	OutputPath       string              `json:"output_path"`
	TotalRows        int64               `json:"total_rows"`
	ExtractedRows    int64               `json:"extracted_rows"`
	ExecutionSeconds float64             `json:"execution_time_seconds"`
	ExtractedAt      time.Time           `json:"extraction_timestamp"`
	FileSizeBytes    int64               `json:"file_size_bytes"`
	Compression      string              `json:"compression_used,omitempty"`
	Filters          map[string][]string `json:"query_filters,omitempty"`
}

// SuccessRate is the share of counted rows that were written, in percent.
func (m Metadata) SuccessRate() float64 {
	if m.TotalRows == 0 {
		return 100
	}
	return float64(m.ExtractedRows) / float64(m.TotalRows) * 100
}

// Extractor runs extractions against the database.
type Extractor struct {
	db  core.DBTX
	cfg Config

	mu      sync.Mutex
	history []Metadata
}

// New creates an Extractor.
func New(db core.DBTX, cfg Config) *Extractor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = time.DateTime
	}
	return &Extractor{db: db, cfg: cfg}
}

// CheckOutputPath verifies format is supported and path ends in ".format".
func CheckOutputPath(path, format string) error {
	if path == "" {
		return core.NewError(core.KindExtraction, core.CodeBadFormat, "output path is required")
	}
	if !slices.Contains(Formats, format) {
		return core.NewError(core.KindExtraction, core.CodeBadFormat, "unsupported format: "+format).
			With("supported", Formats)
	}
	if ext := filepath.Ext(path); ext != "."+format {
		return core.NewError(core.KindExtraction, core.CodeBadFormat,
			fmt.Sprintf("output path should have .%s extension", format)).
			With("output_path", path)
	}
	return nil
}

// Extract writes the rows of req.Source matching req.Filters to
// req.OutputPath and records the result in the history.
//
// A failed extraction removes its partial output file.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Metadata, error) {
	start := time.Now()

	if err := CheckOutputPath(req.OutputPath, req.Format); err != nil {
		return nil, err
	}
	src, ok := Lookup(req.Source)
	if !ok {
		return nil, core.NewError(core.KindExtraction, core.CodeUnknownExtract, "unknown extraction source: "+req.Source)
	}

	logger := logging.WithFields(ctx, "source", src.Key, "format", req.Format, "output", req.OutputPath)

	where, args, applied := buildWhere(src, req.Filters)
	fail := func(msg string, err error) error {
		logger.Error("extraction failed", "step", msg, "error", err)
		return core.WrapError(core.KindExtraction, core.CodeExtractFailed, msg, err).
			With("source", src.Key).
			With("output_path", req.OutputPath)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, fail("create output directory", err)
	}

	var total int64
	if err := e.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+src.QualifiedName()+where, args...).Scan(&total); err != nil {
		return nil, fail("count rows", err)
	}
	logger.Info("extraction started", "total_rows", total, "chunk_size", e.cfg.ChunkSize)

	opts := WriterOptions{
		Delimiter:     e.cfg.Delimiter,
		IncludeHeader: e.cfg.IncludeHeader,
		DateLayout:    e.cfg.DateLayout,
		Compression:   e.cfg.Compression,
		SheetName:     src.Key,
	}
	w, err := newWriter(req.Format, req.OutputPath, src.Columns, opts)
	if err != nil {
		return nil, fail("open output file", err)
	}

	extracted, err := e.copyRows(ctx, src, where, args, total, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(req.OutputPath)
		return nil, fail("write rows", err)
	}

	var size int64
	if fi, err := os.Stat(req.OutputPath); err == nil {
		size = fi.Size()
	}

	meta := Metadata{
		ExtractionID:     uuid.NewString(),
		SourceTable:      src.Table,
		SourceSchema:     src.Schema,
		OutputFormat:     req.Format,
		OutputPath:       req.OutputPath,
		TotalRows:        total,
		ExtractedRows:    extracted,
		ExecutionSeconds: time.Since(start).Seconds(),
		ExtractedAt:      time.Now().UTC(),
		FileSizeBytes:    size,
		Filters:          applied,
	}
	if req.Format == FormatParquet {
		meta.Compression = opts.Compression
		if meta.Compression == "" {
			meta.Compression = "snappy"
		}
	}

	e.mu.Lock()
	e.history = append(e.history, meta)
	e.mu.Unlock()

	logger.Info("extraction finished",
		"extraction_id", meta.ExtractionID,
		"extracted_rows", extracted,
		"file_size_bytes", size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &meta, nil
}

// copyRows streams the source in chunks of cfg.ChunkSize rows.
func (e *Extractor) copyRows(ctx context.Context, src Source, where string, args []any, total int64, w rowWriter) (int64, error) {
	exprs := make([]string, len(src.Columns))
	for i, c := range src.Columns {
		exprs[i] = c.selectExpr()
	}
	base := "SELECT " + strings.Join(exprs, ", ") + " FROM " + src.QualifiedName() + where +
		" ORDER BY " + src.OrderBy

	n := len(args)
	query := base + " LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)

	var extracted int64
	for offset := int64(0); offset < total; offset += int64(e.cfg.ChunkSize) {
		if err := ctx.Err(); err != nil {
			return extracted, err
		}

		rows, err := e.db.Query(ctx, query, append(slices.Clone(args), e.cfg.ChunkSize, offset)...)
		if err != nil {
			return extracted, err
		}

		var chunk [][]any
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				rows.Close()
				return extracted, err
			}
			for i, v := range vals {
				vals[i] = normalizeValue(v)
			}
			chunk = append(chunk, vals)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return extracted, err
		}
		if len(chunk) == 0 {
			break
		}

		if err := w.Write(chunk); err != nil {
			return extracted, err
		}
		extracted += int64(len(chunk))
		logging.FromContext(ctx).Debug("chunk written", "offset", offset, "rows", len(chunk))
	}
	return extracted, nil
}

// normalizeValue maps driver values onto the types the writers understand.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		return core.NumericToDecimal(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	}
	return v
}

// buildWhere turns the filters the source supports into a WHERE clause.
// Unsupported filters are ignored and left out of the returned map.
func buildWhere(src Source, f Filters) (string, []any, map[string][]string) {
	var conds []string
	var args []any
	applied := map[string][]string{}

	add := func(column string, values []string) {
		if len(values) == 0 || !src.supports(column) {
			return
		}
		args = append(args, values)
		conds = append(conds, column+" = ANY($"+strconv.Itoa(len(args))+")")
		applied[column] = values
	}
	add(FilterCompanyID, f.CompanyIDs)
	add(FilterStatus, f.Statuses)

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, applied
}

// ExtractRawTransactions extracts raw_data.raw_transactions.
func (e *Extractor) ExtractRawTransactions(ctx context.Context, path, format string, f Filters) (*Metadata, error) {
	return e.Extract(ctx, Request{Source: SourceRaw, Format: format, OutputPath: path, Filters: f})
}

// ExtractNormalized extracts the companies or charges table.
func (e *Extractor) ExtractNormalized(ctx context.Context, table, path, format string, f Filters) (*Metadata, error) {
	if table != SourceCompanies && table != SourceCharges {
		return nil, core.NewError(core.KindExtraction, core.CodeUnknownExtract,
			"table must be companies or charges").With("table", table)
	}
	return e.Extract(ctx, Request{Source: table, Format: format, OutputPath: path, Filters: f})
}

// ExtractDailySummary extracts the daily summary view.
func (e *Extractor) ExtractDailySummary(ctx context.Context, path, format string) (*Metadata, error) {
	return e.Extract(ctx, Request{Source: SourceSummary, Format: format, OutputPath: path})
}

// History returns a copy of the extractions run by e.
func (e *Extractor) History() []Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.history)
}

// Metadata returns the extraction with the given id.
func (e *Extractor) Metadata(id string) (Metadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range e.history {
		if m.ExtractionID == id {
			return m, nil
		}
	}
	return Metadata{}, core.NewError(core.KindExtraction, core.CodeUnknownExtract, "extraction ID not found: "+id)
}

// ClearHistory forgets every recorded extraction.
func (e *Extractor) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

// Statistics summarizes the extractor's history.
func (e *Extractor) Statistics() Statistics {
	return Summarize(e.History())
}

// ValidateOutputFile checks a file written by e.
func (e *Extractor) ValidateOutputFile(path string) FileValidation {
	return ValidateFile(path, e.cfg.Delimiter)
}
