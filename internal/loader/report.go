package loader

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/validate"
	"github.com/google/uuid"
)

// Loading error types.
const (
	ErrIndividualRow = "individual_row_error"
	ErrRowConversion = "row_conversion_error"
	ErrDatabase      = "database_error"
)

// Warning is a file-level observation that does not invalidate rows.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ValidationReport summarizes the per-row checks run before persistence.
type ValidationReport struct {
	TotalRows          int                   `json:"total_rows"`
	ValidRows          int                   `json:"valid_rows"`
	InvalidRows        int                   `json:"invalid_rows"`
	Errors             []validate.FieldError `json:"errors"`
	Warnings           []Warning             `json:"warnings"`
	ExceedsThreshold   bool                  `json:"exceeds_error_threshold"`
	SuccessRatePercent float64               `json:"success_rate"`
}

// SuccessRate is the share of valid rows as a percentage; 0 for no rows.
func (r *ValidationReport) SuccessRate() float64 {
	if r.TotalRows == 0 {
		return 0
	}
	return float64(r.ValidRows) / float64(r.TotalRows) * 100
}

// LoadError is a persistence failure. Row is the 0-based data row index
// and is nil for batch-level failures.
type LoadError struct {
	Type    string `json:"type"`
	Row     *int   `json:"row,omitempty"`
	Batch   int    `json:"batch"`
	Message string `json:"message"`
}

// LoadingReport is the outcome of one Load call.
type LoadingReport struct {
	FilePath           string            `json:"file_path"`
	LoadID             uuid.UUID         `json:"load_id"`
	TotalRowsProcessed int               `json:"total_rows_processed"`
	RowsLoaded         int               `json:"rows_loaded"`
	RowsSkipped        int               `json:"rows_skipped"`
	Validation         *ValidationReport `json:"validation_report,omitempty"`
	LoadingErrors      []LoadError       `json:"loading_errors"`
	StartedAt          time.Time         `json:"started_at"`
	ExecutionTime      time.Duration     `json:"-"`
	ExecutionSeconds   float64           `json:"execution_time_seconds"`
	SuccessRatePercent float64           `json:"success_rate"`
}

// SuccessRate is loaded / processed as a percentage; 0 for no rows.
func (r *LoadingReport) SuccessRate() float64 {
	if r.TotalRowsProcessed == 0 {
		return 0
	}
	return float64(r.RowsLoaded) / float64(r.TotalRowsProcessed) * 100
}

func (r *LoadingReport) finish(start time.Time) {
	r.RowsSkipped = r.TotalRowsProcessed - r.RowsLoaded
	r.ExecutionTime = time.Since(start)
	r.ExecutionSeconds = r.ExecutionTime.Seconds()
	r.SuccessRatePercent = r.SuccessRate()
}

// ValidateRows runs the field checks over rows and scans for duplicate ids.
// threshold is the invalid share above which the report is flagged.
func ValidateRows(rows []core.RawTransaction, threshold float64) *ValidationReport {
	rep := &ValidationReport{
		TotalRows: len(rows),
		Errors:    []validate.FieldError{},
		Warnings:  []Warning{},
	}

	seen := make(map[string]bool, len(rows))
	dups := 0
	for _, r := range rows {
		if r.ID == nil {
			continue
		}
		if seen[*r.ID] {
			dups++
		}
		seen[*r.ID] = true
	}
	if dups > 0 {
		rep.Warnings = append(rep.Warnings, Warning{
			Type:    "duplicates",
			Message: fmt.Sprintf("Found %d duplicate IDs", dups),
			Count:   dups,
		})
	}

	for i, r := range rows {
		errs := validate.Record(r, i)
		if len(errs) > 0 {
			rep.InvalidRows++
			rep.Errors = append(rep.Errors, errs...)
		}
	}
	rep.ValidRows = rep.TotalRows - rep.InvalidRows

	if rep.TotalRows > 0 {
		rep.ExceedsThreshold = float64(rep.InvalidRows)/float64(rep.TotalRows) > threshold
	}
	rep.SuccessRatePercent = rep.SuccessRate()
	return rep
}
