package transform

import (
	"time"
)

// Issue types recorded in a Report.
const (
	IssueValidation        = "validation_error"
	IssueConversion        = "conversion_error"
	IssueDuplicates        = "duplicates_removed"
	IssueSmallAmounts      = "small_amounts_adjusted"
	IssueDateConsistency   = "date_consistency_error"
	IssueValidationWarning = "validation_warning"
)

// Issue is a data quality problem found while transforming.
//
// Row-level issues carry RowIndex and OriginalData. Rule-level issues carry
// Count and, for date consistency, the affected charge IDs.
type Issue struct {
	Type         string         `json:"type"`
	Message      string         `json:"message,omitempty"`
	RowIndex     *int           `json:"row_index,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	OriginalData map[string]any `json:"original_data,omitempty"`
	Count        int            `json:"count,omitempty"`
	IDs          []string       `json:"ids,omitempty"`
}

// Report summarizes one Transform call.
type Report struct {
	TotalRawRows         int           `json:"total_raw_rows"`
	TransformedRows      int           `json:"transformed_rows"`
	SkippedRows          int           `json:"skipped_rows"`
	CompaniesCreated     int           `json:"companies_created"`
	ChargesCreated       int           `json:"charges_created"`
	TransformationErrors []Issue       `json:"transformation_errors"`
	DataQualityIssues    []Issue       `json:"data_quality_issues"`
	StartedAt            time.Time     `json:"started_at"`
	ExecutionTime        time.Duration `json:"-"`
	ExecutionSeconds     float64       `json:"execution_time"`
	SuccessRatePercent   float64       `json:"success_rate"`
}

func newReport(start time.Time) *Report {
	return &Report{
		TransformationErrors: []Issue{},
		DataQualityIssues:    []Issue{},
		StartedAt:            start.UTC(),
	}
}

// SuccessRate is the share of raw rows that produced a charge, in percent.
// An empty run counts as fully successful.
func (r *Report) SuccessRate() float64 {
	if r.TotalRawRows == 0 {
		return 100
	}
	return float64(r.TransformedRows) / float64(r.TotalRawRows) * 100
}

func (r *Report) finish(start time.Time) {
	r.SkippedRows = r.TotalRawRows - r.TransformedRows
	r.ExecutionTime = time.Since(start)
	r.ExecutionSeconds = r.ExecutionTime.Seconds()
	r.SuccessRatePercent = r.SuccessRate()
}
