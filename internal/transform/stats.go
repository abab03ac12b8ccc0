package transform

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

// isoLayout formats timestamps in statistics.
const isoLayout = "2006-01-02T15:04:05"

// DateRange spans the created_at values of all charges.
type DateRange struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
}

// Statistics describes the normalized tables.
type Statistics struct {
	CompaniesCount     int64            `json:"companies_count"`
	ChargesCount       int64            `json:"charges_count"`
	StatusDistribution map[string]int64 `json:"status_distribution"`
	DateRange          DateRange        `json:"date_range"`
	Schema             string           `json:"schema"`
}

// Statistics counts normalized companies and charges.
func (t *Transformer) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		StatusDistribution: make(map[string]int64),
		Schema:             core.NormalizedSchema,
	}

	var earliest, latest pgtype.Timestamp
	err := t.db.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM `+companiesTable.Sanitize()+`),
		       COUNT(*), MIN(created_at), MAX(created_at)
		FROM `+chargesTable.Sanitize(),
	).Scan(&stats.CompaniesCount, &stats.ChargesCount, &earliest, &latest)
	if err != nil {
		return nil, fmt.Errorf("count normalized rows: %w", err)
	}
	stats.DateRange.Earliest = formatTimestamp(earliest)
	stats.DateRange.Latest = formatTimestamp(latest)

	rows, err := t.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM `+chargesTable.Sanitize()+`
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("query status distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status distribution: %w", err)
		}
		if n > 0 {
			stats.StatusDistribution[status] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status distribution: %w", err)
	}
	return stats, nil
}

func formatTimestamp(ts pgtype.Timestamp) *string {
	if !ts.Valid {
		return nil
	}
	return core.Ptr(ts.Time.Format(isoLayout))
}

// Integrity penalties.
const (
	orphanPenalty        = 20
	invalidAmountPenalty = 10
	dateOrderPenalty     = 10
)

// Integrity is the result of checking the normalized tables against staging.
type Integrity struct {
	RawRecords              int64    `json:"raw_records"`
	TransformedRecords      int64    `json:"transformed_records"`
	TransformationRate      float64  `json:"transformation_rate"`
	OrphanedCharges         int64    `json:"orphaned_charges"`
	CompaniesWithoutCharges int64    `json:"companies_without_charges"`
	InvalidAmounts          int64    `json:"invalid_amounts"`
	DateInconsistencies     int64    `json:"date_inconsistencies"`
	Score                   int      `json:"integrity_score"`
	IsValid                 bool     `json:"is_valid"`
	Issues                  []string `json:"issues"`
}

// Integrity checks referential and value integrity of the normalized tables.
func (t *Transformer) Integrity(ctx context.Context) (*Integrity, error) {
	in := &Integrity{}
	err := t.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM `+rawTable.Sanitize()+`),
			(SELECT COUNT(*) FROM `+chargesTable.Sanitize()+`),
			(SELECT COUNT(*) FROM `+chargesTable.Sanitize()+` ch
				LEFT JOIN `+companiesTable.Sanitize()+` co ON co.company_id = ch.company_id
				WHERE co.company_id IS NULL),
			(SELECT COUNT(*) FROM `+companiesTable.Sanitize()+` co
				WHERE NOT EXISTS (SELECT 1 FROM `+chargesTable.Sanitize()+` ch WHERE ch.company_id = co.company_id)),
			(SELECT COUNT(*) FROM `+chargesTable.Sanitize()+` WHERE amount <= 0),
			(SELECT COUNT(*) FROM `+chargesTable.Sanitize()+` WHERE updated_at < created_at)`,
	).Scan(
		&in.RawRecords,
		&in.TransformedRecords,
		&in.OrphanedCharges,
		&in.CompaniesWithoutCharges,
		&in.InvalidAmounts,
		&in.DateInconsistencies,
	)
	if err != nil {
		return nil, fmt.Errorf("check integrity: %w", err)
	}

	in.evaluate()
	return in, nil
}

// evaluate derives the rate, score and issue list from the counts.
// Companies without charges are reported but not penalized.
func (in *Integrity) evaluate() {
	if in.RawRecords > 0 {
		in.TransformationRate = float64(in.TransformedRecords) / float64(in.RawRecords) * 100
	}

	score := 100
	in.Issues = []string{}
	if in.OrphanedCharges > 0 {
		score -= orphanPenalty
		in.Issues = append(in.Issues, fmt.Sprintf("%d charges without corresponding companies", in.OrphanedCharges))
	}
	if in.InvalidAmounts > 0 {
		score -= invalidAmountPenalty
		in.Issues = append(in.Issues, fmt.Sprintf("%d charges with invalid amounts", in.InvalidAmounts))
	}
	if in.DateInconsistencies > 0 {
		score -= dateOrderPenalty
		in.Issues = append(in.Issues, fmt.Sprintf("%d charges with date inconsistencies", in.DateInconsistencies))
	}

	in.Score = max(score, 0)
	in.IsValid = in.Score == 100
}
