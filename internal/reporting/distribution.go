package reporting

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Integrity score penalties.
const (
	orphanPenalty       = 10
	emptyCompanyPenalty = 5
)

// RecordCounts counts rows per table.
type RecordCounts struct {
	RawTransactions    int64   `json:"raw_transactions"`
	Companies          int64   `json:"companies"`
	Charges            int64   `json:"charges"`
	TransformationRate float64 `json:"transformation_rate"`
}

// CompanyStat is the charge count and total of one company.
type CompanyStat struct {
	CompanyID   string  `json:"company_id"`
	CompanyName string  `json:"company_name"`
	ChargeCount int64   `json:"charge_count"`
	TotalAmount float64 `json:"total_amount"`
}

// StatusStat is the charge count and total of one status.
type StatusStat struct {
	Status      string  `json:"status"`
	Count       int64   `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

// DateRange spans charge created_at values.
type DateRange struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
}

// DataIntegrity scores referential completeness.
type DataIntegrity struct {
	OrphanedCharges         int64 `json:"orphaned_charges"`
	CompaniesWithoutCharges int64 `json:"companies_without_charges"`
	IntegrityScore          int   `json:"integrity_score"`
}

// Distribution describes how data is spread over the normalized tables.
type Distribution struct {
	RecordCounts       RecordCounts  `json:"record_counts"`
	CompanyStatistics  []CompanyStat `json:"company_statistics"`
	StatusDistribution []StatusStat  `json:"status_distribution"`
	DateRange          DateRange     `json:"date_range"`
	DataIntegrity      DataIntegrity `json:"data_integrity"`
}

// integrityScore is 100 less 10 per orphaned charge and 5 per company
// without charges, never below 0.
func integrityScore(orphans, emptyCompanies int64) int {
	score := 100 - orphanPenalty*orphans - emptyCompanyPenalty*emptyCompanies
	return int(max(score, 0))
}

// DistributionStatistics gathers counts, per-company and per-status
// subtotals, the date range and the integrity score.
func (m *Manager) DistributionStatistics(ctx context.Context) (*Distribution, error) {
	d := &Distribution{}
	companies := core.QualifiedName(core.NormalizedSchema, core.CompaniesTable)
	charges := core.QualifiedName(core.NormalizedSchema, core.ChargesTable)
	raw := core.QualifiedName(core.RawSchema, core.RawTable)

	var earliest, latest pgtype.Timestamp
	err := m.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM `+raw+`),
			(SELECT COUNT(*) FROM `+companies+`),
			(SELECT COUNT(*) FROM `+charges+`),
			(SELECT MIN(created_at) FROM `+charges+`),
			(SELECT MAX(created_at) FROM `+charges+`),
			(SELECT COUNT(*) FROM `+charges+` ch
				LEFT JOIN `+companies+` co ON co.company_id = ch.company_id
				WHERE co.company_id IS NULL),
			(SELECT COUNT(*) FROM `+companies+` co
				LEFT JOIN `+charges+` ch ON ch.company_id = co.company_id
				WHERE ch.company_id IS NULL)`,
	).Scan(
		&d.RecordCounts.RawTransactions,
		&d.RecordCounts.Companies,
		&d.RecordCounts.Charges,
		&earliest,
		&latest,
		&d.DataIntegrity.OrphanedCharges,
		&d.DataIntegrity.CompaniesWithoutCharges,
	)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	if d.RecordCounts.RawTransactions > 0 {
		d.RecordCounts.TransformationRate = float64(d.RecordCounts.Charges) / float64(d.RecordCounts.RawTransactions) * 100
	}
	d.DateRange = DateRange{Earliest: isoTimestamp(earliest), Latest: isoTimestamp(latest)}
	d.DataIntegrity.IntegrityScore = integrityScore(d.DataIntegrity.OrphanedCharges, d.DataIntegrity.CompaniesWithoutCharges)

	rows, err := m.db.Query(ctx, `
		SELECT co.company_id, co.company_name, COUNT(ch.id), COALESCE(SUM(ch.amount), 0)
		FROM `+companies+` co
		JOIN `+charges+` ch ON ch.company_id = co.company_id
		GROUP BY co.company_id, co.company_name
		ORDER BY co.company_id`)
	if err != nil {
		return nil, fmt.Errorf("query company statistics: %w", err)
	}
	d.CompanyStatistics, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CompanyStat, error) {
		var c CompanyStat
		var total pgtype.Numeric
		err := row.Scan(&c.CompanyID, &c.CompanyName, &c.ChargeCount, &total)
		c.TotalAmount = core.NumericToFloat(total)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan company statistics: %w", err)
	}

	rows, err = m.db.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM `+charges+`
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("query status distribution: %w", err)
	}
	d.StatusDistribution, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusStat, error) {
		var s StatusStat
		var total pgtype.Numeric
		err := row.Scan(&s.Status, &s.Count, &total)
		s.TotalAmount = core.NumericToFloat(total)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan status distribution: %w", err)
	}

	return d, nil
}

func isoTimestamp(ts pgtype.Timestamp) *string {
	if !ts.Valid {
		return nil
	}
	return core.Ptr(ts.Time.Format("2006-01-02T15:04:05"))
}
