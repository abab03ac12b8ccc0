package loader

import (
	"context"
	"fmt"
)

// Statistics describes what is currently staged.
type Statistics struct {
	TotalRows          int64            `json:"total_rows"`
	RowsWithAmount     int64            `json:"rows_with_amount"`
	UniqueCompanies    int64            `json:"unique_companies"`
	Loads              int64            `json:"loads"`
	StatusDistribution map[string]int64 `json:"status_distribution"`
}

// Statistics summarizes raw_data.raw_transactions.
func (l *Loader) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{StatusDistribution: make(map[string]int64)}

	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(amount), COUNT(DISTINCT company_id), COUNT(DISTINCT load_id)
		FROM `+rawTable.Sanitize(),
	).Scan(&stats.TotalRows, &stats.RowsWithAmount, &stats.UniqueCompanies, &stats.Loads)
	if err != nil {
		return nil, fmt.Errorf("count raw transactions: %w", err)
	}

	rows, err := l.db.Query(ctx, `
		SELECT COALESCE(status, ''), COUNT(*)
		FROM `+rawTable.Sanitize()+`
		GROUP BY status
		ORDER BY COUNT(*) DESC`)
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
		stats.StatusDistribution[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status distribution: %w", err)
	}

	return stats, nil
}
