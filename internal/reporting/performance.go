package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// slowViewMillis is the execution time above which the view is reported
// as slow.
const slowViewMillis = 1000

// ViewStatistics summarizes the daily summary view.
type ViewStatistics struct {
	TotalRows       int64   `json:"total_rows"`
	UniqueCompanies int64   `json:"unique_companies"`
	UniqueDates     int64   `json:"unique_dates"`
	EarliestDate    string  `json:"earliest_date,omitempty"`
	LatestDate      string  `json:"latest_date,omitempty"`
	GrandTotal      float64 `json:"grand_total"`
	AvgDailyTotal   float64 `json:"avg_daily_total"`
}

// IndexUsage is one row of pg_stat_user_indexes.
type IndexUsage struct {
	Schema     string `json:"schemaname"`
	Table      string `json:"tablename"`
	Index      string `json:"indexname"`
	Scans      int64  `json:"idx_scan"`
	TupleReads int64  `json:"idx_tup_read"`
	TupleFetch int64  `json:"idx_tup_fetch"`
}

// PerformanceAnalysis is the result of AnalyzeViewPerformance.
type PerformanceAnalysis struct {
	ExecutionPlan   json.RawMessage `json:"execution_plan"`
	ViewStatistics  ViewStatistics  `json:"view_statistics"`
	IndexUsage      []IndexUsage    `json:"index_usage"`
	Recommendations []string        `json:"recommendations"`
}

// explainRoot is the part of an EXPLAIN (FORMAT JSON) document we read.
type explainRoot struct {
	ExecutionTime float64 `json:"Execution Time"`
	Plan          struct {
		TotalCost float64 `json:"Total Cost"`
	} `json:"Plan"`
}

// AnalyzeViewPerformance explains a sample query on the summary view,
// reads index usage and derives tuning recommendations.
func (m *Manager) AnalyzeViewPerformance(ctx context.Context) (*PerformanceAnalysis, error) {
	pa := &PerformanceAnalysis{}

	var plan string
	err := m.db.QueryRow(ctx,
		`EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) SELECT * FROM `+summaryView+` LIMIT 100`,
	).Scan(&plan)
	if err != nil {
		return nil, fmt.Errorf("explain view: %w", err)
	}
	pa.ExecutionPlan = json.RawMessage(plan)

	var earliest, latest pgtype.Date
	var grand, avg pgtype.Numeric
	vs := &pa.ViewStatistics
	err = m.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT company_id), COUNT(DISTINCT transaction_date),
			MIN(transaction_date), MAX(transaction_date), SUM(total_amount), AVG(total_amount)
		FROM `+summaryView,
	).Scan(&vs.TotalRows, &vs.UniqueCompanies, &vs.UniqueDates, &earliest, &latest, &grand, &avg)
	if err != nil {
		return nil, fmt.Errorf("view statistics: %w", err)
	}
	vs.EarliestDate = core.FormatDate(earliest)
	vs.LatestDate = core.FormatDate(latest)
	vs.GrandTotal = core.NumericToFloat(grand)
	vs.AvgDailyTotal = core.NumericToFloat(avg)

	rows, err := m.db.Query(ctx, `
		SELECT schemaname, relname, indexrelname, idx_scan, idx_tup_read, idx_tup_fetch
		FROM pg_stat_user_indexes
		WHERE schemaname = $1 AND relname = ANY($2)
		ORDER BY idx_scan DESC`,
		core.NormalizedSchema, []string{core.CompaniesTable, core.ChargesTable},
	)
	if err != nil {
		return nil, fmt.Errorf("index usage: %w", err)
	}
	pa.IndexUsage, err = pgx.CollectRows(rows, pgx.RowToStructByPos[IndexUsage])
	if err != nil {
		return nil, fmt.Errorf("index usage: %w", err)
	}

	pa.Recommendations = recommendations(plan, pa.IndexUsage)
	return pa, nil
}

// recommendations turns an execution plan and index usage into advice.
func recommendations(plan string, usage []IndexUsage) []string {
	var recs []string

	if strings.Contains(plan, `"Seq Scan"`) {
		recs = append(recs, "Consider adding indexes to avoid sequential scans on large tables")
	}

	var unused []string
	for _, u := range usage {
		if u.Scans == 0 {
			unused = append(unused, u.Index)
		}
	}
	if len(unused) > 0 {
		recs = append(recs, "Consider dropping unused indexes: "+strings.Join(unused, ", "))
	}

	var roots []explainRoot
	if err := json.Unmarshal([]byte(plan), &roots); err != nil || len(roots) == 0 {
		recs = append(recs, "Enable detailed performance monitoring for better recommendations")
	} else if ms := roots[0].ExecutionTime; ms > slowViewMillis {
		recs = append(recs, fmt.Sprintf("View query took %.0f ms, consider materializing the view", ms))
	}

	return append(recs,
		"Regularly update table statistics with ANALYZE command",
		"Consider partitioning large tables by date for better performance",
		"Monitor view usage patterns and adjust indexes accordingly",
	)
}
