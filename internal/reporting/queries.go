package reporting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var summaryView = core.QualifiedName(core.NormalizedSchema, core.DailySummaryView)

// DefaultTrendDays is the DailyTrends window when none is given.
const DefaultTrendDays = 30

// SummaryFilter narrows QueryDailySummary. Zero values disable a filter.
type SummaryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	CompanyID string
	Limit     int
}

// DailySummary is one row of the daily summary view.
type DailySummary struct {
	TransactionDate  string  `json:"transaction_date"`
	CompanyName      string  `json:"company_name"`
	CompanyID        string  `json:"company_id"`
	TotalAmount      float64 `json:"total_amount"`
	TransactionCount int64   `json:"transaction_count"`
	AverageAmount    float64 `json:"average_amount"`
	MinAmount        float64 `json:"min_amount"`
	MaxAmount        float64 `json:"max_amount"`
	PaidCount        int64   `json:"paid_count"`
	RefundedCount    int64   `json:"refunded_count"`
	PaidAmount       float64 `json:"paid_amount"`
	RefundedAmount   float64 `json:"refunded_amount"`
}

// CompanyTotal aggregates the summary view per company.
type CompanyTotal struct {
	CompanyName         string  `json:"company_name"`
	CompanyID           string  `json:"company_id"`
	TotalAmount         float64 `json:"total_amount"`
	TotalTransactions   int64   `json:"total_transactions"`
	OverallAverage      float64 `json:"overall_average"`
	TotalPaidAmount     float64 `json:"total_paid_amount"`
	TotalRefundedAmount float64 `json:"total_refunded_amount"`
	ActiveDays          int64   `json:"active_days"`
}

// DailyTrend aggregates the summary view per day.
type DailyTrend struct {
	TransactionDate string  `json:"transaction_date"`
	DailyTotal      float64 `json:"daily_total"`
	DailyCount      int64   `json:"daily_count"`
	DailyAverage    float64 `json:"daily_average"`
	ActiveCompanies int64   `json:"active_companies"`
}

// where collects parameterized conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func dateRange(w *where, start, end *time.Time) {
	if start != nil {
		w.add("transaction_date >= ?::date", start.Format(time.DateOnly))
	}
	if end != nil {
		w.add("transaction_date <= ?::date", end.Format(time.DateOnly))
	}
}

func summaryQuery(f SummaryFilter) (string, []any) {
	var w where
	dateRange(&w, f.StartDate, f.EndDate)
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}

	sql := `SELECT transaction_date, company_name, company_id, total_amount, transaction_count,
		average_amount, min_amount, max_amount, paid_count, refunded_count, paid_amount, refunded_amount
		FROM ` + summaryView + w.String() + `
		ORDER BY transaction_date DESC, total_amount DESC`

	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		sql += " LIMIT $" + strconv.Itoa(len(w.args))
	}
	return sql, w.args
}

func companyTotalsQuery(start, end *time.Time) (string, []any) {
	var w where
	dateRange(&w, start, end)

	sql := `SELECT company_name, company_id,
		SUM(total_amount), SUM(transaction_count)::bigint, AVG(average_amount),
		SUM(paid_amount), SUM(refunded_amount), COUNT(DISTINCT transaction_date)
		FROM ` + summaryView + w.String() + `
		GROUP BY company_name, company_id
		ORDER BY SUM(total_amount) DESC`
	return sql, w.args
}

func trendsQuery(days int, companyID string) (string, []any) {
	var w where
	w.add("transaction_date >= CURRENT_DATE - make_interval(days => ?)", days)
	if companyID != "" {
		w.add("company_id = ?", companyID)
	}

	sql := `SELECT transaction_date,
		SUM(total_amount), SUM(transaction_count)::bigint, AVG(average_amount), COUNT(DISTINCT company_id)
		FROM ` + summaryView + w.String() + `
		GROUP BY transaction_date
		ORDER BY transaction_date DESC`
	return sql, w.args
}

// QueryDailySummary reads the summary view, newest day and largest total
// first.
func (m *Manager) QueryDailySummary(ctx context.Context, f SummaryFilter) ([]DailySummary, error) {
	if f.Limit < 0 {
		return nil, core.NewError(core.KindValidation, core.CodeInvalidOption, "limit must be positive").
			With("limit", f.Limit)
	}

	sql, args := summaryQuery(f)
	rows, err := m.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily summary: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailySummary, error) {
		var s DailySummary
		var date pgtype.Date
		var total, avg, lo, hi, paid, refunded pgtype.Numeric
		err := row.Scan(&date, &s.CompanyName, &s.CompanyID, &total, &s.TransactionCount,
			&avg, &lo, &hi, &s.PaidCount, &s.RefundedCount, &paid, &refunded)
		if err != nil {
			return s, err
		}
		s.TransactionDate = core.FormatDate(date)
		s.TotalAmount = core.NumericToFloat(total)
		s.AverageAmount = core.NumericToFloat(avg)
		s.MinAmount = core.NumericToFloat(lo)
		s.MaxAmount = core.NumericToFloat(hi)
		s.PaidAmount = core.NumericToFloat(paid)
		s.RefundedAmount = core.NumericToFloat(refunded)
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan daily summary: %w", err)
	}

	logging.FromContext(ctx).Debug("daily summary queried", "rows", len(out))
	return out, nil
}

// CompanyTotals sums the summary view per company, largest total first.
func (m *Manager) CompanyTotals(ctx context.Context, start, end *time.Time) ([]CompanyTotal, error) {
	sql, args := companyTotalsQuery(start, end)
	rows, err := m.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query company totals: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CompanyTotal, error) {
		var c CompanyTotal
		var total, avg, paid, refunded pgtype.Numeric
		err := row.Scan(&c.CompanyName, &c.CompanyID, &total, &c.TotalTransactions, &avg,
			&paid, &refunded, &c.ActiveDays)
		if err != nil {
			return c, err
		}
		c.TotalAmount = core.NumericToFloat(total)
		c.OverallAverage = core.NumericToFloat(avg)
		c.TotalPaidAmount = core.NumericToFloat(paid)
		c.TotalRefundedAmount = core.NumericToFloat(refunded)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan company totals: %w", err)
	}
	return out, nil
}

// DailyTrends sums the summary view per day over the last days days.
func (m *Manager) DailyTrends(ctx context.Context, days int, companyID string) ([]DailyTrend, error) {
	if days == 0 {
		days = DefaultTrendDays
	}
	if days < 0 {
		return nil, core.NewError(core.KindValidation, core.CodeInvalidOption, "days must be positive").
			With("days", days)
	}

	sql, args := trendsQuery(days, companyID)
	rows, err := m.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily trends: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyTrend, error) {
		var d DailyTrend
		var date pgtype.Date
		var total, avg pgtype.Numeric
		if err := row.Scan(&date, &total, &d.DailyCount, &avg, &d.ActiveCompanies); err != nil {
			return d, err
		}
		d.TransactionDate = core.FormatDate(date)
		d.DailyTotal = core.NumericToFloat(total)
		d.DailyAverage = core.NumericToFloat(avg)
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan daily trends: %w", err)
	}
	return out, nil
}
