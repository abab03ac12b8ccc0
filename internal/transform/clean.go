package transform

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/validate"
	"github.com/shopspring/decimal"
)

// record is a raw row after cleaning, ready for the business rules.
type record struct {
	RowIndex    int
	ID          string
	CompanyID   string
	CompanyName string
	Amount      decimal.Decimal
	Status      string
	CreatedAt   time.Time
	PaidAt      *time.Time
	UpdatedAt   *time.Time
}

// cleanRow runs every field of raw through the validators. A row with any
// errors must be excluded; warnings describe values that were repaired.
func cleanRow(raw core.RawTransaction, index int) (rec record, errs, warns []string) {
	rec.RowIndex = index

	collect := func(e, w []string) {
		errs = append(errs, e...)
		warns = append(warns, w...)
	}

	id := validate.ID(core.Deref(raw.ID), "ID", core.MaxChargeIDLen)
	collect(id.Errors, id.Warnings)
	rec.ID = id.Value

	company := validate.ID(core.Deref(raw.CompanyID), "Company ID", core.MaxCompanyIDLen)
	collect(company.Errors, company.Warnings)
	rec.CompanyID = company.Value

	name := validate.String(core.Deref(raw.Name), "Company name", validate.StringOptions{MaxLen: core.MaxCompanyNameLen})
	collect(name.Errors, name.Warnings)
	rec.CompanyName = name.Value
	if rec.CompanyName == "" {
		warns = append(warns, "Company name is missing")
		rec.CompanyName = core.UnknownCompanyName
	}

	amount := validate.Amount(core.Deref(raw.Amount), validate.AmountOptions{AllowZero: true, NoFloor: true})
	collect(amount.Errors, amount.Warnings)
	rec.Amount = amount.Value

	status := validate.Status(core.Deref(raw.Status))
	collect(status.Errors, status.Warnings)
	rec.Status = status.Value

	created := validate.Date(core.Deref(raw.CreatedAt), "created_at", true)
	collect(created.Errors, created.Warnings)
	rec.CreatedAt = created.Value

	if raw.PaidAt != nil && !core.IsNullToken(*raw.PaidAt) {
		paid := validate.Date(*raw.PaidAt, "paid_at", false)
		if paid.Valid {
			warns = append(warns, paid.Warnings...)
			rec.PaidAt = core.Ptr(paid.Value)
		} else {
			warns = append(warns, "paid_at: "+strings.Join(paid.Errors, "; "))
		}
	}

	return rec, errs, warns
}

// convertRow type-converts raw without repairing anything. It is used when
// validation is disabled; any value that does not fit the normalized columns
// is an error.
func convertRow(raw core.RawTransaction, index int) (record, error) {
	rec := record{RowIndex: index}

	var err error
	if rec.ID, err = requiredText(raw.ID, "id", core.MaxChargeIDLen); err != nil {
		return rec, err
	}
	if rec.CompanyID, err = requiredText(raw.CompanyID, "company_id", core.MaxCompanyIDLen); err != nil {
		return rec, err
	}

	rec.CompanyName = strings.TrimSpace(core.Deref(raw.Name))
	if rec.CompanyName == "" {
		rec.CompanyName = core.UnknownCompanyName
	}
	if n := utf8.RuneCountInString(rec.CompanyName); n > core.MaxCompanyNameLen {
		return rec, fmt.Errorf("name is %d characters, column allows %d", n, core.MaxCompanyNameLen)
	}

	amount := strings.TrimSpace(core.Deref(raw.Amount))
	if amount == "" {
		return rec, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return rec, fmt.Errorf("amount %q is not a number", amount)
	}
	if d.IsNegative() {
		return rec, fmt.Errorf("amount %s is negative", amount)
	}
	if d = d.Round(2); d.GreaterThan(validate.MaxAmount) {
		return rec, fmt.Errorf("amount %s is out of range", amount)
	}
	rec.Amount = d

	status := validate.Status(core.Deref(raw.Status))
	if !status.Valid {
		return rec, status.Err()
	}
	rec.Status = status.Value

	created := validate.Date(core.Deref(raw.CreatedAt), "created_at", true)
	if !created.Valid {
		return rec, created.Err()
	}
	rec.CreatedAt = created.Value

	if raw.PaidAt != nil && !core.IsNullToken(*raw.PaidAt) {
		paid := validate.Date(*raw.PaidAt, "paid_at", false)
		if !paid.Valid {
			return rec, paid.Err()
		}
		rec.PaidAt = core.Ptr(paid.Value)
	}

	return rec, nil
}

func requiredText(p *string, field string, maxLen int) (string, error) {
	s := strings.TrimSpace(core.Deref(p))
	if s == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	if n := utf8.RuneCountInString(s); n > maxLen {
		return "", fmt.Errorf("%s is %d characters, column allows %d", field, n, maxLen)
	}
	return s, nil
}
