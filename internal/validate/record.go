package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/shopspring/decimal"
)

// Field error types reported for ingested rows.
const (
	ErrMissingRequiredField = "missing_required_field"
	ErrFieldTooLong         = "field_too_long"
	ErrInvalidAmount        = "invalid_amount"
	ErrInvalidAmountFormat  = "invalid_amount_format"
	ErrInvalidStatus        = "invalid_status"
	ErrInvalidDateFormat    = "invalid_date_format"
)

// FieldError is one problem found in one row.
type FieldError struct {
	Type        string `json:"type"`
	Field       string `json:"field"`
	Row         int    `json:"row"`
	Message     string `json:"message"`
	Value       string `json:"value,omitempty"`
	ValueLength int    `json:"value_length,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// RawLimits are the raw staging column widths checked by Record.
var RawLimits = []struct {
	Field  string
	MaxLen int
}{
	{"id", core.RawMaxIDLen},
	{"name", core.RawMaxNameLen},
	{"company_id", core.RawMaxCompanyIDLen},
	{"status", core.RawMaxStatusLen},
	{"created_at", core.RawMaxDateLen},
	{"paid_at", core.RawMaxDateLen},
}

// Record checks one ingested row and returns every problem found.
// row is the 0-based data row index used in the returned errors.
func Record(raw core.RawTransaction, row int) []FieldError {
	var errs []FieldError

	if blank(raw.ID) {
		errs = append(errs, FieldError{
			Type:    ErrMissingRequiredField,
			Field:   "id",
			Row:     row,
			Message: "ID is required",
		})
	}
	if blank(raw.CompanyID) {
		errs = append(errs, FieldError{
			Type:    ErrMissingRequiredField,
			Field:   "company_id",
			Row:     row,
			Message: "Company ID is required",
		})
	}

	for _, lim := range RawLimits {
		v := raw.Field(lim.Field)
		if v == nil {
			continue
		}
		if n := utf8.RuneCountInString(*v); n > lim.MaxLen {
			errs = append(errs, FieldError{
				Type:        ErrFieldTooLong,
				Field:       lim.Field,
				Row:         row,
				Message:     fmt.Sprintf("%s exceeds maximum length of %d", lim.Field, lim.MaxLen),
				ValueLength: n,
			})
		}
	}

	if !blank(raw.Amount) {
		s := strings.TrimSpace(*raw.Amount)
		d, err := decimal.NewFromString(s)
		switch {
		case err != nil:
			errs = append(errs, FieldError{
				Type:    ErrInvalidAmountFormat,
				Field:   "amount",
				Row:     row,
				Message: "Amount must be a valid decimal number",
				Value:   s,
			})
		case d.IsNegative():
			errs = append(errs, FieldError{
				Type:    ErrInvalidAmount,
				Field:   "amount",
				Row:     row,
				Message: "Amount cannot be negative",
				Value:   s,
			})
		}
	}

	if !blank(raw.Status) {
		if r := Status(*raw.Status); !r.Valid {
			errs = append(errs, FieldError{
				Type:    ErrInvalidStatus,
				Field:   "status",
				Row:     row,
				Message: "Invalid status. Must be one of: " + strings.Join(core.ValidStatuses, ", "),
				Value:   *raw.Status,
			})
		}
	}

	for _, field := range []string{"created_at", "paid_at"} {
		v := raw.Field(field)
		if blank(v) {
			continue
		}
		if r := Date(*v, field, false); !r.Valid {
			errs = append(errs, FieldError{
				Type:    ErrInvalidDateFormat,
				Field:   field,
				Row:     row,
				Message: field + " has invalid date format",
				Value:   *v,
			})
		}
	}

	return errs
}

func blank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}
