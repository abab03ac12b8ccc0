package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Database layout.
const (
	RawSchema        = "raw_data"
	NormalizedSchema = "normalized_data"

	RawTable         = "raw_transactions"
	CompaniesTable   = "companies"
	ChargesTable     = "charges"
	DailySummaryView = "daily_transaction_summary"
)

// UnknownCompanyName replaces blank company names.
const UnknownCompanyName = "Unknown Company"

// Column widths of the normalized tables.
const (
	MaxChargeIDLen    = 24
	MaxCompanyIDLen   = 24
	MaxCompanyNameLen = 130
	MaxStatusLen      = 30
)

// Column widths of raw_data.raw_transactions.
const (
	RawMaxIDLen        = 64
	RawMaxNameLen      = 130
	RawMaxCompanyIDLen = 64
	RawMaxAmountLen    = 64
	RawMaxStatusLen    = 50
	RawMaxDateLen      = 50
)

// Charge statuses.
const (
	StatusPaid           = "paid"
	StatusPendingPayment = "pending_payment"
	StatusVoided         = "voided"
	StatusRefunded       = "refunded"
	StatusPreAuthorized  = "pre_authorized"
	StatusChargedBack    = "charged_back"
)

// ValidStatuses is the fixed set a charge status is drawn from.
var ValidStatuses = []string{
	StatusPaid,
	StatusPendingPayment,
	StatusVoided,
	StatusRefunded,
	StatusPreAuthorized,
	StatusChargedBack,
}

// IsValidStatus reports whether s (already normalized) is a known status.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// RawColumns is the required CSV header, in order. The same names are used
// for the raw staging columns.
var RawColumns = []string{"id", "name", "company_id", "amount", "status", "created_at", "paid_at"}

// RawTransaction is one ingested CSV row. Values are kept as text; nil means
// the cell was empty or a null token.
type RawTransaction struct {
	RowID     int64     `json:"row_id,omitempty"`
	ID        *string   `json:"id"`
	Name      *string   `json:"name"`
	CompanyID *string   `json:"company_id"`
	Amount    *string   `json:"amount"`
	Status    *string   `json:"status"`
	CreatedAt *string   `json:"created_at"`
	PaidAt    *string   `json:"paid_at"`
	LoadID    uuid.UUID `json:"load_id,omitempty"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
}

// Field returns the value of the named raw column.
func (r RawTransaction) Field(name string) *string {
	switch name {
	case "id":
		return r.ID
	case "name":
		return r.Name
	case "company_id":
		return r.CompanyID
	case "amount":
		return r.Amount
	case "status":
		return r.Status
	case "created_at":
		return r.CreatedAt
	case "paid_at":
		return r.PaidAt
	}
	return nil
}

// Data returns the row as a column -> value map, nil values included.
// Used to attach the original content to quality issues.
func (r RawTransaction) Data() map[string]any {
	m := make(map[string]any, len(RawColumns))
	for _, col := range RawColumns {
		if v := r.Field(col); v != nil {
			m[col] = *v
		} else {
			m[col] = nil
		}
	}
	return m
}

// Company is a row of normalized_data.companies.
type Company struct {
	CompanyID   string     `json:"company_id"`
	CompanyName string     `json:"company_name"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Charge is a row of normalized_data.charges. CompanyID references
// Company.CompanyID by value.
type Charge struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// nullTokens are cell values treated as missing.
var nullTokens = map[string]bool{
	"":     true,
	"NULL": true,
	"null": true,
	"None": true,
}

// IsNullToken reports whether a trimmed cell value means "no value".
func IsNullToken(s string) bool {
	return nullTokens[strings.TrimSpace(s)]
}

// NullableCell converts a CSV cell to a nullable string.
func NullableCell(s string) *string {
	if IsNullToken(s) {
		return nil
	}
	return &s
}

// Deref returns the value of p or "" when p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
