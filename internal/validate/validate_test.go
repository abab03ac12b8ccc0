package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// Amount
// ----------------------------------------------------------------------------

func TestAmount(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		opts         AmountOptions
		wantValid    bool
		wantValue    string
		wantWarnings int
		wantError    string
	}{
		{name: "plain amount", raw: "10.00", wantValid: true, wantValue: "10"},
		{name: "integer amount", raw: "42", wantValid: true, wantValue: "42"},
		{name: "surrounding whitespace", raw: "  7.5 ", wantValid: true, wantValue: "7.5"},
		{name: "sub-cent rounds up to one cent", raw: "0.001", wantValid: true, wantValue: "0.01", wantWarnings: 1},
		{name: "sub-cent without floor rounds to zero", raw: "0.004", opts: AmountOptions{AllowZero: true, NoFloor: true}, wantValid: true, wantValue: "0", wantWarnings: 1},
		{name: "half cent without floor rounds up", raw: "0.005", opts: AmountOptions{NoFloor: true}, wantValid: true, wantValue: "0.01", wantWarnings: 1},
		{name: "three decimals rounded", raw: "12.345", wantValid: true, wantValue: "12.35", wantWarnings: 1},
		{name: "negative rejected", raw: "-1", wantError: "Amount cannot be negative"},
		{name: "garbage rejected", raw: "abc", wantError: "Invalid amount format: abc"},
		{name: "blank is missing", raw: "  ", wantError: "Amount is required"},
		{name: "null token is missing", raw: "NULL", wantError: "Amount is required"},
		{name: "zero rejected by default", raw: "0", wantError: "Amount cannot be zero"},
		{name: "zero allowed", raw: "0.00", opts: AmountOptions{AllowZero: true}, wantValid: true, wantValue: "0"},
		{name: "too large", raw: "100000000000000", wantError: "Amount exceeds maximum of 99999999999999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Amount(tt.raw, tt.opts)
			if got.Valid != tt.wantValid {
				t.Fatalf("Amount(%q).Valid = %v, want %v (errors: %v)", tt.raw, got.Valid, tt.wantValid, got.Errors)
			}
			if tt.wantValid {
				want := decimal.RequireFromString(tt.wantValue)
				if !got.Value.Equal(want) {
					t.Errorf("Amount(%q).Value = %s, want %s", tt.raw, got.Value, want)
				}
			}
			if len(got.Warnings) != tt.wantWarnings {
				t.Errorf("Amount(%q) warnings = %v, want %d", tt.raw, got.Warnings, tt.wantWarnings)
			}
			if tt.wantError != "" {
				if len(got.Errors) == 0 || got.Errors[0] != tt.wantError {
					t.Errorf("Amount(%q) errors = %v, want %q", tt.raw, got.Errors, tt.wantError)
				}
			}
		})
	}
}

func TestAmountRoundingWarningText(t *testing.T) {
	got := Amount("0.001", AmountOptions{})
	want := "Amount has more than 2 decimal places, will be rounded"
	if len(got.Warnings) != 1 || got.Warnings[0] != want {
		t.Errorf("warnings = %v, want [%q]", got.Warnings, want)
	}
}

// ----------------------------------------------------------------------------
// Status
// ----------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	tests := []struct {
		raw       string
		wantValid bool
		wantValue string
	}{
		{"paid", true, "paid"},
		{" PAID ", true, "paid"},
		{"Pending_Payment", true, "pending_payment"},
		{"charged_back", true, "charged_back"},
		{"unknown", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Status(tt.raw)
			if got.Valid != tt.wantValid {
				t.Fatalf("Status(%q).Valid = %v, want %v", tt.raw, got.Valid, tt.wantValid)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Status(%q).Value = %q, want %q", tt.raw, got.Value, tt.wantValue)
			}
		})
	}
}

func TestMustStatus(t *testing.T) {
	if s, err := MustStatus("Refunded"); err != nil || s != "refunded" {
		t.Errorf("MustStatus(Refunded) = %q, %v; want refunded, nil", s, err)
	}

	_, err := MustStatus("bogus")
	if err == nil {
		t.Fatal("MustStatus(bogus) returned nil error")
	}
	if code := core.CodeOf(err); code != core.CodeInvalidStatus {
		t.Errorf("CodeOf = %q, want %q", code, core.CodeInvalidStatus)
	}
	if !core.IsKind(err, core.KindValidation) {
		t.Error("error kind should be validation")
	}
}

// ----------------------------------------------------------------------------
// String / ID
// ----------------------------------------------------------------------------

func TestString(t *testing.T) {
	t.Run("truncates with warning", func(t *testing.T) {
		got := String("  abcdef ", "name", StringOptions{MaxLen: 3})
		if !got.Valid || got.Value != "abc" {
			t.Fatalf("String = %+v, want valid abc", got)
		}
		want := "name exceeds maximum length of 3, will be truncated"
		if len(got.Warnings) != 1 || got.Warnings[0] != want {
			t.Errorf("warnings = %v, want [%q]", got.Warnings, want)
		}
	})

	t.Run("whitespace counts as missing", func(t *testing.T) {
		got := String("   ", "id", StringOptions{Required: true})
		if got.Valid {
			t.Fatal("expected invalid result")
		}
		if got.Errors[0] != "id is required" {
			t.Errorf("error = %q, want %q", got.Errors[0], "id is required")
		}
	})

	t.Run("optional blank is valid", func(t *testing.T) {
		got := String("", "name", StringOptions{})
		if !got.Valid || got.Value != "" {
			t.Errorf("String = %+v, want valid empty", got)
		}
	})

	t.Run("below min length", func(t *testing.T) {
		got := String("ab", "code", StringOptions{MinLen: 3})
		if got.Valid {
			t.Fatal("expected invalid result")
		}
		if !strings.Contains(got.Errors[0], "at least 3") {
			t.Errorf("error = %q", got.Errors[0])
		}
	})
}

func TestID(t *testing.T) {
	long := strings.Repeat("c", 40)
	got := ID(long, "company_id", core.MaxCompanyIDLen)
	if !got.Valid {
		t.Fatalf("ID invalid: %v", got.Errors)
	}
	if len(got.Value) != 24 {
		t.Errorf("len(Value) = %d, want 24", len(got.Value))
	}
	if len(got.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", got.Warnings)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 2, "he"},
		{"héllo", 2, "hé"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// Dates
// ----------------------------------------------------------------------------

func TestDate(t *testing.T) {
	jan15 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		raw         string
		required    bool
		wantValid   bool
		want        time.Time
		wantWarning bool
	}{
		{name: "iso date", raw: "2024-01-15", wantValid: true, want: jan15},
		{name: "iso datetime", raw: "2024-01-15 10:30:00", wantValid: true, want: jan15.Add(10*time.Hour + 30*time.Minute)},
		{name: "slashes", raw: "2024/01/15", wantValid: true, want: jan15},
		{name: "day first dashes", raw: "15-01-2024", wantValid: true, want: jan15},
		{name: "day first slashes", raw: "15/01/2024", wantValid: true, want: jan15},
		{name: "month first when day first fails", raw: "01/15/2024", wantValid: true, want: jan15},
		{name: "iso T", raw: "2024-01-15T00:00:00", wantValid: true, want: jan15},
		{name: "iso Z", raw: "2024-01-15T00:00:00Z", wantValid: true, want: jan15},
		{name: "fallback parser", raw: "January 15, 2024", wantValid: true, want: jan15, wantWarning: true},
		{name: "blank optional", raw: "", wantValid: true},
		{name: "blank required", raw: " ", required: true, wantValid: false},
		{name: "garbage", raw: "2024-13-45", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Date(tt.raw, "created_at", tt.required)
			if got.Valid != tt.wantValid {
				t.Fatalf("Date(%q).Valid = %v, want %v (errors %v)", tt.raw, got.Valid, tt.wantValid, got.Errors)
			}
			if tt.wantValid && !got.Value.Equal(tt.want) {
				t.Errorf("Date(%q) = %v, want %v", tt.raw, got.Value, tt.want)
			}
			hasWarning := len(got.Warnings) > 0
			if hasWarning != tt.wantWarning {
				t.Errorf("Date(%q) warnings = %v, want warning %v", tt.raw, got.Warnings, tt.wantWarning)
			}
			if tt.wantWarning && got.Warnings[0] != "created_at parsed with fallback method" {
				t.Errorf("warning = %q", got.Warnings[0])
			}
		})
	}
}

func TestDateErrorMessages(t *testing.T) {
	if got := Date("", "created_at", true); got.Errors[0] != "created_at is required" {
		t.Errorf("error = %q", got.Errors[0])
	}
	if got := Date("2024-13-45", "paid_at", false); got.Errors[0] != "Unable to parse paid_at: 2024-13-45" {
		t.Errorf("error = %q", got.Errors[0])
	}
}

func TestDateOrder(t *testing.T) {
	created := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	if r := DateOrder(created, created.Add(time.Hour), "created_at", "paid_at"); !r.Valid {
		t.Errorf("later date rejected: %v", r.Errors)
	}
	if r := DateOrder(created, created, "created_at", "paid_at"); !r.Valid {
		t.Errorf("equal dates rejected: %v", r.Errors)
	}
	r := DateOrder(created, created.Add(-time.Hour), "created_at", "paid_at")
	if r.Valid {
		t.Fatal("earlier date accepted")
	}
	if r.Errors[0] != "paid_at cannot be before created_at" {
		t.Errorf("error = %q", r.Errors[0])
	}
	if r := DateOrder(created, time.Time{}, "created_at", "paid_at"); !r.Valid {
		t.Error("zero time should not be compared")
	}
}

// ----------------------------------------------------------------------------
// Record
// ----------------------------------------------------------------------------

func raw(id, name, company, amount, status, created, paid string) core.RawTransaction {
	return core.RawTransaction{
		ID:        core.NullableCell(id),
		Name:      core.NullableCell(name),
		CompanyID: core.NullableCell(company),
		Amount:    core.NullableCell(amount),
		Status:    core.NullableCell(status),
		CreatedAt: core.NullableCell(created),
		PaidAt:    core.NullableCell(paid),
	}
}

func TestRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       core.RawTransaction
		wantTypes []string
		wantField string
	}{
		{
			name: "clean row",
			rec:  raw("a1", "Acme", "c1", "10.00", "paid", "2020-01-01", "2020-01-01"),
		},
		{
			name:      "missing id",
			rec:       raw("", "Acme", "c1", "10.00", "paid", "2020-01-01", ""),
			wantTypes: []string{ErrMissingRequiredField},
			wantField: "id",
		},
		{
			name:      "missing company",
			rec:       raw("a1", "Acme", "NULL", "10.00", "paid", "2020-01-01", ""),
			wantTypes: []string{ErrMissingRequiredField},
			wantField: "company_id",
		},
		{
			name:      "negative amount",
			rec:       raw("a1", "Acme", "c1", "-5", "paid", "2020-01-01", ""),
			wantTypes: []string{ErrInvalidAmount},
			wantField: "amount",
		},
		{
			name:      "bad amount",
			rec:       raw("a1", "Acme", "c1", "ten", "paid", "2020-01-01", ""),
			wantTypes: []string{ErrInvalidAmountFormat},
			wantField: "amount",
		},
		{
			name:      "bad status",
			rec:       raw("a1", "Acme", "c1", "1", "bogus", "2020-01-01", ""),
			wantTypes: []string{ErrInvalidStatus},
			wantField: "status",
		},
		{
			name:      "bad date",
			rec:       raw("a1", "Acme", "c1", "1", "paid", "2024-13-45", ""),
			wantTypes: []string{ErrInvalidDateFormat},
			wantField: "created_at",
		},
		{
			name:      "id too long for staging",
			rec:       raw(strings.Repeat("x", 70), "Acme", "c1", "1", "paid", "2020-01-01", ""),
			wantTypes: []string{ErrFieldTooLong},
			wantField: "id",
		},
		{
			name:      "zero amount is fine at load time",
			rec:       raw("a1", "Acme", "c1", "0", "voided", "2020-01-01", ""),
			wantTypes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Record(tt.rec, 3)
			if len(errs) != len(tt.wantTypes) {
				t.Fatalf("Record() = %v, want types %v", errs, tt.wantTypes)
			}
			for i, e := range errs {
				if e.Type != tt.wantTypes[i] {
					t.Errorf("errs[%d].Type = %q, want %q", i, e.Type, tt.wantTypes[i])
				}
				if e.Row != 3 {
					t.Errorf("errs[%d].Row = %d, want 3", i, e.Row)
				}
				if e.Field != tt.wantField {
					t.Errorf("errs[%d].Field = %q, want %q", i, e.Field, tt.wantField)
				}
			}
		})
	}
}

func TestBatchSize(t *testing.T) {
	if r := BatchSize(0, 1000); !r.Valid || r.Value != 1000 {
		t.Errorf("BatchSize(0) = %+v, want default 1000", r)
	}
	if r := BatchSize(-1, 1000); r.Valid {
		t.Error("negative batch size accepted")
	}
	if r := BatchSize(200000, 1000); !r.Valid || len(r.Warnings) != 1 {
		t.Errorf("BatchSize(200000) = %+v, want valid with warning", r)
	}
}
