package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// ToPgNumeric / NumericToDecimal Tests
// ----------------------------------------------------------------------------

func TestToPgNumeric(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "integer", input: "123"},
		{name: "zero", input: "0"},
		{name: "cents", input: "123.45"},
		{name: "one cent", input: "0.01"},
		{name: "trailing zeros", input: "10.00"},
		{name: "largest numeric(16,2)", input: "99999999999999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decimal.RequireFromString(tt.input)
			n := ToPgNumeric(d)
			if !n.Valid {
				t.Fatalf("ToPgNumeric(%s).Valid = false", tt.input)
			}
			back := NumericToDecimal(n)
			if !back.Equal(d) {
				t.Errorf("round trip %s = %s", tt.input, back)
			}
		})
	}
}

func TestNumericToDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   pgtype.Numeric
		want string
	}{
		{name: "null is zero", in: pgtype.Numeric{}, want: "0"},
		{name: "nan is zero", in: pgtype.Numeric{NaN: true, Valid: true}, want: "0"},
		{name: "scaled", in: pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, want: "123.45"},
		{name: "positive exponent", in: pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}, want: "5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NumericToDecimal(tt.in)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("NumericToDecimal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNumericToFloat(t *testing.T) {
	got := NumericToFloat(pgtype.Numeric{Int: big.NewInt(1050), Exp: -2, Valid: true})
	if got != 10.5 {
		t.Errorf("NumericToFloat() = %v, want 10.5", got)
	}
}

// ----------------------------------------------------------------------------
// Text / Timestamp / UUID Tests
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	if got := ToPgText(nil); got.Valid {
		t.Errorf("ToPgText(nil).Valid = true, want false")
	}
	got := ToPgText(Ptr("acme"))
	if !got.Valid || got.String != "acme" {
		t.Errorf("ToPgText(acme) = %+v", got)
	}
	// Empty but present strings are stored as-is.
	if got := ToPgText(Ptr("")); !got.Valid {
		t.Errorf("ToPgText(\"\").Valid = false, want true")
	}
}

func TestToPgTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := ToPgTimestamp(time.Time{}); got.Valid {
		t.Error("zero time should be NULL")
	}
	if got := ToPgTimestamp(ts); !got.Valid || !got.Time.Equal(ts) {
		t.Errorf("ToPgTimestamp() = %+v", got)
	}
	if got := ToPgTimestampPtr(nil); got.Valid {
		t.Error("nil time should be NULL")
	}
	if got := ToPgTimestampPtr(&ts); !got.Valid {
		t.Error("ToPgTimestampPtr(&ts).Valid = false")
	}

	if got := TimestampPtr(pgtype.Timestamp{}); got != nil {
		t.Errorf("TimestampPtr(NULL) = %v, want nil", got)
	}
	if got := TimestampPtr(pgtype.Timestamp{Time: ts, Valid: true}); got == nil || !got.Equal(ts) {
		t.Errorf("TimestampPtr() = %v, want %v", got, ts)
	}
}

func TestToPgUUID(t *testing.T) {
	if got := ToPgUUID(uuid.Nil); got.Valid {
		t.Error("nil UUID should be NULL")
	}
	id := uuid.New()
	got := ToPgUUID(id)
	if !got.Valid || uuid.UUID(got.Bytes) != id {
		t.Errorf("ToPgUUID() = %+v, want %s", got, id)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(pgtype.Date{}); got != "" {
		t.Errorf("FormatDate(NULL) = %q, want empty", got)
	}
	d := pgtype.Date{Time: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Valid: true}
	if got := FormatDate(d); got != "2024-02-29" {
		t.Errorf("FormatDate() = %q, want 2024-02-29", got)
	}
}

// ----------------------------------------------------------------------------
// CSV helpers
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "Excel formula with quotes", input: `="12345"`, want: "12345"},
		{name: "quoted", input: `"paid"`, want: "paid"},
		{name: "single quoted", input: `'paid'`, want: "paid"},
		{name: "BOM-free header", input: "id", want: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		checks map[string]int
	}{
		{
			name:   "charge header",
			header: RawColumns,
			checks: map[string]int{"id": 0, "company_id": 2, "paid_at": 6},
		},
		{
			name:   "case insensitive lookup",
			header: []string{"ID", "Name", "Company_ID"},
			checks: map[string]int{"id": 0, "name": 1, "company_id": 2},
		},
		{
			name:   "headers with quotes and whitespace",
			header: []string{` "id" `, " amount "},
			checks: map[string]int{"id": 0, "amount": 1},
		},
		{
			name:   "empty header",
			header: []string{},
			checks: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := MakeHeaderIndex(tt.header)
			for key, wantPos := range tt.checks {
				gotPos, ok := idx[key]
				if !ok {
					t.Errorf("MakeHeaderIndex(%v)[%q] not found, want index %d", tt.header, key, wantPos)
					continue
				}
				if gotPos != wantPos {
					t.Errorf("MakeHeaderIndex(%v)[%q] = %d, want %d", tt.header, key, gotPos, wantPos)
				}
			}
		})
	}
}

// When duplicates exist, the first occurrence wins.
func TestMakeHeaderIndex_DuplicateHeaders(t *testing.T) {
	idx := MakeHeaderIndex([]string{"id", "amount", "id"})
	if gotPos := idx["id"]; gotPos != 0 {
		t.Errorf("id index = %d, want 0", gotPos)
	}
}

// ----------------------------------------------------------------------------
// Model helpers
// ----------------------------------------------------------------------------

func TestIsNullToken(t *testing.T) {
	for _, s := range []string{"", "  ", "NULL", "null", "None", " NULL "} {
		if !IsNullToken(s) {
			t.Errorf("IsNullToken(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"0", "none", "Nil", "n/a"} {
		if IsNullToken(s) {
			t.Errorf("IsNullToken(%q) = true, want false", s)
		}
	}
}

func TestRawTransactionData(t *testing.T) {
	r := RawTransaction{ID: Ptr("a1"), Amount: Ptr("10.00")}
	data := r.Data()

	if len(data) != len(RawColumns) {
		t.Fatalf("len(Data()) = %d, want %d", len(data), len(RawColumns))
	}
	if data["id"] != "a1" || data["amount"] != "10.00" {
		t.Errorf("Data() = %v", data)
	}
	if data["paid_at"] != nil {
		t.Errorf("Data()[paid_at] = %v, want nil", data["paid_at"])
	}
	if r.Field("bogus") != nil {
		t.Error("Field(bogus) should be nil")
	}
}
