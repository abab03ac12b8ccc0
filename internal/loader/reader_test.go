package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/chargeflow/internal/core"
)

const header = "id,name,company_id,amount,status,created_at,paid_at\n"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "charges.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFile(t *testing.T) {
	path := writeCSV(t, header+
		"a1,Acme,c1,10.00,paid,2024-01-01,2024-01-02\n"+
		"a2,,c1,NULL,voided,2024-01-03,None\n")

	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	if got := core.Deref(rows[0].Amount); got != "10.00" {
		t.Errorf("rows[0].Amount = %q, want 10.00", got)
	}
	if got := core.Deref(rows[0].PaidAt); got != "2024-01-02" {
		t.Errorf("rows[0].PaidAt = %q", got)
	}
	if rows[1].Name != nil || rows[1].Amount != nil || rows[1].PaidAt != nil {
		t.Errorf("null tokens not converted: %+v", rows[1])
	}
}

func TestRead_HeaderVariants(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "utf-8 bom",
			content: "\ufeff" + header + "a1,Acme,c1,1,paid,2024-01-01,\n",
		},
		{
			name:    "mixed case header",
			content: "ID,Name,Company_ID,Amount,STATUS,Created_At,Paid_At\na1,Acme,c1,1,paid,2024-01-01,\n",
		},
		{
			name:    "reordered columns with extra",
			content: "status,amount,id,extra,name,company_id,paid_at,created_at\npaid,1,a1,x,Acme,c1,,2024-01-01\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Read(strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if len(rows) != 1 {
				t.Fatalf("len(rows) = %d, want 1", len(rows))
			}
			r := rows[0]
			if core.Deref(r.ID) != "a1" || core.Deref(r.CompanyID) != "c1" || core.Deref(r.Status) != "paid" {
				t.Errorf("row = id %q company %q status %q", core.Deref(r.ID), core.Deref(r.CompanyID), core.Deref(r.Status))
			}
			if r.PaidAt != nil {
				t.Errorf("PaidAt = %q, want nil", *r.PaidAt)
			}
		})
	}
}

func TestRead_KeepsValuesVerbatim(t *testing.T) {
	rows, err := Read(strings.NewReader(header + "a1, Acme  Corp ,c1,0.001,PAID,15/01/2024,\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := core.Deref(rows[0].Name); got != " Acme  Corp " {
		t.Errorf("Name = %q, want untouched", got)
	}
	if got := core.Deref(rows[0].Status); got != "PAID" {
		t.Errorf("Status = %q, want untouched", got)
	}
}

func TestRead_SkipsBlankRowsAndPadsShortRows(t *testing.T) {
	rows, err := Read(strings.NewReader(header + "a1,Acme,c1,1,paid\n,,,,,,\n\na2,B,c2,2,paid,2024-01-01,\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].CreatedAt != nil || rows[0].PaidAt != nil {
		t.Errorf("short row should have nil trailing cells: %+v", rows[0])
	}
}

func TestRead_InvalidUTF8Replaced(t *testing.T) {
	rows, err := Read(strings.NewReader(header + "a1,Caf\xe9,c1,1,paid,2024-01-01,\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := core.Deref(rows[0].Name); got != "Caf\uFFFD" {
		t.Errorf("Name = %q, want replacement character", got)
	}
}

func TestRead_HeaderOnly(t *testing.T) {
	rows, err := Read(strings.NewReader(header))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestReadFile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantCode string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.csv") },
			wantCode: core.CodeFileNotFound,
		},
		{
			name:     "empty file",
			path:     func(t *testing.T) string { return writeCSV(t, "") },
			wantCode: core.CodeEmptyFile,
		},
		{
			name:     "blank lines only",
			path:     func(t *testing.T) string { return writeCSV(t, "\n\n") },
			wantCode: core.CodeEmptyFile,
		},
		{
			name:     "missing columns",
			path:     func(t *testing.T) string { return writeCSV(t, "id,name,amount\na1,Acme,1\n") },
			wantCode: core.CodeMissingColumn,
		},
		{
			name:     "unterminated quote",
			path:     func(t *testing.T) string { return writeCSV(t, header+"\"a1,Acme,c1\n") },
			wantCode: core.CodeInvalidCSV,
		},
		{
			name:     "too many fields",
			path:     func(t *testing.T) string { return writeCSV(t, header+"a1,Acme,c1,1,paid,2024-01-01,,surplus\n") },
			wantCode: core.CodeInvalidCSV,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path(t)
			_, err := ReadFile(path)
			if err == nil {
				t.Fatal("ReadFile() error = nil")
			}
			if code := core.CodeOf(err); code != tt.wantCode {
				t.Errorf("CodeOf(err) = %q, want %q (err: %v)", code, tt.wantCode, err)
			}
			if !core.IsKind(err, core.KindLoading) {
				t.Errorf("error kind is not loading: %v", err)
			}
		})
	}
}

func TestReadFile_MissingColumnsListed(t *testing.T) {
	_, err := ReadFile(writeCSV(t, "id,name,amount\na1,Acme,1\n"))

	var perr *core.Error
	if !errors.As(err, &perr) {
		t.Fatalf("error is not *core.Error: %v", err)
	}
	missing, _ := perr.Details["missing_columns"].([]string)
	want := []string{"company_id", "status", "created_at", "paid_at"}
	if strings.Join(missing, ",") != strings.Join(want, ",") {
		t.Errorf("missing_columns = %v, want %v", missing, want)
	}
	if perr.Details["file_path"] == nil {
		t.Error("file_path detail not set")
	}
}
