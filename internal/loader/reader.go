package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadFile reads a charge CSV from disk.
//
// Failures are *core.Error values: FILE006 when the file is missing,
// FILE005 when it is empty, FILE002 when it is not valid CSV and VAL004 when
// required columns are absent.
func ReadFile(path string) ([]core.RawTransaction, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.WrapError(core.KindLoading, core.CodeFileNotFound, "file not found", err).
				With("file_path", path)
		}
		return nil, core.WrapError(core.KindLoading, core.CodeInvalidCSV, "invalid csv", err).
			With("file_path", path)
	}
	if info.Size() == 0 {
		return nil, core.NewError(core.KindLoading, core.CodeEmptyFile, "empty file").
			With("file_path", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.KindLoading, core.CodeInvalidCSV, "invalid csv", err).
			With("file_path", path)
	}
	defer f.Close()

	rows, err := Read(f)
	var perr *core.Error
	if errors.As(err, &perr) {
		perr.With("file_path", path)
	}
	return rows, err
}

// Read parses charge rows from r.
//
// A leading UTF-8 BOM is dropped and invalid UTF-8 sequences become U+FFFD.
// Header names match case-insensitively and may appear in any order. Cell
// values are kept verbatim except the null tokens "", NULL, null and None,
// which become nil. Blank lines are skipped.
func Read(r io.Reader) ([]core.RawTransaction, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.NewError(core.KindLoading, core.CodeEmptyFile, "empty file")
	}
	if err != nil {
		return nil, core.WrapError(core.KindLoading, core.CodeInvalidCSV, "invalid csv", err)
	}

	idx := core.MakeHeaderIndex(header)
	if missing := missingColumns(idx); len(missing) > 0 {
		return nil, core.NewError(core.KindLoading, core.CodeMissingColumn,
			"missing required columns: "+strings.Join(missing, ", ")).
			With("missing_columns", missing).
			With("found_columns", header)
	}

	var rows []core.RawTransaction
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.KindLoading, core.CodeInvalidCSV, "invalid csv", err)
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, core.NewError(core.KindLoading, core.CodeInvalidCSV,
				fmt.Sprintf("invalid csv: line %d has %d fields, header has %d", line, len(rec), len(header))).
				With("line", line)
		}
		if isEmptyRow(rec) {
			continue
		}
		rows = append(rows, rowFromRecord(rec, idx))
	}

	return rows, nil
}

func missingColumns(idx core.HeaderIndex) []string {
	var missing []string
	for _, col := range core.RawColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func rowFromRecord(rec []string, idx core.HeaderIndex) core.RawTransaction {
	cell := func(col string) *string {
		pos := idx[col]
		if pos >= len(rec) {
			return nil
		}
		return core.NullableCell(rec[pos])
	}
	return core.RawTransaction{
		ID:        cell("id"),
		Name:      cell("name"),
		CompanyID: cell("company_id"),
		Amount:    cell("amount"),
		Status:    cell("status"),
		CreatedAt: cell("created_at"),
		PaidAt:    cell("paid_at"),
	}
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
