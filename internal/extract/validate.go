package extract

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/xuri/excelize/v2"
)

// FileValidation describes an output file read back from disk.
type FileValidation struct {
	FilePath    string   `json:"file_path"`
	Exists      bool     `json:"file_exists"`
	SizeBytes   int64    `json:"file_size_bytes"`
	Format      string   `json:"format"`
	Readable    bool     `json:"is_readable"`
	RowCount    int64    `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	Columns     []string `json:"columns"`
	Errors      []string `json:"validation_errors"`
	Valid       bool     `json:"is_valid"`
}

// ValidateFile opens path according to its extension and reports its shape.
// CSV files are expected to carry a header row.
func ValidateFile(path string, delimiter rune) FileValidation {
	v := FileValidation{
		FilePath: path,
		Format:   strings.TrimPrefix(filepath.Ext(path), "."),
		Columns:  []string{},
		Errors:   []string{},
	}

	fi, err := os.Stat(path)
	if err != nil {
		v.Errors = append(v.Errors, "File does not exist")
		return v
	}
	v.Exists = true
	v.SizeBytes = fi.Size()

	switch v.Format {
	case FormatCSV:
		err = v.readCSV(delimiter)
	case FormatParquet:
		err = v.readParquet()
	case FormatXLSX:
		err = v.readXLSX()
	default:
		err = errors.New("unsupported format: " + v.Format)
	}
	if err != nil {
		v.Errors = append(v.Errors, "File reading error: "+err.Error())
		return v
	}

	v.Readable = true
	v.ColumnCount = len(v.Columns)
	if v.RowCount == 0 {
		v.Errors = append(v.Errors, "File contains no data rows")
	}
	v.Valid = len(v.Errors) == 0
	return v
}

func (v *FileValidation) readCSV(delimiter rune) error {
	f, err := os.Open(v.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	if delimiter != 0 {
		r.Comma = delimiter
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	v.Columns = header

	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		v.RowCount++
	}
}

func (v *FileValidation) readParquet() error {
	r, err := file.OpenParquetFile(v.FilePath, false)
	if err != nil {
		return err
	}
	defer r.Close()

	schema := r.MetaData().Schema
	for i := 0; i < schema.NumColumns(); i++ {
		v.Columns = append(v.Columns, schema.Column(i).Name())
	}
	v.RowCount = r.NumRows()
	return nil
}

func (v *FileValidation) readXLSX() error {
	f, err := excelize.OpenFile(v.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	v.Columns = rows[0]
	v.RowCount = int64(len(rows) - 1)
	return nil
}

// Statistics summarizes a set of extractions.
type Statistics struct {
	TotalExtractions      int            `json:"total_extractions"`
	SuccessfulExtractions int            `json:"successful_extractions"`
	FailedExtractions     int            `json:"failed_extractions"`
	TotalRowsExtracted    int64          `json:"total_rows_extracted"`
	TotalSeconds          float64        `json:"total_execution_time_seconds"`
	AverageSeconds        float64        `json:"average_execution_time_seconds"`
	FormatsUsed           map[string]int `json:"formats_used"`
	LargestExtraction     *Metadata      `json:"largest_extraction,omitempty"`
}

// Summarize aggregates history. An extraction counts as successful when
// every counted row was written.
func Summarize(history []Metadata) Statistics {
	s := Statistics{
		TotalExtractions: len(history),
		FormatsUsed:      make(map[string]int),
	}

	for i, m := range history {
		if m.ExtractedRows == m.TotalRows {
			s.SuccessfulExtractions++
		} else {
			s.FailedExtractions++
		}
		s.TotalRowsExtracted += m.ExtractedRows
		s.TotalSeconds += m.ExecutionSeconds
		s.FormatsUsed[m.OutputFormat]++

		if s.LargestExtraction == nil || m.ExtractedRows > s.LargestExtraction.ExtractedRows {
			s.LargestExtraction = &history[i]
		}
	}
	if len(history) > 0 {
		s.AverageSeconds = s.TotalSeconds / float64(len(history))
	}
	return s
}
