package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/compress"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Output formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatXLSX    = "xlsx"
)

// Formats lists the supported output formats.
var Formats = []string{FormatCSV, FormatParquet, FormatXLSX}

// Parquet compression codecs by name.
var codecs = map[string]compress.Compression{
	"snappy": compress.Codecs.Snappy,
	"gzip":   compress.Codecs.Gzip,
	"zstd":   compress.Codecs.Zstd,
	"brotli": compress.Codecs.Brotli,
	"none":   compress.Codecs.Uncompressed,
}

// WriterOptions tunes the file writers.
type WriterOptions struct {
	Delimiter     rune
	IncludeHeader bool
	// DateLayout formats timestamps in text formats.
	DateLayout  string
	Compression string
	SheetName   string
}

// rowWriter writes chunks of rows to one output file.
type rowWriter interface {
	Write(rows [][]any) error
	Close() error
}

func newWriter(format, path string, cols []Column, opts WriterOptions) (rowWriter, error) {
	switch format {
	case FormatCSV:
		return newCSVWriter(path, cols, opts)
	case FormatParquet:
		return newParquetWriter(path, cols, opts)
	case FormatXLSX:
		return newXLSXWriter(path, cols, opts)
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// formatCell renders v as text.
func formatCell(v any, kind ColumnKind, layout string) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		if kind == KindDate {
			return x.Format(time.DateOnly)
		}
		return x.Format(layout)
	}
	return fmt.Sprint(v)
}

type csvWriter struct {
	f      *os.File
	w      *csv.Writer
	cols   []Column
	layout string
}

func newCSVWriter(path string, cols []Column, opts WriterOptions) (*csvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if opts.Delimiter != 0 {
		w.Comma = opts.Delimiter
	}
	if opts.IncludeHeader {
		if err := w.Write(columnNames(cols)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &csvWriter{f: f, w: w, cols: cols, layout: opts.DateLayout}, nil
}

func (c *csvWriter) Write(rows [][]any) error {
	record := make([]string, len(c.cols))
	for _, row := range rows {
		for i, col := range c.cols {
			record[i] = formatCell(row[i], col.Kind, c.layout)
		}
		if err := c.w.Write(record); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

type parquetWriter struct {
	f      *os.File
	fw     *pqarrow.FileWriter
	schema *arrow.Schema
	cols   []Column
}

func arrowType(kind ColumnKind) arrow.DataType {
	switch kind {
	case KindNumeric:
		return arrow.PrimitiveTypes.Float64
	case KindInt:
		return arrow.PrimitiveTypes.Int64
	case KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	}
	return arrow.BinaryTypes.String
}

func newParquetWriter(path string, cols []Column, opts WriterOptions) (*parquetWriter, error) {
	name := strings.ToLower(opts.Compression)
	if name == "" {
		name = "snappy"
	}
	codec, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unsupported compression: %s", name)
	}

	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(codec))
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &parquetWriter{f: f, fw: fw, schema: schema, cols: cols}, nil
}

// Write stores rows as one row group.
func (p *parquetWriter) Write(rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, p.schema)
	defer b.Release()

	for _, row := range rows {
		for i, col := range p.cols {
			if err := appendCell(b.Field(i), col.Kind, row[i]); err != nil {
				return fmt.Errorf("column %s: %w", col.Name, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return p.fw.Write(rec)
}

func appendCell(fb array.Builder, kind ColumnKind, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}

	switch kind {
	case KindText:
		fb.(*array.StringBuilder).Append(formatCell(v, kind, time.RFC3339))
	case KindNumeric:
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(f)
	case KindInt:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("unexpected %T for integer", v)
		}
		fb.(*array.Int64Builder).Append(n)
	case KindTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected %T for timestamp", v)
		}
		fb.(*array.TimestampBuilder).Append(arrow.Timestamp(t.UnixMicro()))
	case KindDate:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected %T for date", v)
		}
		fb.(*array.Date32Builder).Append(arrow.Date32FromTime(t))
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("unexpected %T for numeric", v)
}

// Close writes the footer. The parquet writer closes the file itself.
func (p *parquetWriter) Close() error {
	err := p.fw.Close()
	if cerr := p.f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

type xlsxWriter struct {
	f      *excelize.File
	sw     *excelize.StreamWriter
	path   string
	cols   []Column
	layout string
	row    int
}

func newXLSXWriter(path string, cols []Column, opts WriterOptions) (*xlsxWriter, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if opts.SheetName != "" {
		if err := f.SetSheetName(sheet, opts.SheetName); err != nil {
			f.Close()
			return nil, err
		}
		sheet = opts.SheetName
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		f.Close()
		return nil, err
	}

	x := &xlsxWriter{f: f, sw: sw, path: path, cols: cols, layout: opts.DateLayout}
	if opts.IncludeHeader {
		header := make([]any, len(cols))
		for i, c := range cols {
			header[i] = c.Name
		}
		if err := x.setRow(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return x, nil
}

func (x *xlsxWriter) setRow(values []any) error {
	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	return x.sw.SetRow(cell, values)
}

func (x *xlsxWriter) Write(rows [][]any) error {
	for _, row := range rows {
		values := make([]any, len(x.cols))
		for i, col := range x.cols {
			switch v := row[i].(type) {
			case nil:
			case decimal.Decimal:
				values[i] = v.InexactFloat64()
			case int64:
				values[i] = v
			default:
				values[i] = formatCell(v, col.Kind, x.layout)
			}
		}
		if err := x.setRow(values); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) Close() error {
	if err := x.sw.Flush(); err != nil {
		x.f.Close()
		return err
	}
	return errors.Join(x.f.SaveAs(x.path), x.f.Close())
}
