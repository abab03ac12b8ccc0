package extract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/chargeflow/internal/core"
)

// ColumnKind is the output type of an extracted column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindNumeric
	KindInt
	KindTimestamp
	KindDate
)

// Column is one extracted column. Expr overrides the select expression.
type Column struct {
	Name string
	Kind ColumnKind
	Expr string
}

func (c Column) selectExpr() string {
	if c.Expr != "" {
		return c.Expr + " AS " + c.Name
	}
	return c.Name
}

// Filter columns a source may support.
const (
	FilterCompanyID = "company_id"
	FilterStatus    = "status"
)

// Source is a table or view that can be extracted.
type Source struct {
	Key     string
	Schema  string
	Table   string
	Columns []Column
	// Filters lists the filter columns the source supports.
	Filters []string
	// OrderBy keeps chunk boundaries stable.
	OrderBy string
}

// QualifiedName returns the quoted schema.table of the source.
func (s Source) QualifiedName() string {
	return core.QualifiedName(s.Schema, s.Table)
}

func (s Source) supports(filter string) bool {
	for _, f := range s.Filters {
		if f == filter {
			return true
		}
	}
	return false
}

var (
	sources   = make(map[string]Source)
	sourcesMu sync.RWMutex
)

// Register adds a source. Panics if the key is already registered.
func Register(src Source) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()

	if _, exists := sources[src.Key]; exists {
		panic(fmt.Sprintf("extract source already registered: %s", src.Key))
	}
	sources[src.Key] = src
}

// Lookup returns the source registered under key.
func Lookup(key string) (Source, bool) {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()

	src, ok := sources[key]
	return src, ok
}

// Sources returns every registered source sorted by key.
func Sources() []Source {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()

	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Source keys.
const (
	SourceRaw       = "raw_transactions"
	SourceCompanies = "companies"
	SourceCharges   = "charges"
	SourceSummary   = "daily_transaction_summary"
)

func init() {
	Register(Source{
		Key:    SourceRaw,
		Schema: core.RawSchema,
		Table:  core.RawTable,
		Columns: []Column{
			{Name: "row_id", Kind: KindInt},
			{Name: "id", Kind: KindText},
			{Name: "name", Kind: KindText},
			{Name: "company_id", Kind: KindText},
			{Name: "amount", Kind: KindText},
			{Name: "status", Kind: KindText},
			{Name: "created_at", Kind: KindText},
			{Name: "paid_at", Kind: KindText},
			{Name: "load_id", Kind: KindText, Expr: "load_id::text"},
			{Name: "loaded_at", Kind: KindTimestamp, Expr: "loaded_at::timestamp"},
		},
		Filters: []string{FilterCompanyID, FilterStatus},
		OrderBy: "row_id",
	})

	Register(Source{
		Key:    SourceCompanies,
		Schema: core.NormalizedSchema,
		Table:  core.CompaniesTable,
		Columns: []Column{
			{Name: "company_id", Kind: KindText},
			{Name: "company_name", Kind: KindText},
			{Name: "created_at", Kind: KindTimestamp},
			{Name: "updated_at", Kind: KindTimestamp},
		},
		Filters: []string{FilterCompanyID},
		OrderBy: "company_id",
	})

	Register(Source{
		Key:    SourceCharges,
		Schema: core.NormalizedSchema,
		Table:  core.ChargesTable,
		Columns: []Column{
			{Name: "id", Kind: KindText},
			{Name: "company_id", Kind: KindText},
			{Name: "amount", Kind: KindNumeric},
			{Name: "status", Kind: KindText},
			{Name: "created_at", Kind: KindTimestamp},
			{Name: "updated_at", Kind: KindTimestamp},
		},
		Filters: []string{FilterCompanyID, FilterStatus},
		OrderBy: "id",
	})

	Register(Source{
		Key:    SourceSummary,
		Schema: core.NormalizedSchema,
		Table:  core.DailySummaryView,
		Columns: []Column{
			{Name: "transaction_date", Kind: KindDate},
			{Name: "company_name", Kind: KindText},
			{Name: "company_id", Kind: KindText},
			{Name: "total_amount", Kind: KindNumeric},
			{Name: "transaction_count", Kind: KindInt},
			{Name: "average_amount", Kind: KindNumeric},
			{Name: "min_amount", Kind: KindNumeric},
			{Name: "max_amount", Kind: KindNumeric},
			{Name: "paid_count", Kind: KindInt},
			{Name: "refunded_count", Kind: KindInt},
			{Name: "paid_amount", Kind: KindNumeric},
			{Name: "refunded_amount", Kind: KindNumeric},
		},
		Filters: []string{FilterCompanyID},
		OrderBy: "transaction_date DESC, company_id",
	})
}
