// Package reporting owns the database layout and the read side of the
// pipeline: schema creation and validation, the daily summary view, its
// supporting indexes and the aggregate queries built on top of them.
//
// Schema operations return result structs instead of errors so callers can
// report every outcome together. Queries return plain numbers and
// YYYY-MM-DD dates.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/jackc/pgx/v5"
)

// Manager runs schema and reporting operations.
type Manager struct {
	db core.DB
}

// New creates a Manager.
func New(db core.DB) *Manager {
	return &Manager{db: db}
}

// SchemaResult is the outcome of a schema operation.
type SchemaResult struct {
	Operation  string  `json:"operation"`
	Success    bool    `json:"success"`
	Statements int     `json:"statements"`
	Error      string  `json:"error,omitempty"`
	Code       string  `json:"code,omitempty"`
	Seconds    float64 `json:"execution_time"`
}

// execAll runs stmts in one transaction and reports the outcome.
func (m *Manager) execAll(ctx context.Context, op string, stmts []string) SchemaResult {
	start := time.Now()
	logger := logging.FromContext(ctx)

	err := core.WithTx(ctx, m.db, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})

	res := SchemaResult{
		Operation:  op,
		Success:    err == nil,
		Statements: len(stmts),
		Seconds:    time.Since(start).Seconds(),
	}
	if err != nil {
		res.Error = err.Error()
		res.Code = core.CodeSchemaFailed
		logger.Error("schema operation failed", "operation", op, "error", err)
		return res
	}
	logger.Info("schema operation finished", "operation", op, "statements", len(stmts))
	return res
}

// CreateNormalizedSchema creates both schemas, the staging and normalized
// tables, the charges foreign key and the base indexes if absent.
func (m *Manager) CreateNormalizedSchema(ctx context.Context) SchemaResult {
	return m.execAll(ctx, "create_schema", schemaDDL)
}

// CreateReportingView drops and recreates the daily summary view so
// column changes between versions apply cleanly.
func (m *Manager) CreateReportingView(ctx context.Context) SchemaResult {
	return m.execAll(ctx, "create_view", []string{dropViewSQL, createViewSQL})
}

// CreateReportingIndexes creates the indexes used by the summary view.
func (m *Manager) CreateReportingIndexes(ctx context.Context) SchemaResult {
	return m.execAll(ctx, "create_indexes", reportingIndexes)
}

// Initialize creates the schema, the view and the reporting indexes, in
// that order, stopping at the first failure.
func (m *Manager) Initialize(ctx context.Context) []SchemaResult {
	steps := []func(context.Context) SchemaResult{
		m.CreateNormalizedSchema,
		m.CreateReportingView,
		m.CreateReportingIndexes,
	}

	var results []SchemaResult
	for _, step := range steps {
		res := step(ctx)
		results = append(results, res)
		if !res.Success {
			break
		}
	}
	return results
}

// ForeignKey is one foreign key constraint on a normalized table.
type ForeignKey struct {
	Name             string `json:"name"`
	Column           string `json:"constrained_column"`
	ReferencedTable  string `json:"referred_table"`
	ReferencedColumn string `json:"referred_column"`
}

// Index is one index on a normalized table.
type Index struct {
	Table      string `json:"table"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// SchemaValidation reports what exists of the normalized layout.
type SchemaValidation struct {
	SchemaExists         bool         `json:"schema_exists"`
	CompaniesTableExists bool         `json:"companies_table_exists"`
	ChargesTableExists   bool         `json:"charges_table_exists"`
	ForeignKeys          []ForeignKey `json:"foreign_key_constraints"`
	Indexes              []Index      `json:"indexes"`
	ValidationErrors     []string     `json:"validation_errors"`
	IsValid              bool         `json:"is_valid"`
}

// ValidateNormalizedSchema inspects the catalog and lists every gap.
func (m *Manager) ValidateNormalizedSchema(ctx context.Context) SchemaValidation {
	v := SchemaValidation{ForeignKeys: []ForeignKey{}, Indexes: []Index{}, ValidationErrors: []string{}}

	if err := m.inspect(ctx, &v); err != nil {
		logging.FromContext(ctx).Error("schema validation failed", "error", err)
		v.ValidationErrors = append(v.ValidationErrors, "Database error: "+err.Error())
		v.IsValid = false
		return v
	}

	v.evaluate()
	return v
}

func (m *Manager) inspect(ctx context.Context, v *SchemaValidation) error {
	err := m.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		core.NormalizedSchema,
	).Scan(&v.SchemaExists)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if !v.SchemaExists {
		return nil
	}

	rows, err := m.db.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1`,
		core.NormalizedSchema,
	)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		switch t {
		case core.CompaniesTable:
			v.CompaniesTableExists = true
		case core.ChargesTable:
			v.ChargesTableExists = true
		}
	}

	if v.ChargesTableExists {
		rows, err := m.db.Query(ctx, `
			SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
				AND tc.table_schema = $1
				AND tc.table_name = $2
			ORDER BY tc.constraint_name`,
			core.NormalizedSchema, core.ChargesTable,
		)
		if err != nil {
			return fmt.Errorf("list foreign keys: %w", err)
		}
		v.ForeignKeys, err = pgx.CollectRows(rows, pgx.RowToStructByPos[ForeignKey])
		if err != nil {
			return fmt.Errorf("list foreign keys: %w", err)
		}
	}

	rows, err = m.db.Query(ctx, `
		SELECT tablename, indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = $1 AND tablename = ANY($2)
		ORDER BY tablename, indexname`,
		core.NormalizedSchema, []string{core.CompaniesTable, core.ChargesTable},
	)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	v.Indexes, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Index])
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	return nil
}

// evaluate appends a validation error for every missing piece.
func (v *SchemaValidation) evaluate() {
	if !v.SchemaExists {
		v.ValidationErrors = append(v.ValidationErrors, core.NormalizedSchema+" schema does not exist")
		v.IsValid = false
		return
	}
	if !v.CompaniesTableExists {
		v.ValidationErrors = append(v.ValidationErrors, "companies table does not exist")
	}
	if !v.ChargesTableExists {
		v.ValidationErrors = append(v.ValidationErrors, "charges table does not exist")
	}

	if v.CompaniesTableExists && v.ChargesTableExists {
		found := false
		for _, fk := range v.ForeignKeys {
			if fk.Column == "company_id" && fk.ReferencedTable == core.CompaniesTable {
				found = true
				break
			}
		}
		if !found {
			v.ValidationErrors = append(v.ValidationErrors,
				"Expected foreign key constraint from charges.company_id to companies.company_id not found")
		}
	}

	v.IsValid = len(v.ValidationErrors) == 0
}
