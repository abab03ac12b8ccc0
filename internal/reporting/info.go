package reporting

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/jackc/pgx/v5"
)

// TableInfo describes one pipeline table.
type TableInfo struct {
	Schema   string `json:"schema"`
	Name     string `json:"name"`
	Columns  int    `json:"columns"`
	RowCount int64  `json:"row_count"`
}

// DatabaseInfo lists the pipeline schemas, tables and views.
type DatabaseInfo struct {
	Schemas []string    `json:"schemas"`
	Tables  []TableInfo `json:"tables"`
	Views   []string    `json:"views"`
}

var pipelineSchemas = []string{core.RawSchema, core.NormalizedSchema}

// Ping checks that the database answers.
func (m *Manager) Ping(ctx context.Context) error {
	var one int
	if err := m.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// DatabaseInfo inspects the pipeline schemas. Row counts are exact.
func (m *Manager) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	info := &DatabaseInfo{}

	rows, err := m.db.Query(ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name = ANY($1)
		ORDER BY schema_name`, pipelineSchemas)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	if info.Schemas, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return nil, fmt.Errorf("scan schemas: %w", err)
	}

	rows, err = m.db.Query(ctx, `
		SELECT t.table_schema, t.table_name, COUNT(c.column_name)::int, 0::bigint
		FROM information_schema.tables t
		LEFT JOIN information_schema.columns c
			ON c.table_schema = t.table_schema AND c.table_name = t.table_name
		WHERE t.table_schema = ANY($1) AND t.table_type = 'BASE TABLE'
		GROUP BY t.table_schema, t.table_name
		ORDER BY t.table_schema, t.table_name`, pipelineSchemas)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	if info.Tables, err = pgx.CollectRows(rows, pgx.RowToStructByPos[TableInfo]); err != nil {
		return nil, fmt.Errorf("scan tables: %w", err)
	}

	for i, t := range info.Tables {
		err := m.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+core.QualifiedName(t.Schema, t.Name)).
			Scan(&info.Tables[i].RowCount)
		if err != nil {
			return nil, fmt.Errorf("count %s.%s: %w", t.Schema, t.Name, err)
		}
	}

	rows, err = m.db.Query(ctx, `
		SELECT table_schema || '.' || table_name FROM information_schema.views
		WHERE table_schema = ANY($1)
		ORDER BY 1`, pipelineSchemas)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	if info.Views, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return nil, fmt.Errorf("scan views: %w", err)
	}

	return info, nil
}
