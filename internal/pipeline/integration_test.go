package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/chargeflow/internal/admin"
	"github.com/JonMunkholm/chargeflow/internal/config"
	"github.com/JonMunkholm/chargeflow/internal/extract"
	"github.com/JonMunkholm/chargeflow/internal/reporting"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestPipeline_EndToEnd runs every stage against a real database. It
// truncates the pipeline tables, so point it at a scratch database.
func TestPipeline_EndToEnd(t *testing.T) {
	url := os.Getenv("CHARGEFLOW_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHARGEFLOW_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	cfg := testConfig(t)
	svc := New(cfg, config.DefaultRules(), Deps{DB: pool})

	results, err := svc.ApplySchema(ctx, SchemaCreate)
	if err != nil {
		t.Fatalf("ApplySchema() error = %v", err)
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("%s failed: %s", r.Operation, r.Error)
		}
	}
	if v := svc.ValidateSchema(ctx); !v.IsValid {
		t.Fatalf("ValidateSchema() errors = %v", v.ValidationErrors)
	}
	if err := svc.Reset(ctx, admin.ScopeAll); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if err := os.MkdirAll(cfg.Pipeline.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	csv := "id,name,company_id,amount,status,created_at,paid_at\n" +
		"ch1,acme  corp,c1,10.50,paid,2024-01-15 10:30:00,2024-01-15 11:00:00\n" +
		"ch2,Acme Corp,c1,4.50,refunded,2024-01-15 12:00:00,\n" +
		"ch3,Beta,c2,0.001,PAID,2024-01-16,\n" +
		"ch4,Bad,c3,-5,paid,2024-01-16,\n"
	if err := os.WriteFile(filepath.Join(cfg.Pipeline.InputDir, "charges.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	lr, err := svc.Load(ctx, LoadRequest{Path: "charges.csv"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lr.TotalRowsProcessed != 4 || lr.RowsLoaded != 4 {
		t.Errorf("Load() processed %d loaded %d, want 4 and 4", lr.TotalRowsProcessed, lr.RowsLoaded)
	}

	tr, err := svc.Transform(ctx, TransformRequest{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if tr.TransformedRows != 3 || tr.SkippedRows != 1 {
		t.Errorf("Transform() transformed %d skipped %d, want 3 and 1", tr.TransformedRows, tr.SkippedRows)
	}
	if tr.CompaniesCreated != 2 || tr.ChargesCreated != 3 {
		t.Errorf("Transform() companies %d charges %d, want 2 and 3", tr.CompaniesCreated, tr.ChargesCreated)
	}

	again, err := svc.Transform(ctx, TransformRequest{})
	if err != nil {
		t.Fatalf("second Transform() error = %v", err)
	}
	if again.CompaniesCreated != 0 || again.ChargesCreated != 0 {
		t.Errorf("second Transform() created %d companies %d charges, want none", again.CompaniesCreated, again.ChargesCreated)
	}

	rows, err := svc.Reports().QueryDailySummary(ctx, reporting.SummaryFilter{CompanyID: "c1"})
	if err != nil {
		t.Fatalf("QueryDailySummary() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.TransactionDate != "2024-01-15" || r.PaidCount != 1 || r.RefundedCount != 1 || r.TotalAmount != 15 {
		t.Errorf("summary = %+v", r)
	}
	if r.CompanyName != "Acme Corp" {
		t.Errorf("CompanyName = %q, want %q", r.CompanyName, "Acme Corp")
	}

	res, err := svc.Extract(ctx, ExtractRequest{
		Source:     extract.SourceCharges,
		Format:     extract.FormatCSV,
		OutputPath: "charges.csv",
		Filters:    extract.Filters{Statuses: []string{"paid"}},
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Metadata.ExtractedRows != 2 {
		t.Errorf("ExtractedRows = %d, want 2", res.Metadata.ExtractedRows)
	}
	if v := svc.ValidateOutputFile(res.Metadata.OutputPath); !v.Valid || v.RowCount != 2 {
		t.Errorf("ValidateOutputFile() = %+v", v)
	}
}
