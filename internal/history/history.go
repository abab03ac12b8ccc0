// Package history keeps a ledger of pipeline runs in a local SQLite file.
//
// The extractor and transformer only remember runs for the lifetime of a
// process. The ledger lets the CLI export metadata across invocations.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/extract"
	"github.com/JonMunkholm/chargeflow/internal/loader"
	"github.com/JonMunkholm/chargeflow/internal/transform"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run stages.
const (
	StageLoad      = "load"
	StageTransform = "transform"
	StageExtract   = "extract"
)

// Run is one recorded pipeline run. Payload holds the stage's report as JSON.
type Run struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RunID     string    `gorm:"uniqueIndex;size:36" json:"run_id"`
	Stage     string    `gorm:"index;size:16" json:"stage"`
	StartedAt time.Time `gorm:"index" json:"started_at"`
	Seconds   float64   `json:"execution_time_seconds"`
	Rows      int64     `json:"rows"`
	Success   bool      `json:"success"`
	Payload   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the run ledger.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) record(ctx context.Context, run Run, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", run.Stage, err)
	}
	run.Payload = string(b)
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("record %s run: %w", run.Stage, err)
	}
	return nil
}

// RecordLoad stores a loading report.
func (s *Store) RecordLoad(ctx context.Context, r *loader.LoadingReport) error {
	return s.record(ctx, Run{
		RunID:     r.LoadID.String(),
		Stage:     StageLoad,
		StartedAt: r.StartedAt,
		Seconds:   r.ExecutionSeconds,
		Rows:      int64(r.RowsLoaded),
		Success:   r.RowsSkipped == 0,
	}, r)
}

// RecordTransform stores a transformation report.
func (s *Store) RecordTransform(ctx context.Context, r *transform.Report) error {
	return s.record(ctx, Run{
		Stage:     StageTransform,
		StartedAt: r.StartedAt,
		Seconds:   r.ExecutionSeconds,
		Rows:      int64(r.TransformedRows),
		Success:   r.SkippedRows == 0,
	}, r)
}

// RecordExtraction stores extraction metadata.
func (s *Store) RecordExtraction(ctx context.Context, m extract.Metadata) error {
	return s.record(ctx, Run{
		RunID:     m.ExtractionID,
		Stage:     StageExtract,
		StartedAt: m.ExtractedAt,
		Seconds:   m.ExecutionSeconds,
		Rows:      m.ExtractedRows,
		Success:   m.ExtractedRows == m.TotalRows,
	}, m)
}

// List returns the runs of stage, newest first. An empty stage lists every
// run; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, stage string, limit int) ([]Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Extractions decodes every recorded extraction, oldest first.
func (s *Store) Extractions(ctx context.Context) ([]extract.Metadata, error) {
	return decodeStage[extract.Metadata](ctx, s.db, StageExtract)
}

// Transformations decodes every recorded transformation, oldest first.
func (s *Store) Transformations(ctx context.Context) ([]transform.Report, error) {
	return decodeStage[transform.Report](ctx, s.db, StageTransform)
}

// Loads decodes every recorded load, oldest first.
func (s *Store) Loads(ctx context.Context) ([]loader.LoadingReport, error) {
	return decodeStage[loader.LoadingReport](ctx, s.db, StageLoad)
}

func decodeStage[T any](ctx context.Context, db *gorm.DB, stage string) ([]T, error) {
	var payloads []string
	err := db.WithContext(ctx).Model(&Run{}).
		Where("stage = ?", stage).
		Order("started_at ASC").Order("id ASC").
		Pluck("payload", &payloads).Error
	if err != nil {
		return nil, fmt.Errorf("read %s runs: %w", stage, err)
	}

	out := make([]T, 0, len(payloads))
	for _, p := range payloads {
		var v T
		if err := json.Unmarshal([]byte(p), &v); err != nil {
			return nil, fmt.Errorf("decode %s run: %w", stage, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Clear deletes every run of stage, or every run when stage is empty.
func (s *Store) Clear(ctx context.Context, stage string) (int64, error) {
	q := s.db.WithContext(ctx)
	if stage != "" {
		q = q.Where("stage = ?", stage)
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Delete(&Run{})
	return res.RowsAffected, res.Error
}

// Export is the metadata document written by ExportMetadata.
type Export struct {
	ExtractionHistory     []extract.Metadata `json:"extraction_history"`
	TransformationHistory []transform.Report `json:"transformation_history"`
	Statistics            extract.Statistics `json:"statistics"`
	ExportTimestamp       time.Time          `json:"export_timestamp"`
}

// BuildExport collects the recorded extractions and transformations.
func (s *Store) BuildExport(ctx context.Context) (*Export, error) {
	extractions, err := s.Extractions(ctx)
	if err != nil {
		return nil, err
	}
	transforms, err := s.Transformations(ctx)
	if err != nil {
		return nil, err
	}
	return &Export{
		ExtractionHistory:     extractions,
		TransformationHistory: transforms,
		Statistics:            extract.Summarize(extractions),
		ExportTimestamp:       time.Now().UTC(),
	}, nil
}

// ExportMetadata writes BuildExport's document to path as indented JSON.
func (s *Store) ExportMetadata(ctx context.Context, path string) error {
	doc, err := s.BuildExport(ctx)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
