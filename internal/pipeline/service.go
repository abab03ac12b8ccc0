// Package pipeline wires the loader, transformer, reporting manager and
// extractor into one service used by the HTTP server and the CLI.
//
// Mutating runs (load, transform, schema changes, reset) hold a slot of the
// run limiter for their whole duration, carry a run id in their logger and
// are bounded by the configured run timeout. Finished runs are recorded in
// the history ledger when one is configured.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/chargeflow/internal/admin"
	"github.com/JonMunkholm/chargeflow/internal/config"
	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/extract"
	"github.com/JonMunkholm/chargeflow/internal/history"
	"github.com/JonMunkholm/chargeflow/internal/loader"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/JonMunkholm/chargeflow/internal/publish"
	"github.com/JonMunkholm/chargeflow/internal/reporting"
	"github.com/JonMunkholm/chargeflow/internal/transform"
	"github.com/google/uuid"
)

// Deps are the collaborators a Service is built from. History and
// Publisher are optional.
type Deps struct {
	DB        core.DB
	History   *history.Store
	Publisher *publish.Publisher
}

// Service runs pipeline stages.
type Service struct {
	cfg   *config.Config
	rules config.Rules

	loader      *loader.Loader
	transformer *transform.Transformer
	reports     *reporting.Manager
	extractor   *extract.Extractor
	resetter    *admin.Resetter
	history     *history.Store
	publisher   *publish.Publisher
	limiter     *RunLimiter
}

// New creates a Service.
func New(cfg *config.Config, rules config.Rules, deps Deps) *Service {
	delim := ','
	if r := []rune(cfg.Export.Delimiter); len(r) == 1 {
		delim = r[0]
	}

	return &Service{
		cfg:         cfg,
		rules:       rules,
		loader:      loader.New(deps.DB, cfg.Pipeline.ErrorThreshold),
		transformer: transform.New(deps.DB),
		reports:     reporting.New(deps.DB),
		extractor: extract.New(deps.DB, extract.Config{
			ChunkSize:     cfg.Pipeline.ChunkSize,
			Delimiter:     delim,
			IncludeHeader: cfg.Export.IncludeHeader,
			DateLayout:    cfg.Export.DateLayout,
			Compression:   cfg.Export.Compression,
		}),
		resetter:  &admin.Resetter{DB: deps.DB},
		history:   deps.History,
		publisher: deps.Publisher,
		limiter:   NewRunLimiter(DefaultMaxConcurrentRuns, cfg.Pipeline.WaitTime),
	}
}

// Reports returns the read side of the pipeline.
func (s *Service) Reports() *reporting.Manager { return s.reports }

// Transformer returns the transformer for statistics and integrity checks.
func (s *Service) Transformer() *transform.Transformer { return s.transformer }

// Loader returns the loader for staging statistics.
func (s *Service) Loader() *loader.Loader { return s.loader }

// Limiter returns the run limiter.
func (s *Service) Limiter() *RunLimiter { return s.limiter }

// run holds a limiter slot while fn executes.
func (s *Service) run(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()

	if d := s.cfg.Pipeline.RunTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(logging.WithRun(ctx, stage, uuid.NewString()))
}

// LoadRequest configures a load. A nil Validate follows the configured
// validation level.
type LoadRequest struct {
	Path      string
	Validate  *bool
	BatchSize int
	// Confined keeps Path inside the input directory. Remote callers set it.
	Confined bool
}

func (s *Service) loadOptions(req LoadRequest) loader.Options {
	validate := s.cfg.Pipeline.IsStrict()
	if req.Validate != nil {
		validate = *req.Validate
	}
	batch := req.BatchSize
	if batch == 0 {
		batch = s.cfg.Pipeline.BatchSize
	}
	return loader.Options{BatchSize: batch, Validate: validate}
}

// Load stages the CSV at req.Path. Relative paths that do not exist are
// looked up in the input directory. Confined requests are always resolved
// against the input directory.
func (s *Service) Load(ctx context.Context, req LoadRequest) (*loader.LoadingReport, error) {
	path := resolveInput(s.cfg.Pipeline.InputDir, req.Path)
	if req.Confined {
		var err error
		if path, err = confine(s.cfg.Pipeline.InputDir, req.Path, core.KindValidation, core.CodeInvalidOption); err != nil {
			return nil, err
		}
	}

	var rep *loader.LoadingReport
	err := s.run(ctx, history.StageLoad, func(ctx context.Context) error {
		var err error
		rep, err = s.loader.Load(ctx, path, s.loadOptions(req))
		return err
	})
	if rep != nil {
		s.recordLoad(ctx, rep)
	}
	return rep, err
}

// LoadReader stages an uploaded CSV stream.
func (s *Service) LoadReader(ctx context.Context, name string, r io.Reader, req LoadRequest) (*loader.LoadingReport, error) {
	var rep *loader.LoadingReport
	err := s.run(ctx, history.StageLoad, func(ctx context.Context) error {
		var err error
		rep, err = s.loader.LoadReader(ctx, name, r, s.loadOptions(req))
		return err
	})
	if rep != nil {
		s.recordLoad(ctx, rep)
	}
	return rep, err
}

func (s *Service) recordLoad(ctx context.Context, rep *loader.LoadingReport) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordLoad(ctx, rep); err != nil {
		logging.FromContext(ctx).Warn("failed to record load", "load_id", rep.LoadID, "error", err)
	}
}

// TransformRequest configures a transform. The zero value validates rows
// and applies the configured business rules.
type TransformRequest struct {
	SkipValidation    bool
	SkipBusinessRules bool
}

// Transform moves staged rows into the normalized tables.
func (s *Service) Transform(ctx context.Context, req TransformRequest) (*transform.Report, error) {
	opts := transform.Options{
		Validate:           !req.SkipValidation,
		ApplyBusinessRules: !req.SkipBusinessRules,
		Rules:              s.rules,
	}

	var rep *transform.Report
	err := s.run(ctx, history.StageTransform, func(ctx context.Context) error {
		var err error
		rep, err = s.transformer.Transform(ctx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		if err := s.history.RecordTransform(ctx, rep); err != nil {
			logging.FromContext(ctx).Warn("failed to record transform", "error", err)
		}
	}
	return rep, nil
}

// Schema operations.
const (
	SchemaCreate   = "create"
	SchemaView     = "view"
	SchemaIndexes  = "indexes"
	SchemaValidate = "validate"
)

// ApplySchema runs a mutating schema operation: create (schema, view and
// indexes), view or indexes.
func (s *Service) ApplySchema(ctx context.Context, op string) ([]reporting.SchemaResult, error) {
	var results []reporting.SchemaResult
	err := s.run(ctx, "schema", func(ctx context.Context) error {
		switch op {
		case SchemaCreate:
			results = s.reports.Initialize(ctx)
		case SchemaView:
			results = []reporting.SchemaResult{s.reports.CreateReportingView(ctx)}
		case SchemaIndexes:
			results = []reporting.SchemaResult{s.reports.CreateReportingIndexes(ctx)}
		default:
			return core.NewError(core.KindSchema, core.CodeInvalidOption, "unknown schema operation: "+op).
				With("supported", []string{SchemaCreate, SchemaView, SchemaIndexes})
		}
		return nil
	})
	return results, err
}

// ValidateSchema checks the normalized schema.
func (s *Service) ValidateSchema(ctx context.Context) reporting.SchemaValidation {
	return s.reports.ValidateNormalizedSchema(ctx)
}

// Reset truncates pipeline tables. See admin.Resetter.
func (s *Service) Reset(ctx context.Context, scope string) error {
	return s.run(ctx, "reset", func(ctx context.Context) error {
		return s.resetter.Reset(ctx, scope)
	})
}

// ExtractRequest configures an extraction. Relative output paths are
// placed under the output directory.
type ExtractRequest struct {
	Source     string
	Format     string
	OutputPath string
	Filters    extract.Filters
	// Publish copies the file to the configured publish URL.
	Publish bool
	// Confined keeps OutputPath inside the output directory.
	Confined bool
}

// ExtractResult is the outcome of Extract.
type ExtractResult struct {
	Metadata     *extract.Metadata `json:"metadata"`
	PublishedURL string            `json:"published_url,omitempty"`
}

// Extract writes a source to a file and optionally publishes it.
// Extractions do not take a run slot; they only read.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if req.Publish && s.publisher == nil {
		return nil, core.NewError(core.KindExtraction, core.CodeInvalidOption, "publishing requested but EXPORT_PUBLISH_URL is not set")
	}

	out := resolveOutput(s.cfg.Pipeline.OutputDir, req.OutputPath)
	if req.Confined && req.OutputPath != "" {
		var err error
		if out, err = confine(s.cfg.Pipeline.OutputDir, req.OutputPath, core.KindExtraction, core.CodeBadFormat); err != nil {
			return nil, err
		}
	}

	ctx = logging.WithRun(ctx, history.StageExtract, uuid.NewString())
	meta, err := s.extractor.Extract(ctx, extract.Request{
		Source:     req.Source,
		Format:     req.Format,
		OutputPath: out,
		Filters:    req.Filters,
	})
	if err != nil {
		return nil, err
	}

	res := &ExtractResult{Metadata: meta}
	if s.history != nil {
		if err := s.history.RecordExtraction(ctx, *meta); err != nil {
			logging.FromContext(ctx).Warn("failed to record extraction", "extraction_id", meta.ExtractionID, "error", err)
		}
	}

	if req.Publish {
		url, err := s.publisher.Publish(ctx, meta.OutputPath)
		if err != nil {
			return res, core.WrapError(core.KindExtraction, core.CodeExtractFailed, "publish extracted file", err).
				With("output_path", meta.OutputPath)
		}
		res.PublishedURL = url
		logging.FromContext(ctx).Info("extraction published", "url", url)
	}
	return res, nil
}

// Extractions returns recorded extractions, oldest first. The ledger is
// used when configured, otherwise this process's history.
func (s *Service) Extractions(ctx context.Context) ([]extract.Metadata, error) {
	if s.history != nil {
		return s.history.Extractions(ctx)
	}
	return s.extractor.History(), nil
}

// ExtractionStatistics summarizes Extractions.
func (s *Service) ExtractionStatistics(ctx context.Context) (extract.Statistics, error) {
	h, err := s.Extractions(ctx)
	if err != nil {
		return extract.Statistics{}, err
	}
	return extract.Summarize(h), nil
}

// ValidateOutputFile checks an extracted file.
func (s *Service) ValidateOutputFile(path string) extract.FileValidation {
	return s.extractor.ValidateOutputFile(resolveOutput(s.cfg.Pipeline.OutputDir, path))
}

// ValidateConfinedOutputFile is ValidateOutputFile for paths that must stay
// inside the output directory.
func (s *Service) ValidateConfinedOutputFile(path string) (extract.FileValidation, error) {
	full, err := confine(s.cfg.Pipeline.OutputDir, path, core.KindExtraction, core.CodeBadFormat)
	if err != nil {
		return extract.FileValidation{}, err
	}
	return s.extractor.ValidateOutputFile(full), nil
}

// ExportMetadata writes the run ledger to path.
func (s *Service) ExportMetadata(ctx context.Context, path string) error {
	if s.history == nil {
		return errors.New("history ledger is not configured")
	}
	return s.history.ExportMetadata(ctx, resolveOutput(s.cfg.Pipeline.OutputDir, path))
}

func resolveInput(dir, path string) string {
	if path == "" || dir == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(dir, path)
}

func resolveOutput(dir, path string) string {
	if path == "" || dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// confine joins path onto dir, rejecting absolute paths and paths that
// climb out of dir.
func confine(dir, path string, kind core.Kind, code string) (string, error) {
	if dir == "" {
		dir = "."
	}
	clean := filepath.Clean(path)
	if path == "" || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", core.NewError(kind, code, "path must be relative to the data directory").With("path", path)
	}
	full := filepath.Join(dir, clean)
	rel, err := filepath.Rel(dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.NewError(kind, code, "path escapes the data directory").With("path", path)
	}
	return full, nil
}
