package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/extract"
	"github.com/JonMunkholm/chargeflow/internal/pipeline"
	"github.com/JonMunkholm/chargeflow/internal/reporting"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// healthTimeout bounds the database ping in health checks.
const healthTimeout = 5 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Runs     pipeline.LimiterStatus `json:"runs"`
	Time     time.Time              `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Runs:     s.service.Limiter().Status(),
		Time:     time.Now().UTC(),
	}
	status := http.StatusOK
	if err := s.service.Reports().Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleDatabaseInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Reports().DatabaseInfo(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleLoad stages a CSV. Multipart requests upload the file in the
// "file" field; JSON requests name a server-side path.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.handleLoadUpload(w, r)
		return
	}

	var body LoadBody
	if err := decodeJSON(w, r, maxJSONBody, &body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	rep, err := s.service.Load(r.Context(), pipeline.LoadRequest{
		Path:      body.Path,
		Validate:  body.Validate,
		BatchSize: body.BatchSize,
		Confined:  true,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLoadUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Server.MaxUploadSize
	if r.ContentLength > maxSize {
		s.respondError(w, r, errBodyTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, errBodyTooLarge)
			return
		}
		s.respondBadRequest(w, r, errors.New("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondBadRequest(w, r, errors.New("no file provided"))
		return
	}
	defer file.Close()

	validate, err := queryBool(r.FormValue("validate"), "validate")
	if err != nil {
		s.respondBadRequest(w, r, err)
		return
	}
	batch, err := queryInt(r, "batch_size", 0)
	if err != nil || batch < 0 {
		s.respondBadRequest(w, r, errors.New("batch_size must be a positive integer"))
		return
	}

	rep, err := s.service.LoadReader(r.Context(), header.Filename, file, pipeline.LoadRequest{
		Validate:  validate,
		BatchSize: batch,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var body TransformBody
	if err := decodeJSON(w, r, maxJSONBody, &body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	rep, err := s.service.Transform(r.Context(), pipeline.TransformRequest{
		SkipValidation:    body.Validate != nil && !*body.Validate,
		SkipBusinessRules: body.ApplyBusinessRules != nil && !*body.ApplyBusinessRules,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body ResetBody
	if err := decodeJSON(w, r, maxJSONBody, &body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	if err := s.service.Reset(r.Context(), body.Scope); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "scope": body.Scope})
}

func (s *Server) handleRawStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Loader().Statistics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleNormalizedStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Transformer().Statistics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	in, err := s.service.Transformer().Integrity(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// SchemaResponse is the body of the schema endpoints.
type SchemaResponse struct {
	Success bool                     `json:"success"`
	Results []reporting.SchemaResult `json:"results"`
}

func (s *Server) handleSchema(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.service.ApplySchema(r.Context(), op)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		resp := SchemaResponse{Success: true, Results: results}
		for _, res := range results {
			resp.Success = resp.Success && res.Success
		}
		status := http.StatusOK
		if !resp.Success {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
	}
}

func (s *Server) handleValidateSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ValidateSchema(r.Context()))
}

func (s *Server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.respondBadRequest(w, r, err)
		return
	}
	params := DailyQuery{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		CompanyID: q.Get("company_id"),
		Limit:     limit,
	}
	if err := s.validate.Struct(params); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	rows, err := s.service.Reports().QueryDailySummary(r.Context(), reporting.SummaryFilter{
		StartDate: parseDate(params.StartDate),
		EndDate:   parseDate(params.EndDate),
		CompanyID: params.CompanyID,
		Limit:     params.Limit,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "rows": rows})
}

func (s *Server) handleCompanyTotals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := DailyQuery{StartDate: q.Get("start_date"), EndDate: q.Get("end_date")}
	if err := s.validate.Struct(params); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	rows, err := s.service.Reports().CompanyTotals(r.Context(), parseDate(params.StartDate), parseDate(params.EndDate))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "rows": rows})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", reporting.DefaultTrendDays)
	if err != nil {
		s.respondBadRequest(w, r, err)
		return
	}
	params := TrendsQuery{Days: days, CompanyID: r.URL.Query().Get("company_id")}
	if err := s.validate.Struct(params); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	rows, err := s.service.Reports().DailyTrends(r.Context(), params.Days, params.CompanyID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": params.Days, "count": len(rows), "rows": rows})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.Reports().DistributionStatistics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	pa, err := s.service.Reports().AnalyzeViewPerformance(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pa)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var body ExtractBody
	if err := decodeJSON(w, r, maxJSONBody, &body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.respondBadRequest(w, r, err)
		return
	}

	res, err := s.service.Extract(r.Context(), pipeline.ExtractRequest{
		Source:     body.Source,
		Format:     body.Format,
		OutputPath: body.OutputPath,
		Filters:    extract.Filters{CompanyIDs: body.CompanyIDs, Statuses: body.Statuses},
		Publish:    body.Publish,
		Confined:   true,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleExtractions(w http.ResponseWriter, r *http.Request) {
	h, err := s.service.Extractions(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(h), "extractions": h})
}

func (s *Server) handleExtractionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.ExtractionStatistics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondBadRequest(w, r, errors.New("path is required"))
		return
	}
	v, err := s.service.ValidateConfinedOutputFile(path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
