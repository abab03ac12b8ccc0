package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/config"
	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/pipeline"
	"github.com/jackc/pgx/v5"
)

// fakeDB answers every single-row query with pingErr or the value 1.
type fakeDB struct {
	core.DB
	pingErr error
}

type oneRow struct{ err error }

func (r oneRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int); ok {
		*p = 1
	}
	return nil
}

func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return oneRow{err: db.pingErr}
}

func newTestServer(t *testing.T, db *fakeDB, mutate func(*config.Config)) (*Server, *pipeline.Service) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{MaxUploadSize: 1 << 20},
		Pipeline: config.PipelineConfig{
			BatchSize:       100,
			ChunkSize:       100,
			ValidationLevel: "strict",
			InputDir:        filepath.Join(dir, "in"),
			OutputDir:       filepath.Join(dir, "out"),
			RunTimeout:      time.Minute,
		},
		Export: config.ExportConfig{Delimiter: ",", IncludeHeader: true, DateLayout: time.DateTime},
	}
	if mutate != nil {
		mutate(cfg)
	}
	svc := pipeline.New(cfg, config.DefaultRules(), pipeline.Deps{DB: db})
	s := NewServer(svc, cfg)
	t.Cleanup(func() {
		if s.limiter != nil {
			s.limiter.stop()
		}
	})
	return s, svc
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantDB     string
	}{
		{"database up", nil, http.StatusOK, "ok"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeDB{pingErr: tt.pingErr}, nil)
			rec := do(t, s, http.MethodGet, "/health", "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Database != tt.wantDB {
				t.Errorf("Database = %q, want %q", resp.Database, tt.wantDB)
			}
			if resp.Runs.MaxConcurrent != 1 {
				t.Errorf("Runs.MaxConcurrent = %d, want 1", resp.Runs.MaxConcurrent)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, &fakeDB{}, nil)
	rec := do(t, s, http.MethodGet, "/health", "")

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("header %s not set", h)
		}
	}
}

func TestAPIRequiresKey(t *testing.T) {
	s, _ := newTestServer(t, &fakeDB{}, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	if rec := do(t, s, http.MethodGet, "/api/health", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want %d", rec.Code, http.StatusOK)
	}

	// The root health check stays open for load balancers.
	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		target    string
		body      string
		wantField string
	}{
		{"load without path", http.MethodPost, "/api/load", `{}`, "path"},
		{"load batch too large", http.MethodPost, "/api/load", `{"path":"a.csv","batch_size":100001}`, "batch_size"},
		{"load unknown field", http.MethodPost, "/api/load", `{"file":"a.csv"}`, ""},
		{"reset bad scope", http.MethodPost, "/api/reset", `{"scope":"everything"}`, "scope"},
		{"reset missing scope", http.MethodPost, "/api/reset", `{}`, "scope"},
		{"extract bad format", http.MethodPost, "/api/extract", `{"source":"charges","format":"json","output_path":"a.json"}`, "format"},
		{"extract unknown source", http.MethodPost, "/api/extract", `{"source":"users","format":"csv","output_path":"a.csv"}`, "source"},
		{"extract bad status filter", http.MethodPost, "/api/extract", `{"source":"charges","format":"csv","output_path":"a.csv","statuses":["lost"]}`, "statuses[0]"},
		{"daily bad date", http.MethodGet, "/api/reports/daily?start_date=2024-13-45", "", "startdate"},
		{"daily bad limit", http.MethodGet, "/api/reports/daily?limit=abc", "", ""},
		{"trends negative days", http.MethodGet, "/api/reports/trends?days=-3", "", "days"},
		{"validate file without path", http.MethodGet, "/api/extractions/validate", "", ""},
		{"malformed json", http.MethodPost, "/api/transform", `{"validate":`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeDB{}, nil)
			rec := do(t, s, tt.method, tt.target, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Code != core.CodeInvalidOption {
				t.Errorf("Code = %q, want %q", resp.Code, core.CodeInvalidOption)
			}
			if tt.wantField != "" {
				if _, ok := resp.Fields[tt.wantField]; !ok {
					t.Errorf("Fields = %v, want entry for %q", resp.Fields, tt.wantField)
				}
			}
		})
	}
}

func TestDataPathsStayInsideDirectories(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode string
	}{
		{"load absolute path", http.MethodPost, "/api/load", `{"path":"/etc/passwd"}`, core.CodeInvalidOption},
		{"load parent escape", http.MethodPost, "/api/load", `{"path":"../../etc/passwd"}`, core.CodeInvalidOption},
		{"extract absolute path", http.MethodPost, "/api/extract", `{"source":"companies","format":"csv","output_path":"/tmp/c.csv"}`, core.CodeBadFormat},
		{"extract parent escape", http.MethodPost, "/api/extract", `{"source":"companies","format":"csv","output_path":"../../etc/cron.d/x.csv"}`, core.CodeBadFormat},
		{"validate absolute path", http.MethodGet, "/api/extractions/validate?path=/etc/passwd", "", core.CodeBadFormat},
		{"validate parent escape", http.MethodGet, "/api/extractions/validate?path=../in/a.csv", "", core.CodeBadFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeDB{}, nil)
			rec := do(t, s, tt.method, tt.target, tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestPipelineBusy(t *testing.T) {
	s, svc := newTestServer(t, &fakeDB{}, nil)
	if err := svc.Limiter().Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Limiter().Release()

	rec := do(t, s, http.MethodPost, "/api/reset", `{"scope":"raw"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if resp := decodeError(t, rec); resp.Code != core.CodePipelineBusy {
		t.Errorf("Code = %q, want %q", resp.Code, core.CodePipelineBusy)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s, _ := newTestServer(t, &fakeDB{}, nil)
	rec := do(t, s, http.MethodPost, "/api/load", `{"path":"absent.csv"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusNotFound, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Code != core.CodeFileNotFound {
		t.Errorf("Code = %q, want %q", resp.Code, core.CodeFileNotFound)
	}
}

func TestLoad_UploadTooLarge(t *testing.T) {
	s, _ := newTestServer(t, &fakeDB{}, func(c *config.Config) {
		c.Server.MaxUploadSize = 64
	})

	body := &bytes.Buffer{}
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"c.csv\"\r\n\r\n")
	body.WriteString(strings.Repeat("x", 256))
	body.WriteString("\r\n--b--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/load", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestSchema_UnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, &fakeDB{}, nil)
	if rec := do(t, s, http.MethodDelete, "/api/schema", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter(2, time.Hour)
	defer rl.stop()

	got := []bool{rl.allow("a"), rl.allow("a"), rl.allow("a"), rl.allow("b")}
	want := []bool{true, true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("allow #%d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	s, _ := newTestServer(t, &fakeDB{}, func(c *config.Config) {
		c.Security.RateLimit = 1
	})

	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.NewError(core.KindPipeline, core.CodePipelineBusy, "busy"), http.StatusConflict},
		{core.NewError(core.KindLoading, core.CodeFileNotFound, "gone"), http.StatusNotFound},
		{core.NewError(core.KindExtraction, core.CodeUnknownExtract, "?"), http.StatusNotFound},
		{core.NewError(core.KindLoading, core.CodeInvalidCSV, "bad"), http.StatusBadRequest},
		{core.NewError(core.KindValidation, core.CodeInvalidOption, "bad"), http.StatusBadRequest},
		{core.NewError(core.KindExtraction, core.CodeBadFormat, "bad"), http.StatusBadRequest},
		{core.NewError(core.KindExtraction, core.CodeExtractFailed, "io"), http.StatusInternalServerError},
		{errBodyTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
