package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var errBodyTooLarge = errors.New("request body too large")

// LoadBody is the JSON form of POST /api/load.
type LoadBody struct {
	Path      string `json:"path" validate:"required"`
	Validate  *bool  `json:"validate"`
	BatchSize int    `json:"batch_size" validate:"omitempty,min=1,max=100000"`
}

// TransformBody is the body of POST /api/transform. Omitted flags default to true.
type TransformBody struct {
	Validate           *bool `json:"validate"`
	ApplyBusinessRules *bool `json:"apply_business_rules"`
}

// ResetBody is the body of POST /api/reset.
type ResetBody struct {
	Scope string `json:"scope" validate:"required,oneof=raw normalized all"`
}

// ExtractBody is the body of POST /api/extract.
type ExtractBody struct {
	Source     string   `json:"source" validate:"required,oneof=raw_transactions companies charges daily_transaction_summary"`
	Format     string   `json:"format" validate:"required,oneof=csv parquet xlsx"`
	OutputPath string   `json:"output_path" validate:"required"`
	CompanyIDs []string `json:"company_ids" validate:"omitempty,dive,required,max=24"`
	Statuses   []string `json:"statuses" validate:"omitempty,dive,chargestatus"`
	Publish    bool     `json:"publish"`
}

// DailyQuery holds GET /api/reports/daily parameters.
type DailyQuery struct {
	StartDate string `validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `validate:"omitempty,datetime=2006-01-02"`
	CompanyID string `validate:"omitempty,max=24"`
	Limit     int    `validate:"omitempty,min=1,max=10000"`
}

// TrendsQuery holds GET /api/reports/trends parameters.
type TrendsQuery struct {
	Days      int    `validate:"omitempty,min=1,max=3650"`
	CompanyID string `validate:"omitempty,max=24"`
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return errBodyTooLarge
	}
	return fmt.Errorf("invalid JSON body: %w", err)
}

// queryInt parses an integer query or form parameter; empty means def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	val := r.FormValue(name)
	if val == "" {
		return def, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return i, nil
}

// queryBool parses a boolean query or form value; empty means nil.
func queryBool(val, name string) (*bool, error) {
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &b, nil
}

// parseDate parses an already validated YYYY-MM-DD value; empty means nil.
func parseDate(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, val)
	if err != nil {
		return nil
	}
	return &t
}
