package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to get a user-friendly message
//  4. The status code is derived from the pipeline error code
//  5. Technical error + context is logged with request ID for correlation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Action  string              `json:"action,omitempty"`
	Code    string              `json:"code"`
	Details map[string]any      `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// respondError logs the technical error and writes a user-friendly JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusFor(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var perr *core.Error
	if errors.As(err, &perr) {
		resp.Error = perr.Message
		resp.Details = perr.Details
	} else if status == http.StatusInternalServerError {
		// Database internals stay in the log.
		resp.Error = userMsg.Message
	}
	writeJSON(w, status, resp)
}

// respondBadRequest reports a malformed or invalid request.
func (s *Server) respondBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Error:   err.Error(),
		Message: "The request is invalid",
		Action:  "Check the request parameters",
		Code:    core.CodeInvalidOption,
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		resp.Error = "validation failed"
		resp.Fields = fieldProblems(ve)
	}

	logging.FromContext(r.Context()).Warn("bad request", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadRequest, resp)
}

func fieldProblems(ve validator.ValidationErrors) map[string][]string {
	problems := map[string][]string{}
	for _, fe := range ve {
		field := strings.ToLower(fe.Field())

		switch fe.Tag() {
		case "required":
			problems[field] = append(problems[field], "This field is required")
		case "min":
			problems[field] = append(problems[field], "Value is too small, min: "+fe.Param())
		case "max":
			problems[field] = append(problems[field], "Value is too large, max: "+fe.Param())
		case "oneof":
			problems[field] = append(problems[field], "Value must be one of: "+fe.Param())
		case "chargestatus":
			problems[field] = append(problems[field], "Value must be a known charge status")
		case "datetime":
			problems[field] = append(problems[field], "Value must be a date in YYYY-MM-DD format")
		default:
			problems[field] = append(problems[field], "Invalid value provided")
		}
	}
	return problems
}

// statusFor maps pipeline error codes to HTTP statuses.
func statusFor(err error) int {
	switch code := core.CodeOf(err); {
	case code == core.CodePipelineBusy:
		return http.StatusConflict
	case code == core.CodeFileNotFound:
		return http.StatusNotFound
	case code == core.CodeUnknownExtract:
		return http.StatusNotFound
	case strings.HasPrefix(code, "FILE"), strings.HasPrefix(code, "VAL"), code == core.CodeBadFormat:
		return http.StatusBadRequest
	}
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
