package core

import (
	"errors"
	"fmt"
)

// Kind groups errors by the pipeline stage that raised them.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindLoading        Kind = "loading"
	KindTransformation Kind = "transformation"
	KindSchema         Kind = "schema"
	KindExtraction     Kind = "extraction"
	KindPipeline       Kind = "pipeline"
)

// Error codes raised by the pipeline itself. Database, validation and file
// codes share the catalogue in error_messages.go.
const (
	CodeInvalidCSV      = "FILE002"
	CodeEmptyFile       = "FILE005"
	CodeFileNotFound    = "FILE006"
	CodeMissingColumn   = "VAL004"
	CodeInvalidStatus   = "VAL006"
	CodeInvalidAmount   = "VAL002"
	CodeInvalidOption   = "VAL007"
	CodeTransformFailed = "ETL001"
	CodeRawFetchFailed  = "ETL002"
	CodeSchemaFailed    = "SCH001"
	CodeBadFormat       = "EXT001"
	CodeExtractFailed   = "EXT002"
	CodeUnknownExtract  = "EXT003"
	CodePipelineBusy    = "RUN001"
)

// Error is an operation-level failure. It carries a machine-readable code,
// a human message and structured details; Err is the underlying cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns e with an extra detail set.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ToMap renders the error for JSON payloads.
func (e *Error) ToMap() map[string]any {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"error":   e.Code,
		"kind":    e.Kind,
		"message": e.Message,
		"details": details,
	}
}

// NewError creates an Error without an underlying cause.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError creates an Error around err. Returns nil if err is nil.
func WrapError(kind Kind, code, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
