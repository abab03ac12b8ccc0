package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/chargeflow/internal/core"
)

// Status trims and lowercases raw and checks it against the fixed status set.
func Status(raw string) Result[string] {
	r := newResult[string]()

	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		r.addError("Status is required")
		return r
	}
	if !core.IsValidStatus(s) {
		r.addError(fmt.Sprintf("Invalid status: %s. Valid statuses: %s", s, strings.Join(core.ValidStatuses, ", ")))
		return r
	}

	r.Value = s
	return r
}

// MustStatus is Status for interactive callers: an unknown status is a hard
// failure returned as a *core.Error with code VAL006.
func MustStatus(raw string) (string, error) {
	r := Status(raw)
	if !r.Valid {
		return "", core.NewError(core.KindValidation, core.CodeInvalidStatus, r.Errors[0]).
			With("status", raw).
			With("valid_statuses", core.ValidStatuses)
	}
	return r.Value, nil
}

// StringOptions tunes String. Zero lengths disable the check.
type StringOptions struct {
	MaxLen   int
	MinLen   int
	Required bool
}

// String trims raw and checks its length.
//
// Whitespace-only input counts as missing. Input longer than MaxLen is
// truncated with a warning rather than rejected.
func String(raw, field string, opts StringOptions) Result[string] {
	r := newResult[string]()

	s := strings.TrimSpace(raw)
	if s == "" {
		if opts.Required {
			r.addError(field + " is required")
		}
		return r
	}

	n := utf8.RuneCountInString(s)
	if opts.MinLen > 0 && n < opts.MinLen {
		r.addError(fmt.Sprintf("%s must be at least %d characters long", field, opts.MinLen))
		return r
	}
	if opts.MaxLen > 0 && n > opts.MaxLen {
		r.addWarning(fmt.Sprintf("%s exceeds maximum length of %d, will be truncated", field, opts.MaxLen))
		s = Truncate(s, opts.MaxLen)
	}

	r.Value = s
	return r
}

// ID validates a required identifier of at most maxLen characters.
func ID(raw, field string, maxLen int) Result[string] {
	return String(raw, field, StringOptions{MaxLen: maxLen, MinLen: 1, Required: true})
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// BatchSize checks a requested batch size. Zero selects def.
func BatchSize(n, def int) Result[int] {
	r := newResult[int]()
	if n == 0 {
		r.Value = def
		return r
	}
	if n < 0 {
		r.addError("Batch size must be positive")
		return r
	}
	if n > 100000 {
		r.addWarning("Large batch size may cause memory issues")
	}
	r.Value = n
	return r
}
