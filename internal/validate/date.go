package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/araddon/dateparse"
)

// DateLayouts are tried in order before the lenient fallback parser.
// Day-first layouts come before month-first ones, so 03/04/2024 is 3 April.
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
}

// FallbackWarning is the warning attached when only the lenient parser
// understood the value.
func FallbackWarning(field string) string {
	return field + " parsed with fallback method"
}

// Date parses raw as a timestamp.
//
// Blank input is an error when required and a valid zero time otherwise.
func Date(raw, field string, required bool) Result[time.Time] {
	r := newResult[time.Time]()

	s := strings.TrimSpace(raw)
	if core.IsNullToken(s) {
		if required {
			r.addError(field + " is required")
		}
		return r
	}

	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			r.Value = t
			return r
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		r.addError(fmt.Sprintf("Unable to parse %s: %s", field, s))
		return r
	}

	r.addWarning(FallbackWarning(field))
	r.Value = t
	return r
}

// DateOrder fails when after precedes before. Zero times are not compared.
func DateOrder(before, after time.Time, beforeField, afterField string) Result[struct{}] {
	r := newResult[struct{}]()
	if before.IsZero() || after.IsZero() {
		return r
	}
	if after.Before(before) {
		r.addError(fmt.Sprintf("%s cannot be before %s", afterField, beforeField))
	}
	return r
}
