package core

// error_messages.go maps technical errors to user-facing messages with codes
// that operators can quote when reporting a failed run.
//
// Codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            SQLSTATE 23505, "duplicate key"
//	DB003 - Foreign key violation    SQLSTATE 23503, "violates foreign key"
//	DB004 - Connection refused       "connection refused"
//	DB005 - Connection reset         "connection reset"
//	DB006 - Timeout                  SQLSTATE 57014, "timeout"
//	DB007 - Deadlock                 SQLSTATE 40P01, "deadlock"
//	DB008 - Value too long           SQLSTATE 22001, "value too long"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date            "invalid date"
//	VAL002 - Invalid amount          "invalid amount"
//	VAL003 - Required field          "is required"
//	VAL004 - Missing column          "missing required column"
//	VAL006 - Invalid status          "invalid status"
//	VAL007 - Invalid option          "must be positive"
//
// # File Errors (FILE001-FILE099)
//
//	FILE002 - Invalid CSV            "invalid csv"
//	FILE003 - Encoding error         "encoding error"
//	FILE005 - Empty file             "empty file"
//	FILE006 - File not found         "file not found"
//
// # Pipeline Errors (ETL, SCH, EXT, RUN)
//
//	ETL001 - Transformation aborted, nothing was committed
//	ETL002 - Raw staging rows could not be read
//	SCH001 - Schema operation failed
//	EXT001 - Unsupported output format or mismatched extension
//	EXT002 - Extraction failed
//	EXT003 - Unknown extraction id
//	RUN001 - Another pipeline run is in progress
//
// # Lookup Order
//
// MapError resolves a message in this order:
//  1. The code of an *Error anywhere in the chain
//  2. The SQLSTATE of a *pgconn.PgError anywhere in the chain
//  3. Case-insensitive substring patterns (first match wins)
//  4. ERR000

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDuplicateKey = UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Remove the duplicate rows and run again",
		Code:    "DB001",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced company does not exist",
		Action:  "Run the transform so companies are created before charges",
		Code:    "DB003",
	}
	msgConnRefused = UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that PostgreSQL is running",
		Code:    "DB004",
	}
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or batch size",
		Code:    "DB006",
	}
	msgDeadlock = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}
	msgTooLong = UserMessage{
		Message: "A value exceeds its column width",
		Action:  "Shorten the value or enable validation to truncate it",
		Code:    "DB008",
	}
	msgUndefinedTable = UserMessage{
		Message: "Table not found",
		Action:  "Create the schema first (chargeflow schema create)",
		Code:    "TBL001",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{pattern: "duplicate key", msg: msgDuplicateKey},
	{pattern: "violates foreign key", msg: msgForeignKey},
	{pattern: "foreign key constraint", msg: msgForeignKey},
	{pattern: "connection refused", msg: msgConnRefused},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{pattern: "deadlock", msg: msgDeadlock},
	{pattern: "value too long", msg: msgTooLong},
	{pattern: "does not exist", msg: msgUndefinedTable},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},

	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid amount",
		msg: UserMessage{
			Message: "Invalid amount detected",
			Action:  "Use a non-negative decimal number with at most 2 decimals",
			Code:    "VAL002",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from CSV",
			Action:  "The header must be id,name,company_id,amount,status,created_at,paid_at",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid status",
		msg: UserMessage{
			Message: "Status is not in the allowed list",
			Action:  "Use one of: " + strings.Join(ValidStatuses, ", "),
			Code:    "VAL006",
		},
	},
	{
		pattern: "must be positive",
		msg: UserMessage{
			Message: "An option has an invalid value",
			Action:  "Use a positive batch size, chunk size or limit",
			Code:    "VAL007",
		},
	},
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},

	{
		pattern: "file not found",
		msg: UserMessage{
			Message: "Input file does not exist",
			Action:  "Check the path and try again",
			Code:    "FILE006",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Provide a CSV file with a header and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},

	{
		pattern: "transformation aborted",
		msg: UserMessage{
			Message: "Transformation aborted, nothing was committed",
			Action:  "Check database connectivity and run the transform again",
			Code:    "ETL001",
		},
	},
	{
		pattern: "read raw transactions",
		msg: UserMessage{
			Message: "Raw staging rows could not be read",
			Action:  "Create the schema and load a file first",
			Code:    "ETL002",
		},
	},
	{
		pattern: "schema operation failed",
		msg: UserMessage{
			Message: "Schema operation failed",
			Action:  "Check that the database user can create schemas and tables",
			Code:    "SCH001",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "Unsupported output format",
			Action:  "Use csv, parquet or xlsx with a matching file extension",
			Code:    "EXT001",
		},
	},
	{
		pattern: "extraction failed",
		msg: UserMessage{
			Message: "Extraction failed",
			Action:  "Check the output directory and database connectivity",
			Code:    "EXT002",
		},
	},
	{
		pattern: "extraction not found",
		msg: UserMessage{
			Message: "Extraction id not found",
			Action:  "List extractions to find a valid id",
			Code:    "EXT003",
		},
	},
	{
		pattern: "pipeline busy",
		msg: UserMessage{
			Message: "Another pipeline run is in progress",
			Action:  "Wait for it to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN002",
		},
	},
}

// sqlStateMessages maps PostgreSQL error codes to messages.
var sqlStateMessages = map[string]UserMessage{
	"23505": msgDuplicateKey,
	"23503": msgForeignKey,
	"57014": msgTimeout,
	"40P01": msgDeadlock,
	"22001": msgTooLong,
	"42P01": msgUndefinedTable,
	"3F000": msgUndefinedTable,
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical error",
	Code:    "ERR000",
}

// messageForCode finds the catalogue entry registered for code.
func messageForCode(code string) (UserMessage, bool) {
	for _, ep := range errorPatterns {
		if ep.msg.Code == code {
			return ep.msg, true
		}
	}
	for _, msg := range sqlStateMessages {
		if msg.Code == code {
			return msg, true
		}
	}
	return UserMessage{}, false
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	err := errors.New("duplicate key violation")
//	msg := MapError(err)
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var pe *Error
	if errors.As(err, &pe) && pe.Code != "" {
		if msg, ok := messageForCode(pe.Code); ok {
			return msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateMessages[pgErr.Code]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific catalogue entry
// rather than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
