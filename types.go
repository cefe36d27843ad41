package pgconnect

import (
	"github.com/rickchristie/postgres-connect/internal/store"
)

// ErrorCategory classifies a ToolError for logs. It never reaches the client.
type ErrorCategory int

const (
	CategoryValidation ErrorCategory = iota
	CategoryConnection
	CategoryExecution
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryConnection:
		return "connection"
	case CategoryExecution:
		return "execution"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

const (
	msgReadOnlyOnly     = "Only single-statement read-only SELECT/CTE queries are allowed."
	msgConnectionFailed = "Database connection failed"
	msgInternal         = "internal error"
	msgInvalidArguments = "Invalid arguments"
)

// ToolError is the payload of a failed tool call. It is returned inside a
// successful response with isError set.
type ToolError struct {
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Hint    string `json:"hint,omitempty"`

	category ErrorCategory
}

// Error implements error so a ToolError can travel through error returns.
func (e *ToolError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return e.Message + ": " + e.Detail
}

// Category reports what kind of failure produced e.
func (e *ToolError) Category() ErrorCategory { return e.category }

func validationError(msg, detail string) *ToolError {
	return &ToolError{Message: msg, Detail: detail, category: CategoryValidation}
}

// SchemaDescriptor is the get_table_schema payload. SchemaName echoes the
// caller's input and is null when it was omitted.
type SchemaDescriptor struct {
	TableName   string     `json:"table_name"`
	SchemaName  *string    `json:"schema_name"`
	Columns     store.Rows `json:"columns"`
	Constraints store.Rows `json:"constraints"`
}
