package errors

import "fmt"

// ConfigError is a fatal problem with the shape of the input or the run
// configuration. Field names the offending column, agent or setting.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DataError is a recoverable, per-field problem. The run continues with a
// fallback value.
type DataError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *DataError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("data error at row %d, column %q: %v (value: %q)", e.Row, e.Column, e.Err, e.Value)
	}
	return fmt.Sprintf("data error (%s): %v", e.Column, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// Define specific error types for better error handling
var (
	ErrMissingColumn   = fmt.Errorf("missing required column")
	ErrNameCollision   = fmt.Errorf("substitute collides with an active agent")
	ErrUnknownAgent    = fmt.Errorf("agent not in roster")
	ErrEmptyRoster     = fmt.Errorf("roster is empty")
	ErrInvalidConfig   = fmt.Errorf("invalid configuration")
	ErrEmptySheet      = fmt.Errorf("sheet has no header row")
	ErrUnsupported     = fmt.Errorf("unsupported file type")
	ErrUnparseableDate = fmt.Errorf("unparseable date")
	ErrSentinelList    = fmt.Errorf("unreadable sentinel list")

	// ErrInvariant signals a bug: the pipeline finished with an
	// unassigned record or counts that do not add up.
	ErrInvariant = fmt.Errorf("assignment invariant violated")
)

// Missing builds the ConfigError for an absent required column.
func Missing(column string) error {
	return &ConfigError{Field: column, Err: ErrMissingColumn}
}
