package models

// ErrorKind classifies migration failures
type ErrorKind string

const (
	NoError             ErrorKind = ""
	SourceNotFound      ErrorKind = "SourceNotFound"
	DestinationExists   ErrorKind = "DestinationExists"
	DestinationNotFound ErrorKind = "DestinationNotFound"
	TransferFailed      ErrorKind = "TransferFailed"
	ConnectionError     ErrorKind = "ConnectionError"
	UnsupportedType     ErrorKind = "UnsupportedType"
	SchemaStepFailed    ErrorKind = "SchemaStepFailed"
	DataStepFailed      ErrorKind = "DataStepFailed"
)

// TableState is the lifecycle of one table inside a database migration
type TableState int

const (
	Pending TableState = iota
	SchemaInProgress
	SchemaFailed
	DataInProgress
	DataFailed
	Done
)

func (s TableState) String() string {
	switch s {
	case Pending:
		return "pending"
	case SchemaInProgress:
		return "schema"
	case SchemaFailed:
		return "schema-failed"
	case DataInProgress:
		return "data"
	case DataFailed:
		return "data-failed"
	case Done:
		return "done"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen
func (s TableState) Terminal() bool {
	return s == SchemaFailed || s == DataFailed || s == Done
}

// SchemaResult is the outcome of the schema step
type SchemaResult struct {
	OK        bool
	Message   string
	ErrorKind ErrorKind
	Err       error
	// Warnings lists lossy type translations (UnsupportedType).
	Warnings []string
}

// DataResult is the outcome of the data step. RowsTransferred only counts
// rows whose batch transaction committed.
type DataResult struct {
	OK              bool
	Message         string
	RowsTransferred int64
	Batches         int
	ErrorKind       ErrorKind
	Err             error
}

// MigrationResult is the outcome of schema + data for one table.
// RowsTransferred is nil when the schema step failed.
type MigrationResult struct {
	OK              bool
	Message         string
	RowsTransferred *int64
	ErrorKind       ErrorKind
	// Cause is the kind reported by the failing step.
	Cause    ErrorKind
	Err      error
	Warnings []string
}

// Rows returns the transferred row count, zero when absent
func (r MigrationResult) Rows() int64 {
	if r.RowsTransferred == nil {
		return 0
	}
	return *r.RowsTransferred
}

// TableOutcome attributes a database migration result to one table
type TableOutcome struct {
	Table           string
	State           TableState
	RowsTransferred int64
	Message         string
	ErrorKind       ErrorKind
}

// DatabaseMigrationResult is the outcome of a whole-database copy
type DatabaseMigrationResult struct {
	OK                   bool
	Message              string
	RunID                string
	TotalTables          int
	SuccessfulTables     int
	FailedTables         []string
	TotalRowsTransferred int64
	Tables               []TableOutcome
	ErrorKind            ErrorKind
}

// Failed reports whether the named table failed
func (r DatabaseMigrationResult) Failed(table string) bool {
	for _, t := range r.FailedTables {
		if t == table {
			return true
		}
	}
	return false
}

// TableEvent is emitted on every table state transition
type TableEvent struct {
	Table   string
	State   TableState
	Message string
}

// BatchEvent is emitted after each batch commits or rolls back
type BatchEvent struct {
	Table     string
	Offset    int64
	Rows      int
	Total     int64
	Committed bool
}
