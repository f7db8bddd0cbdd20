package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/analyzer"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("INTERDB_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from a .env file. It
// reports whether a file was loaded; a missing file is not an error.
func LoadEnvironmentVariables(envFile string, logger logrus.FieldLogger) bool {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		} else {
			logger.Debugf("No %s file found, using existing environment variables", envFile)
		}
		return false
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warnf("Error loading %s file: %v", envFile, err)
		return false
	}
	logger.Infof("Loaded environment variables from %s", envFile)
	return true
}

var validate = validator.New()

// ValidateConnectionConfig checks the struct tags of a connection config.
// role ("source", "destination") prefixes every message.
func ValidateConnectionConfig(cfg models.ConnectionConfig, role string) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%s: %w", role, err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		field := strings.TrimPrefix(fe.Namespace(), "ConnectionConfig.")
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid (%s=%s)", field, fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid %s connection: %s", role, strings.Join(messages, "; "))
}

// PrintMigrationResult prints the outcome of a single table migration
func PrintMigrationResult(w io.Writer, result models.MigrationResult) {
	status := "OK"
	if !result.OK {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s\n", status, result.Message)
	if result.RowsTransferred != nil {
		fmt.Fprintf(w, "Rows transferred: %d\n", *result.RowsTransferred)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// PrintSummary prints a summary of a database migration
func PrintSummary(w io.Writer, result models.DatabaseMigrationResult) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, "DATABASE MIGRATION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(w, "Total tables processed: %d\n", result.TotalTables)
	fmt.Fprintf(w, "Successfully copied tables: %d\n", result.SuccessfulTables)
	fmt.Fprintf(w, "Failed tables: %d\n", len(result.FailedTables))
	fmt.Fprintf(w, "Total rows transferred: %d\n", result.TotalRowsTransferred)

	if len(result.Tables) > 0 {
		fmt.Fprintln(w, "\nTables:")
		for _, t := range result.Tables {
			fmt.Fprintf(w, "  %-30s %-14s %8d rows\n", t.Table, t.State, t.RowsTransferred)
		}
	}
	if len(result.FailedTables) > 0 {
		fmt.Fprintln(w, "\nFailed tables:")
		for _, t := range result.Tables {
			if t.State != models.Done {
				fmt.Fprintf(w, "  - %s: %s\n", t.Table, t.Message)
			}
		}
	}

	fmt.Fprintln(w, "\n"+result.Message)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

// PrintSchemaAnalysis prints the dependency analysis of a database schema
func PrintSchemaAnalysis(w io.Writer, sa *analyzer.SchemaAnalyzer) {
	circular := sa.GetCircularTables()
	ordered := sa.GetTableOrder()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "DATABASE SCHEMA ANALYSIS REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "\n1. BASIC STATISTICS")
	fmt.Fprintf(w, "   Total tables: %d\n", len(sa.Tables))
	fmt.Fprintf(w, "   Tables with foreign keys: %d\n", len(sa.ForeignKeys))
	fmt.Fprintf(w, "   Tables in circular dependencies: %d\n", len(circular))

	if len(circular) > 0 {
		names := make([]string, 0, len(circular))
		for table := range circular {
			names = append(names, table)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "\n2. CIRCULAR DEPENDENCIES")
		fmt.Fprintf(w, "   Tables involved: %s\n", strings.Join(names, ", "))
	}

	fmt.Fprintln(w, "\n3. DEPENDENCY ORDER")
	for i, table := range ordered {
		category := "Standalone"
		if circular[table] {
			category = "Circular"
		} else if _, hasFKs := sa.ForeignKeys[table]; hasFKs {
			category = "Dependent"
		}
		fmt.Fprintf(w, "   %3d. %s (%s)\n", i+1, table, category)
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// PrintTableSchema prints an introspected table and, when given, the DDL a
// migration would run on the destination
func PrintTableSchema(w io.Writer, schema *models.TableSchema, ddl string, warnings []string) {
	fmt.Fprintf(w, "Table %s (%d columns, primary key: %s)\n",
		schema.Name, len(schema.Columns), strings.Join(schema.PrimaryKey, ", "))
	for _, col := range schema.Columns {
		null := "NOT NULL"
		if col.IsNullable {
			null = "NULL"
		}
		def := ""
		if col.Default != nil {
			def = " DEFAULT " + *col.Default
		}
		extra := ""
		if schema.IsPrimaryKey(col.Name) {
			extra = " PRIMARY KEY"
		}
		if col.Extra != "" {
			extra += " " + col.Extra
		}
		fmt.Fprintf(w, "  %-30s %-24s %s%s%s\n", col.Name, col.ColumnType, null, def, extra)
	}
	if ddl != "" {
		fmt.Fprintf(w, "\n%s;\n", ddl)
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// RowCountCheck is the verification of one migrated table
type RowCountCheck struct {
	Table       string
	Source      int64
	Destination int64
	Err         error
}

// Matches reports whether both sides were counted and agree
func (c RowCountCheck) Matches() bool {
	return c.Err == nil && c.Source == c.Destination
}

// TablePair names a migrated table on both sides
type TablePair struct {
	Source      string
	Destination string
}

// SameName pairs every table with itself
func SameName(tables []string) []TablePair {
	pairs := make([]TablePair, len(tables))
	for i, table := range tables {
		pairs[i] = TablePair{Source: table, Destination: table}
	}
	return pairs
}

// VerifyRowCounts compares source and destination row counts per table. A
// destination that already held other rows reports a mismatch.
func VerifyRowCounts(
	ctx context.Context,
	src, dst *connector.DatabaseConnector,
	srcDialect, dstDialect dialect.Dialect,
	tables []TablePair,
	logger logrus.FieldLogger,
) (bool, []RowCountCheck) {
	logger.Infof("Verifying row counts of %d table(s)...", len(tables))

	ok := true
	checks := make([]RowCountCheck, 0, len(tables))
	for _, pair := range tables {
		check := RowCountCheck{Table: pair.Source}
		check.Source, check.Err = src.ExecuteScalar(ctx, srcDialect.CountRows(pair.Source))
		if check.Err == nil {
			check.Destination, check.Err = dst.ExecuteScalar(ctx, dstDialect.CountRows(pair.Destination))
		}

		switch {
		case check.Err != nil:
			logger.Warnf("Could not verify row count of table %s: %v", pair.Source, check.Err)
			ok = false
		case !check.Matches():
			logger.Warnf("Table %s has %d rows in the source and %s has %d in the destination",
				pair.Source, check.Source, pair.Destination, check.Destination)
			ok = false
		}
		checks = append(checks, check)
	}

	if ok {
		logger.Info("Verification successful: all row counts match")
	} else {
		logger.Error("Verification failed: some row counts differ")
	}
	return ok, checks
}

// PrintVerificationResults prints the results of VerifyRowCounts
func PrintVerificationResults(w io.Writer, checks []RowCountCheck) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "ROW COUNT VERIFICATION RESULTS")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	var mismatched []RowCountCheck
	for _, c := range checks {
		if !c.Matches() {
			mismatched = append(mismatched, c)
		}
	}
	if len(mismatched) == 0 {
		fmt.Fprintf(w, "✅ All %d tables have matching row counts\n", len(checks))
		fmt.Fprintln(w, strings.Repeat("=", 50))
		return
	}

	fmt.Fprintf(w, "❌ %d tables differ:\n", len(mismatched))
	for _, c := range mismatched {
		if c.Err != nil {
			fmt.Fprintf(w, "  - %s: %v\n", c.Table, c.Err)
			continue
		}
		fmt.Fprintf(w, "  - %s: %d source / %d destination\n", c.Table, c.Source, c.Destination)
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}
