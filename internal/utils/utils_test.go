package utils

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/analyzer"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

func TestSetupLogging(t *testing.T) {
	// Test with default log level
	os.Unsetenv("INTERDB_LOG_LEVEL")
	logger := SetupLogging("")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected default log level to be info, got %s", logger.Level)
	}

	for _, level := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		logger = SetupLogging(level.String())
		if logger.Level != level {
			t.Errorf("Expected log level to be %s, got %s", level, logger.Level)
		}
	}

	// Test with invalid log level (should default to info)
	logger = SetupLogging("invalid")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info for invalid input, got %s", logger.Level)
	}

	// Environment fallback
	t.Setenv("INTERDB_LOG_LEVEL", "warn")
	logger = SetupLogging("")
	if logger.Level != logrus.WarnLevel {
		t.Errorf("Expected log level from environment to be warn, got %s", logger.Level)
	}
}

func TestLoadEnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	if LoadEnvironmentVariables(envFile, quietLogger()) {
		t.Error("Expected a missing env file not to load")
	}

	if err := os.WriteFile(envFile, []byte("INTERDB_TEST_LOADED=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("INTERDB_TEST_LOADED")
	defer os.Unsetenv("INTERDB_TEST_LOADED")

	if !LoadEnvironmentVariables(envFile, quietLogger()) {
		t.Error("Expected the env file to load")
	}
	if os.Getenv("INTERDB_TEST_LOADED") != "yes" {
		t.Errorf("Expected INTERDB_TEST_LOADED=yes, got %q", os.Getenv("INTERDB_TEST_LOADED"))
	}
}

func TestValidateConnectionConfig(t *testing.T) {
	valid := models.ConnectionConfig{Engine: models.MySQL, Host: "localhost", User: "root", Database: "shop", Port: 3306}
	if err := ValidateConnectionConfig(valid, "source"); err != nil {
		t.Errorf("Expected validation to pass, got %v", err)
	}

	// Empty password is allowed
	noPassword := valid
	noPassword.Password = ""
	if err := ValidateConnectionConfig(noPassword, "source"); err != nil {
		t.Errorf("Expected validation to pass with empty password, got %v", err)
	}

	missing := valid
	missing.Host = ""
	missing.Database = ""
	err := ValidateConnectionConfig(missing, "destination")
	if err == nil {
		t.Fatal("Expected validation to fail with missing host and database")
	}
	for _, want := range []string{"destination", "Host is required", "Database is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %q", want, err.Error())
		}
	}

	badEngine := valid
	badEngine.Engine = "oracle"
	if err := ValidateConnectionConfig(badEngine, "source"); err == nil || !strings.Contains(err.Error(), "Engine must be one of") {
		t.Errorf("Expected engine validation error, got %v", err)
	}

	badPort := valid
	badPort.Port = 70000
	if err := ValidateConnectionConfig(badPort, "source"); err == nil {
		t.Error("Expected validation to fail with invalid port")
	}

	badSSH := valid
	badSSH.SSH = &models.SSHConfig{Host: "bastion"}
	if err := ValidateConnectionConfig(badSSH, "source"); err == nil || !strings.Contains(err.Error(), "SSH.User is required") {
		t.Errorf("Expected SSH validation error, got %v", err)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, models.DatabaseMigrationResult{
		Message:              "Copied 1/2 tables. Failed: orders",
		RunID:                "run-1",
		TotalTables:          2,
		SuccessfulTables:     1,
		FailedTables:         []string{"orders"},
		TotalRowsTransferred: 10,
		Tables: []models.TableOutcome{
			{Table: "users", State: models.Done, RowsTransferred: 10},
			{Table: "orders", State: models.DataFailed, Message: "Data upsert failed: boom"},
		},
	})

	out := buf.String()
	for _, want := range []string{"Run ID: run-1", "Total rows transferred: 10", "- orders: Data upsert failed: boom", "Copied 1/2 tables. Failed: orders"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in summary:\n%s", want, out)
		}
	}
}

func TestPrintSchemaAnalysis(t *testing.T) {
	sa := analyzer.NewSchemaAnalyzer(nil, dialect.MySQL{}, quietLogger())
	sa.BuildGraph([]string{"orders", "users"}, []models.ForeignKey{
		{Table: "orders", Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"},
	})

	var buf bytes.Buffer
	PrintSchemaAnalysis(&buf, sa)

	out := buf.String()
	if !strings.Contains(out, "1. users (Standalone)") || !strings.Contains(out, "2. orders (Dependent)") {
		t.Errorf("Unexpected dependency order:\n%s", out)
	}
}

func TestPrintTableSchema(t *testing.T) {
	def := "CURRENT_TIMESTAMP"
	schema := &models.TableSchema{
		Name: "users",
		Columns: []models.Column{
			{Name: "id", ColumnType: "int(11)", IsAutoIncrement: true, Extra: "auto_increment"},
			{Name: "created_at", ColumnType: "datetime", IsNullable: true, Default: &def},
		},
		PrimaryKey: []string{"id"},
	}

	var buf bytes.Buffer
	PrintTableSchema(&buf, schema, `CREATE TABLE "users" ("id" SERIAL)`, []string{"UnsupportedType: column x"})

	lines := strings.Split(buf.String(), "\n")
	if !strings.Contains(lines[0], "primary key: id") {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "NOT NULL PRIMARY KEY auto_increment") {
		t.Errorf("Expected id to be marked as primary key: %q", lines[1])
	}
	if strings.Contains(lines[2], "PRIMARY KEY") || !strings.Contains(lines[2], "NULL DEFAULT CURRENT_TIMESTAMP") {
		t.Errorf("Unexpected created_at line: %q", lines[2])
	}
	for _, want := range []string{`CREATE TABLE "users" ("id" SERIAL);`, "Warning: UnsupportedType: column x"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Expected %q in:\n%s", want, buf.String())
		}
	}
}

func TestVerifyRowCounts(t *testing.T) {
	srcDB, srcMock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	dstDB, dstMock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	src := connector.NewFromDB(srcDB, models.ConnectionConfig{Engine: models.MySQL}, quietLogger())
	dst := connector.NewFromDB(dstDB, models.ConnectionConfig{Engine: models.Postgres}, quietLogger())

	srcMock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	dstMock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	srcMock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `orders`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))
	dstMock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	ok, checks := VerifyRowCounts(context.Background(), src, dst, dialect.MySQL{}, dialect.Postgres{},
		SameName([]string{"users", "orders"}), quietLogger())

	if ok {
		t.Error("Expected verification to fail")
	}
	if len(checks) != 2 || !checks[0].Matches() || checks[1].Matches() {
		t.Errorf("Unexpected checks: %+v", checks)
	}

	var buf bytes.Buffer
	PrintVerificationResults(&buf, checks)
	if !strings.Contains(buf.String(), "orders: 7 source / 3 destination") {
		t.Errorf("Unexpected verification output:\n%s", buf.String())
	}

	if err := srcMock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	if err := dstMock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
