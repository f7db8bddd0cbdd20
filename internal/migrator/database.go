package migrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/analyzer"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// DatabaseOptions tune a whole-database migration
type DatabaseOptions struct {
	TableOptions
	// DependencyOrder copies referenced tables before referencing ones
	// instead of using the listing order.
	DependencyOrder bool
	// Tables restricts the run to these source tables when set.
	Tables []string
}

// DatabaseMigrator copies every base table of a source database. A failing
// table is recorded and the remaining tables still run.
type DatabaseMigrator struct {
	Tables *TableMigrator
	Logger logrus.FieldLogger
}

// NewDatabaseMigrator wraps a table migrator
func NewDatabaseMigrator(tables *TableMigrator, logger logrus.FieldLogger) *DatabaseMigrator {
	return &DatabaseMigrator{Tables: tables, Logger: logger}
}

// ListTables returns the tables a run would copy, in the order it would
// copy them
func (dm *DatabaseMigrator) ListTables(ctx context.Context, src models.ConnectionConfig, opts DatabaseOptions) ([]string, error) {
	conn, err := dm.Tables.Provider.Open(ctx, src)
	if err != nil {
		return nil, migerr.ConnectionError(err)
	}
	defer conn.Disconnect()

	tables := opts.Tables
	if len(tables) == 0 {
		tables, err = dm.Tables.Introspector.ListTables(ctx, conn)
		if err != nil {
			return nil, err
		}
	}
	if !opts.DependencyOrder || len(tables) < 2 {
		return tables, nil
	}

	sa := analyzer.NewSchemaAnalyzer(conn, dm.Tables.Strategy.SourceDialect, dm.Logger)
	if err := sa.AnalyzeSchema(ctx, tables); err != nil {
		dm.Logger.Warnf("Could not read foreign keys, keeping listing order: %v", err)
		return tables, nil
	}
	return sa.GetTableOrder(), nil
}

// MigrateDatabase migrates each table in turn. The result is ok only when
// no table failed.
func (dm *DatabaseMigrator) MigrateDatabase(ctx context.Context, src, dst models.ConnectionConfig, opts DatabaseOptions) models.DatabaseMigrationResult {
	runID := uuid.NewString()
	logger := dm.Logger.WithFields(logrus.Fields{"run_id": runID, "pair": dm.Tables.Strategy.Pair.String()})

	tables, err := dm.ListTables(ctx, src.WithTable(""), opts)
	if err != nil {
		logger.Errorf("Could not list tables of %s: %v", src.Database, err)
		return models.DatabaseMigrationResult{
			Message:   fmt.Sprintf("Failed to list tables of source database %s: %v", src.Database, err),
			RunID:     runID,
			ErrorKind: migerr.KindOf(err, models.ConnectionError),
		}
	}
	if len(tables) == 0 {
		return models.DatabaseMigrationResult{
			OK:      true,
			Message: fmt.Sprintf("No tables found in source database %s", src.Database),
			RunID:   runID,
		}
	}

	logger.Infof("Found %d tables in source database %s: %s", len(tables), src.Database, strings.Join(tables, ", "))
	for _, table := range tables {
		dm.Tables.emit(table, models.Pending, "")
	}

	result := models.DatabaseMigrationResult{
		RunID:        runID,
		TotalTables:  len(tables),
		FailedTables: []string{},
		Tables:       make([]models.TableOutcome, 0, len(tables)),
	}

	for i, table := range tables {
		logger.Infof("[%d/%d] Copying table %s", i+1, len(tables), table)
		outcome := dm.migrateOne(ctx, src.WithTable(table), dst.WithTable(table), opts.TableOptions)
		result.Tables = append(result.Tables, outcome)

		if outcome.State == models.Done {
			result.SuccessfulTables++
			result.TotalRowsTransferred += outcome.RowsTransferred
			logger.Infof("Copied table %s (%d rows)", table, outcome.RowsTransferred)
		} else {
			result.FailedTables = append(result.FailedTables, table)
			logger.Errorf("Failed to copy table %s: %s", table, outcome.Message)
		}
	}

	result.OK = len(result.FailedTables) == 0
	if result.OK {
		result.Message = fmt.Sprintf("Successfully copied all %d tables from %s to %s", len(tables), src.Database, dst.Database)
	} else {
		result.Message = fmt.Sprintf("Copied %d/%d tables. Failed: %s", result.SuccessfulTables, len(tables), strings.Join(result.FailedTables, ", "))
	}
	return result
}

// migrateOne runs one table and never panics; any failure becomes the
// table's outcome
func (dm *DatabaseMigrator) migrateOne(ctx context.Context, src, dst models.ConnectionConfig, opts TableOptions) (outcome models.TableOutcome) {
	outcome.Table = src.TableName
	defer func() {
		if r := recover(); r != nil {
			dm.Logger.WithField("table", src.TableName).Errorf("Recovered from panic: %v", r)
			outcome.State, outcome.ErrorKind = models.SchemaFailed, models.SchemaStepFailed
			if dm.Tables.stateOf(src.TableName) == models.DataInProgress {
				outcome.State, outcome.ErrorKind = models.DataFailed, models.DataStepFailed
			}
			outcome.Message = fmt.Sprintf("panic: %v", r)
			dm.Tables.emit(src.TableName, outcome.State, outcome.Message)
		}
	}()

	res := dm.Tables.MigrateTable(ctx, src, dst, opts)
	outcome.RowsTransferred = res.Rows()
	outcome.Message = res.Message
	outcome.ErrorKind = res.ErrorKind
	switch {
	case res.OK:
		outcome.State = models.Done
	case res.ErrorKind == models.DataStepFailed:
		outcome.State = models.DataFailed
	default:
		outcome.State = models.SchemaFailed
	}
	return outcome
}
