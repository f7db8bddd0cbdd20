package migrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/analyzer"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/internal/progress"
	"github.com/vitebski/interdb-migrator/internal/transfer"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// TableOptions tune one table migration
type TableOptions struct {
	BatchSize    int
	DropIfExists bool
}

// TableMigrator runs the schema step and then the data step for one table
// pair. The strategy is fixed when the migrator is built.
type TableMigrator struct {
	Strategy     *Strategy
	Provider     connector.Provider
	Introspector *analyzer.SchemaIntrospector
	Transfer     *transfer.Engine
	Observer     progress.Observer
	Logger       logrus.FieldLogger

	// lastState holds the latest state emitted per table
	lastState sync.Map
}

// NewTableMigrator builds a migrator for the source and destination engines.
// Unsupported engine pairs fail here rather than mid-run.
func NewTableMigrator(source, destination models.Engine, provider connector.Provider, observer progress.Observer, logger logrus.FieldLogger) (*TableMigrator, error) {
	strategy, err := StrategyFor(source, destination, logger)
	if err != nil {
		return nil, err
	}
	if observer == nil {
		observer = progress.Nop{}
	}
	logger = logger.WithField("pair", strategy.Pair.String())
	return &TableMigrator{
		Strategy:     strategy,
		Provider:     provider,
		Introspector: analyzer.NewSchemaIntrospector(strategy.SourceDialect, logger),
		Transfer:     transfer.NewEngine(logger, observer),
		Observer:     observer,
		Logger:       logger,
	}, nil
}

// endpoints is the pair of open connections of one table migration
type endpoints struct {
	src, dst *connector.DatabaseConnector
}

func (e *endpoints) close() {
	if e.src != nil {
		e.src.Disconnect()
	}
	if e.dst != nil {
		e.dst.Disconnect()
	}
}

// open connects both ends at table scope
func (tm *TableMigrator) open(ctx context.Context, src, dst models.ConnectionConfig) (*endpoints, error) {
	ep := &endpoints{}
	var err error
	if ep.src, err = tm.Provider.Open(ctx, src); err != nil {
		return nil, migerr.ConnectionError(fmt.Errorf("source %s: %w", src.Database, err))
	}
	if ep.dst, err = tm.Provider.Open(ctx, dst); err != nil {
		ep.close()
		return nil, migerr.ConnectionError(fmt.Errorf("destination %s: %w", dst.Database, err))
	}
	return ep, nil
}

// tableNames resolves the source and destination table of a pair of
// configs. The destination defaults to the source table name.
func tableNames(src, dst models.ConnectionConfig) (string, string, error) {
	if src.TableName == "" {
		return "", "", fmt.Errorf("source table name must be provided")
	}
	if dst.TableName == "" {
		return src.TableName, src.TableName, nil
	}
	return src.TableName, dst.TableName, nil
}

func (tm *TableMigrator) emit(table string, state models.TableState, message string) {
	tm.lastState.Store(table, state)
	tm.Observer.OnTable(models.TableEvent{Table: table, State: state, Message: message})
}

// stateOf returns the latest state emitted for table, Pending if none
func (tm *TableMigrator) stateOf(table string) models.TableState {
	if v, ok := tm.lastState.Load(table); ok {
		return v.(models.TableState)
	}
	return models.Pending
}

// CopySchema runs the schema step alone
func (tm *TableMigrator) CopySchema(ctx context.Context, src, dst models.ConnectionConfig, dropIfExists bool) models.SchemaResult {
	srcTable, dstTable, err := tableNames(src, dst)
	if err != nil {
		return models.SchemaResult{Message: err.Error(), ErrorKind: models.SourceNotFound, Err: err}
	}
	ep, err := tm.open(ctx, src, dst)
	if err != nil {
		return models.SchemaResult{Message: err.Error(), ErrorKind: models.ConnectionError, Err: err}
	}
	defer ep.close()

	return tm.copySchema(ctx, ep, srcTable, dstTable, dropIfExists, nil)
}

// copySchema introspects the source table and writes the destination. The
// introspected schema is stored in out when out is non-nil.
func (tm *TableMigrator) copySchema(ctx context.Context, ep *endpoints, srcTable, dstTable string, dropIfExists bool, out **models.TableSchema) models.SchemaResult {
	opts := analyzer.IntrospectOptions{NativeDDL: tm.Strategy.Writer.NeedsNativeDDL()}
	schema, err := tm.Introspector.Introspect(ctx, ep.src, srcTable, opts)
	if err != nil {
		return models.SchemaResult{
			Message:   fmt.Sprintf("Failed to read schema of %s: %v", srcTable, err),
			ErrorKind: migerr.KindOf(err, models.SourceNotFound),
			Err:       err,
		}
	}
	if out != nil {
		*out = schema
	}
	return tm.Strategy.Writer.WriteSchema(ctx, schema, ep.dst, dstTable, dropIfExists)
}

// TransferData runs the data step alone against an existing destination table
func (tm *TableMigrator) TransferData(ctx context.Context, src, dst models.ConnectionConfig, batchSize int) models.DataResult {
	srcTable, dstTable, err := tableNames(src, dst)
	if err != nil {
		return models.DataResult{Message: err.Error(), ErrorKind: models.SourceNotFound, Err: err}
	}
	ep, err := tm.open(ctx, src, dst)
	if err != nil {
		return models.DataResult{Message: err.Error(), ErrorKind: models.ConnectionError, Err: err}
	}
	defer ep.close()

	return tm.Transfer.Transfer(ctx, tm.request(ep, srcTable, dstTable, nil, batchSize))
}

func (tm *TableMigrator) request(ep *endpoints, srcTable, dstTable string, columns []models.Column, batchSize int) transfer.Request {
	return transfer.Request{
		Source:             ep.src,
		Destination:        ep.dst,
		SourceDialect:      tm.Strategy.SourceDialect,
		DestinationDialect: tm.Strategy.DestinationDialect,
		SourceTable:        srcTable,
		DestinationTable:   dstTable,
		SourceColumns:      columns,
		BatchSize:          batchSize,
	}
}

// MigrateTable copies structure then rows. A failed schema step returns
// at once with no row count; a failed data step reports the rows of the
// batches that committed.
func (tm *TableMigrator) MigrateTable(ctx context.Context, src, dst models.ConnectionConfig, opts TableOptions) models.MigrationResult {
	srcTable, dstTable, err := tableNames(src, dst)
	if err != nil {
		return models.MigrationResult{
			Message: err.Error(), ErrorKind: models.SchemaStepFailed, Cause: models.SourceNotFound, Err: err,
		}
	}
	logger := tm.Logger.WithField("table", srcTable)

	tm.emit(srcTable, models.SchemaInProgress, "")
	ep, err := tm.open(ctx, src, dst)
	if err != nil {
		logger.Errorf("Could not connect: %v", err)
		tm.emit(srcTable, models.SchemaFailed, err.Error())
		return models.MigrationResult{
			Message:   fmt.Sprintf("Schema copy failed: %v", err),
			ErrorKind: models.SchemaStepFailed,
			Cause:     models.ConnectionError,
			Err:       err,
		}
	}
	defer ep.close()

	logger.Infof("Step 1: copying schema of %s to %s", srcTable, dstTable)
	var schema *models.TableSchema
	schemaResult := tm.copySchema(ctx, ep, srcTable, dstTable, opts.DropIfExists, &schema)
	if !schemaResult.OK {
		logger.Errorf("Schema copy failed: %s", schemaResult.Message)
		tm.emit(srcTable, models.SchemaFailed, schemaResult.Message)
		return models.MigrationResult{
			Message:   "Schema copy failed: " + schemaResult.Message,
			ErrorKind: models.SchemaStepFailed,
			Cause:     schemaResult.ErrorKind,
			Err:       schemaResult.Err,
			Warnings:  schemaResult.Warnings,
		}
	}
	logger.Infof("Step 1 completed: %s", schemaResult.Message)

	tm.emit(srcTable, models.DataInProgress, "")
	logger.Infof("Step 2: upserting rows of %s", srcTable)
	dataResult := tm.Transfer.Transfer(ctx, tm.request(ep, srcTable, dstTable, schema.Columns, opts.BatchSize))
	rows := dataResult.RowsTransferred
	if !dataResult.OK {
		logger.Errorf("Data upsert failed: %s", dataResult.Message)
		tm.emit(srcTable, models.DataFailed, dataResult.Message)
		return models.MigrationResult{
			Message:         "Data upsert failed: " + dataResult.Message,
			RowsTransferred: &rows,
			ErrorKind:       models.DataStepFailed,
			Cause:           dataResult.ErrorKind,
			Err:             dataResult.Err,
			Warnings:        schemaResult.Warnings,
		}
	}
	logger.Infof("Step 2 completed: %s", dataResult.Message)

	tm.emit(srcTable, models.Done, dataResult.Message)
	return models.MigrationResult{
		OK:              true,
		Message:         fmt.Sprintf("Successfully copied table %s to %s", srcTable, dstTable),
		RowsTransferred: &rows,
		Warnings:        schemaResult.Warnings,
	}
}
