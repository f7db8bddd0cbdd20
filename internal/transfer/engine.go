// Package transfer copies rows between tables in fixed size batches, each
// written as one destination transaction of upserts.
package transfer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/internal/progress"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// DefaultBatchSize is used when a request does not set one
const DefaultBatchSize = 1000

// Request describes one table copy
type Request struct {
	Source             *connector.DatabaseConnector
	Destination        *connector.DatabaseConnector
	SourceDialect      dialect.Dialect
	DestinationDialect dialect.Dialect
	SourceTable        string
	DestinationTable   string
	// SourceColumns skips describing the source again when already known.
	SourceColumns []models.Column
	BatchSize     int
}

// Engine is the batch transfer engine
type Engine struct {
	Logger   logrus.FieldLogger
	Observer progress.Observer
}

// NewEngine creates a transfer engine. A nil observer is replaced by a no-op.
func NewEngine(logger logrus.FieldLogger, observer progress.Observer) *Engine {
	if observer == nil {
		observer = progress.Nop{}
	}
	return &Engine{Logger: logger, Observer: observer}
}

// plan is the resolved write shape of one transfer
type plan struct {
	columns    []string
	srcColumns []models.Column
	dstColumns []models.Column
	dstAll     []models.Column
	selectSQL  string
	upsertSQL  string
}

// Transfer copies every source row into the destination table. Batches
// commit independently; the first failing batch rolls back and stops the
// copy, and RowsTransferred then counts only the committed batches.
// Cancelling ctx stops the copy between batches; a running batch always
// reaches commit or rollback.
func (e *Engine) Transfer(ctx context.Context, req Request) models.DataResult {
	logger := e.Logger.WithFields(logrus.Fields{
		"table":       req.SourceTable,
		"destination": req.DestinationTable,
	})
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	exists, err := req.DestinationDialect.TableExists(ctx, req.Destination, req.DestinationTable)
	if err != nil {
		return failure(migerr.ConnectionError(err), 0, 0, "Failed to check destination table %s: %v", req.DestinationTable, err)
	}
	if !exists {
		err := migerr.DestinationNotFound(fmt.Errorf("destination table %q does not exist", req.DestinationTable))
		return failure(err, 0, 0, "Destination table %s does not exist", req.DestinationTable)
	}

	total, err := req.Source.ExecuteScalar(ctx, req.SourceDialect.CountRows(req.SourceTable))
	if err != nil {
		return failure(migerr.TransferFailed(err), 0, 0, "Failed to count rows of %s: %v", req.SourceTable, err)
	}
	if total == 0 {
		logger.Infof("Source table %s is empty, nothing to transfer", req.SourceTable)
		return models.DataResult{
			OK:      true,
			Message: fmt.Sprintf("Source table %s is empty", req.SourceTable),
		}
	}

	p, err := e.resolvePlan(ctx, req, logger)
	if err != nil {
		return failure(migerr.TransferFailed(err), 0, 0, "Failed to prepare transfer of %s: %v", req.SourceTable, err)
	}

	logger.Infof("Transferring %d rows from %s to %s in batches of %d", total, req.SourceTable, req.DestinationTable, batchSize)

	var (
		transferred int64
		batches     int
	)
	batchCtx := context.WithoutCancel(ctx)
	for offset := int64(0); offset < total; offset += int64(batchSize) {
		if err := ctx.Err(); err != nil {
			return failure(migerr.TransferFailed(err), transferred, batches,
				"Transfer of %s cancelled after %d rows", req.SourceTable, transferred)
		}

		batch, err := e.readBatch(batchCtx, req, p, offset, batchSize)
		if err != nil {
			return failure(migerr.TransferFailed(err), transferred, batches,
				"Failed to read rows %d+ of %s: %v", offset, req.SourceTable, err)
		}
		// the source shrank while copying
		if len(batch.Rows) == 0 {
			break
		}

		if _, err := req.Destination.ExecuteMany(batchCtx, p.upsertSQL, e.batchParams(req, p, batch)); err != nil {
			logger.Errorf("Batch at offset %d rolled back: %v", offset, err)
			e.Observer.OnBatch(models.BatchEvent{
				Table: req.SourceTable, Offset: offset, Rows: len(batch.Rows), Total: total,
			})
			return failure(migerr.TransferFailed(err), transferred, batches,
				"Batch at offset %d of %s failed and was rolled back after %d rows: %v", offset, req.SourceTable, transferred, err)
		}

		transferred += int64(len(batch.Rows))
		batches++
		logger.Debugf("Committed batch %d (%d rows, %d/%d)", batches, len(batch.Rows), transferred, total)
		e.Observer.OnBatch(models.BatchEvent{
			Table: req.SourceTable, Offset: offset, Rows: len(batch.Rows), Total: total, Committed: true,
		})
	}

	if err := req.DestinationDialect.SyncSequences(ctx, req.Destination, req.DestinationTable, p.dstAll); err != nil {
		logger.Warnf("Rows copied but sequences were not advanced: %v", err)
	}

	logger.Infof("Transferred %d rows from %s to %s", transferred, req.SourceTable, req.DestinationTable)
	return models.DataResult{
		OK:              true,
		Message:         fmt.Sprintf("Transferred %d rows from %s to %s in %d batches", transferred, req.SourceTable, req.DestinationTable, batches),
		RowsTransferred: transferred,
		Batches:         batches,
	}
}

// resolvePlan takes the write shape from the destination. Only columns
// present on both sides are written; destination-only columns keep their
// defaults on insert and their current values on update.
func (e *Engine) resolvePlan(ctx context.Context, req Request, logger logrus.FieldLogger) (*plan, error) {
	dstColumns, err := req.DestinationDialect.Columns(ctx, req.Destination, req.DestinationTable)
	if err != nil {
		return nil, fmt.Errorf("describe destination columns: %w", err)
	}
	conflict, err := req.DestinationDialect.ConflictColumns(ctx, req.Destination, req.DestinationTable)
	if err != nil {
		return nil, fmt.Errorf("describe destination keys: %w", err)
	}

	srcColumns := req.SourceColumns
	if len(srcColumns) == 0 {
		srcColumns, err = req.SourceDialect.Columns(ctx, req.Source, req.SourceTable)
		if err != nil {
			return nil, fmt.Errorf("describe source columns: %w", err)
		}
	}
	srcByName := make(map[string]models.Column, len(srcColumns))
	for _, col := range srcColumns {
		srcByName[col.Name] = col
	}

	p := &plan{dstAll: dstColumns}
	for _, col := range dstColumns {
		src, ok := srcByName[col.Name]
		if !ok {
			logger.Warnf("Destination column %s.%s has no source column and is not written", req.DestinationTable, col.Name)
			continue
		}
		p.columns = append(p.columns, col.Name)
		p.srcColumns = append(p.srcColumns, src)
		p.dstColumns = append(p.dstColumns, col)
	}
	if len(p.columns) == 0 {
		return nil, fmt.Errorf("source %s and destination %s share no columns", req.SourceTable, req.DestinationTable)
	}
	if len(conflict) == 0 {
		logger.Warnf("Destination table %s has no primary or unique key; rows are inserted without upsert", req.DestinationTable)
	}

	p.selectSQL = req.SourceDialect.SelectPage(req.SourceTable, p.columns)
	p.upsertSQL = req.DestinationDialect.Upsert(req.DestinationTable, p.columns, conflict)
	logger.Debugf("Upsert statement: %s", p.upsertSQL)
	return p, nil
}

func (e *Engine) readBatch(ctx context.Context, req Request, p *plan, offset int64, size int) (*models.Batch, error) {
	rows, err := req.Source.ExecuteRawQuery(ctx, p.selectSQL, size, offset)
	if err != nil {
		return nil, err
	}
	return &models.Batch{Offset: offset, Size: size, Rows: rows}, nil
}

// batchParams orders row values by the written columns. Text arrives from
// MySQL as bytes and is sent on as a string; binary columns stay bytes.
func (e *Engine) batchParams(req Request, p *plan, batch *models.Batch) [][]interface{} {
	params := make([][]interface{}, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		values := make([]interface{}, len(p.columns))
		for i, name := range p.columns {
			v := row[name]
			if b, ok := v.([]byte); ok && !req.SourceDialect.IsBinary(p.srcColumns[i]) {
				v = string(b)
			}
			values[i] = req.DestinationDialect.ConvertValue(p.dstColumns[i], v)
		}
		params = append(params, values)
	}
	return params
}

// failure builds a failed result whose kind is taken from the tagged err
func failure(err error, rows int64, batches int, format string, args ...interface{}) models.DataResult {
	return models.DataResult{
		Message:         fmt.Sprintf(format, args...),
		RowsTransferred: rows,
		Batches:         batches,
		ErrorKind:       migerr.KindOf(err, models.TransferFailed),
		Err:             err,
	}
}
