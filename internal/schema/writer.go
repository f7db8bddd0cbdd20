// Package schema creates destination tables from introspected source
// tables, either by replaying the source DDL or by translating it.
package schema

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Writer creates the destination table for one source table
type Writer interface {
	// NeedsNativeDDL reports whether the source schema must carry the
	// engine's own CREATE TABLE statement.
	NeedsNativeDDL() bool
	// CreateStatement renders the DDL without executing it.
	CreateStatement(schema *models.TableSchema, dstTable string) (string, []string, error)
	WriteSchema(ctx context.Context, schema *models.TableSchema, dst *connector.DatabaseConnector, dstTable string, dropIfExists bool) models.SchemaResult
}

// write runs the shared guard, drop and create sequence. The destination is
// only touched when it is absent or dropIfExists is set.
func write(ctx context.Context, w Writer, d dialect.Dialect, logger logrus.FieldLogger,
	schema *models.TableSchema, dst *connector.DatabaseConnector, dstTable string, dropIfExists bool) models.SchemaResult {

	createSQL, warnings, err := w.CreateStatement(schema, dstTable)
	if err != nil {
		return models.SchemaResult{
			Message:   fmt.Sprintf("Failed to build CREATE TABLE for %s: %v", dstTable, err),
			ErrorKind: models.SchemaStepFailed,
			Err:       err,
		}
	}

	exists, err := d.TableExists(ctx, dst, dstTable)
	if err != nil {
		logger.Errorf("Error checking destination table %s: %v", dstTable, err)
		return models.SchemaResult{
			Message:   fmt.Sprintf("Failed to check destination table %s: %v", dstTable, err),
			ErrorKind: models.ConnectionError,
			Err:       err,
		}
	}

	if exists {
		if !dropIfExists {
			return models.SchemaResult{
				Message:   fmt.Sprintf("Destination table %s already exists", dstTable),
				ErrorKind: models.DestinationExists,
				Err:       migerr.DestinationExists(fmt.Errorf("destination table %q already exists", dstTable)),
				Warnings:  warnings,
			}
		}
		logger.Infof("Dropping existing destination table %s", dstTable)
		if _, err := dst.ExecuteStatement(ctx, d.DropTable(dstTable)); err != nil {
			logger.Errorf("Error dropping %s: %v", dstTable, err)
			return models.SchemaResult{
				Message:   fmt.Sprintf("Failed to drop destination table %s: %v", dstTable, err),
				ErrorKind: models.SchemaStepFailed,
				Err:       err,
				Warnings:  warnings,
			}
		}
	}

	logger.Debugf("Creating %s:\n%s", dstTable, createSQL)
	if _, err := dst.ExecuteStatement(ctx, createSQL); err != nil {
		logger.Errorf("Error creating %s: %v", dstTable, err)
		return models.SchemaResult{
			Message:   fmt.Sprintf("Failed to create destination table %s: %v", dstTable, err),
			ErrorKind: models.SchemaStepFailed,
			Err:       err,
			Warnings:  warnings,
		}
	}

	return models.SchemaResult{
		OK:       true,
		Message:  fmt.Sprintf("Table schema copied from %s to %s", schema.Name, dstTable),
		Warnings: warnings,
	}
}
