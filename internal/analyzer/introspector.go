package analyzer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// IntrospectOptions selects the optional parts of an introspection
type IntrospectOptions struct {
	// NativeDDL also fetches the engine's own CREATE TABLE statement.
	NativeDDL bool
}

// SchemaIntrospector reads table structure from a live source connection.
// Only the source engine's metadata is consulted.
type SchemaIntrospector struct {
	Dialect dialect.Dialect
	Logger  logrus.FieldLogger
}

// NewSchemaIntrospector creates an introspector for the given source dialect
func NewSchemaIntrospector(d dialect.Dialect, logger logrus.FieldLogger) *SchemaIntrospector {
	return &SchemaIntrospector{
		Dialect: d,
		Logger:  logger,
	}
}

// Introspect returns the columns and primary key of table. A table without
// columns does not exist and fails with SourceNotFound.
func (si *SchemaIntrospector) Introspect(ctx context.Context, db *connector.DatabaseConnector, table string, opts IntrospectOptions) (*models.TableSchema, error) {
	columns, err := si.Dialect.Columns(ctx, db, table)
	if err != nil {
		si.Logger.Errorf("Error getting columns of %s: %v", table, err)
		return nil, fmt.Errorf("describe columns of %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, migerr.SourceNotFound(fmt.Errorf("source table %q not found or has no columns", table))
	}

	pk, err := si.Dialect.PrimaryKey(ctx, db, table)
	if err != nil {
		si.Logger.Errorf("Error getting primary key of %s: %v", table, err)
		return nil, fmt.Errorf("describe primary key of %s: %w", table, err)
	}

	schema := &models.TableSchema{
		Name:       table,
		Columns:    columns,
		PrimaryKey: pk,
	}

	if opts.NativeDDL {
		stmt, err := si.Dialect.CreateTableStatement(ctx, db, table)
		if err != nil {
			return nil, fmt.Errorf("read CREATE TABLE of %s: %w", table, err)
		}
		schema.CreateStatement = stmt
	}

	si.Logger.Debugf("Introspected %s: %d columns, primary key %v", table, len(columns), pk)
	return schema, nil
}

// ListTables returns the base tables of the connected database in listing order
func (si *SchemaIntrospector) ListTables(ctx context.Context, db *connector.DatabaseConnector) ([]string, error) {
	tables, err := si.Dialect.ListTables(ctx, db)
	if err != nil {
		si.Logger.Errorf("Error getting tables: %v", err)
		return nil, err
	}
	return tables, nil
}
