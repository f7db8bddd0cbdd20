package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/translator"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// TranslatingWriter builds PostgreSQL DDL from introspected MySQL columns
type TranslatingWriter struct {
	Dialect dialect.Dialect
	Logger  logrus.FieldLogger
}

// NewTranslatingWriter creates a writer targeting PostgreSQL
func NewTranslatingWriter(logger logrus.FieldLogger) *TranslatingWriter {
	return &TranslatingWriter{Dialect: dialect.Postgres{}, Logger: logger}
}

func (w *TranslatingWriter) NeedsNativeDDL() bool { return false }

// ColumnDefinition renders one column and lists what the translation lost:
// an unmapped type stored as TEXT or a default PostgreSQL cannot hold.
func (w *TranslatingWriter) ColumnDefinition(col models.Column) (def string, warnings []string) {
	pgType, ok := translator.TranslateType(col.ColumnType, col.IsAutoIncrement)
	def = w.Dialect.QuoteIdent(col.Name) + " " + pgType
	if !ok {
		warnings = append(warnings, fmt.Sprintf("%s: column %s has unsupported type %q, stored as %s",
			models.UnsupportedType, col.Name, col.ColumnType, translator.Fallback))
	}

	// Serial types are NOT NULL with a generated default already
	if strings.HasSuffix(pgType, "SERIAL") {
		return def, warnings
	}
	if !col.IsNullable {
		def += " NOT NULL"
	}
	clause, ok := translator.TranslateDefault(col.Default, pgType)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("column %s default %q has no %s equivalent and was dropped",
			col.Name, *col.Default, pgType))
	}
	if clause != "" {
		def += " " + clause
	}
	return def, warnings
}

func (w *TranslatingWriter) CreateStatement(schema *models.TableSchema, dstTable string) (string, []string, error) {
	if len(schema.Columns) == 0 {
		return "", nil, fmt.Errorf("table %q has no columns", schema.Name)
	}

	var warnings []string
	defs := make([]string, 0, len(schema.Columns)+1)
	for _, col := range schema.Columns {
		def, lost := w.ColumnDefinition(col)
		warnings = append(warnings, lost...)
		defs = append(defs, def)
	}

	if len(schema.PrimaryKey) > 0 {
		pk := make([]string, len(schema.PrimaryKey))
		for i, name := range schema.PrimaryKey {
			pk[i] = w.Dialect.QuoteIdent(name)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pk, ", ")))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", w.Dialect.QuoteIdent(dstTable), strings.Join(defs, ",\n  "))
	return stmt, warnings, nil
}

func (w *TranslatingWriter) WriteSchema(ctx context.Context, schema *models.TableSchema, dst *connector.DatabaseConnector, dstTable string, dropIfExists bool) models.SchemaResult {
	logger := w.Logger.WithField("table", dstTable)
	result := write(ctx, w, w.Dialect, logger, schema, dst, dstTable, dropIfExists)
	for _, warning := range result.Warnings {
		logger.Warn(warning)
	}
	return result
}
