package schema

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// VerbatimWriter replays the source engine's CREATE TABLE on a destination
// of the same engine, renaming only the table
type VerbatimWriter struct {
	Dialect dialect.Dialect
	Logger  logrus.FieldLogger
}

// NewVerbatimWriter creates a writer for destinations speaking d
func NewVerbatimWriter(d dialect.Dialect, logger logrus.FieldLogger) *VerbatimWriter {
	return &VerbatimWriter{Dialect: d, Logger: logger}
}

func (w *VerbatimWriter) NeedsNativeDDL() bool { return true }

// createPrefix matches the head of a SHOW CREATE TABLE result up to and
// including the quoted table name
var createPrefix = regexp.MustCompile("(?is)^\\s*CREATE\\s+(TEMPORARY\\s+)?TABLE\\s+(IF\\s+NOT\\s+EXISTS\\s+)?(`(?:[^`]|``)+`|[A-Za-z0-9_$]+)")

func (w *VerbatimWriter) CreateStatement(schema *models.TableSchema, dstTable string) (string, []string, error) {
	if schema.CreateStatement == "" {
		return "", nil, fmt.Errorf("no native CREATE TABLE captured for %q", schema.Name)
	}
	return RenameCreateStatement(schema.CreateStatement, w.Dialect.QuoteIdent(dstTable))
}

// RenameCreateStatement swaps the table name of a CREATE TABLE statement
// for quotedName. The rest of the statement is kept byte for byte.
func RenameCreateStatement(stmt, quotedName string) (string, []string, error) {
	loc := createPrefix.FindStringSubmatchIndex(stmt)
	if loc == nil {
		return "", nil, fmt.Errorf("not a CREATE TABLE statement: %.40q", stmt)
	}
	// loc[7] is the end of the table name group
	return "CREATE TABLE " + quotedName + stmt[loc[7]:], nil, nil
}

func (w *VerbatimWriter) WriteSchema(ctx context.Context, schema *models.TableSchema, dst *connector.DatabaseConnector, dstTable string, dropIfExists bool) models.SchemaResult {
	return write(ctx, w, w.Dialect, w.Logger.WithField("table", dstTable), schema, dst, dstTable, dropIfExists)
}
