// Package dialect holds the engine specific SQL used by the migration
// components: identifier quoting, metadata lookups, and the DDL and DML
// templates for drop, paging and upsert.
package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Dialect is implemented once per engine
type Dialect interface {
	Engine() models.Engine
	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the n-th (1-based) parameter.
	Placeholder(n int) string

	TableExists(ctx context.Context, db *connector.DatabaseConnector, table string) (bool, error)
	ListTables(ctx context.Context, db *connector.DatabaseConnector) ([]string, error)
	Columns(ctx context.Context, db *connector.DatabaseConnector, table string) ([]models.Column, error)
	PrimaryKey(ctx context.Context, db *connector.DatabaseConnector, table string) ([]string, error)
	// ConflictColumns returns the primary key, else the first unique key,
	// else nothing.
	ConflictColumns(ctx context.Context, db *connector.DatabaseConnector, table string) ([]string, error)
	ForeignKeys(ctx context.Context, db *connector.DatabaseConnector) ([]models.ForeignKey, error)
	CreateTableStatement(ctx context.Context, db *connector.DatabaseConnector, table string) (string, error)
	SyncSequences(ctx context.Context, db *connector.DatabaseConnector, table string, columns []models.Column) error

	DropTable(table string) string
	CountRows(table string) string
	SelectPage(table string, columns []string) string
	Upsert(table string, columns, conflict []string) string

	IsBinary(col models.Column) bool
	ConvertValue(col models.Column, value interface{}) interface{}
}

// For returns the dialect of an engine
func For(engine models.Engine) (Dialect, error) {
	switch engine {
	case models.MySQL:
		return MySQL{}, nil
	case models.Postgres:
		return Postgres{}, nil
	}
	return nil, fmt.Errorf("no dialect for engine %q", engine)
}

func quoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(d Dialect, n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = d.Placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}

// nonKeyColumns returns columns not part of the conflict target, in order
func nonKeyColumns(columns, conflict []string) []string {
	keys := make(map[string]bool, len(conflict))
	for _, k := range conflict {
		keys[k] = true
	}
	var out []string
	for _, col := range columns {
		if !keys[col] {
			out = append(out, col)
		}
	}
	return out
}

// firstKeyGroup picks the columns of the first key name in rows ordered by
// key name, keeping column order
func firstKeyGroup(rows []map[string]interface{}, keyField, columnField string) []string {
	var (
		first   string
		columns []string
	)
	for i, row := range rows {
		name := stringValue(row[keyField])
		if i == 0 {
			first = name
		}
		if name != first {
			break
		}
		columns = append(columns, stringValue(row[columnField]))
	}
	return columns
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	}
	return fmt.Sprintf("%v", v)
}

func nullableString(v interface{}) *string {
	if v == nil {
		return nil
	}
	s := stringValue(v)
	return &s
}

func columnList(rows []map[string]interface{}, field string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, stringValue(row[field]))
	}
	return out
}
