package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// MySQL implements Dialect for MySQL and MariaDB
type MySQL struct{}

func (MySQL) Engine() models.Engine { return models.MySQL }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

// TableExists checks information_schema rather than SHOW TABLES LIKE, where
// underscores would act as wildcards
func (MySQL) TableExists(ctx context.Context, db *connector.DatabaseConnector, table string) (bool, error) {
	count, err := db.ExecuteScalar(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		AND table_name = ?
	`, table)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (MySQL) ListTables(ctx context.Context, db *connector.DatabaseConnector) ([]string, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, err
	}
	return columnList(rows, "table_name"), nil
}

func (MySQL) Columns(ctx context.Context, db *connector.DatabaseConnector, table string) ([]models.Column, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			column_type AS column_type,
			is_nullable AS is_nullable,
			column_default AS column_default,
			extra AS extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		AND table_name = ?
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}

	columns := make([]models.Column, 0, len(rows))
	for _, row := range rows {
		extra := stringValue(row["extra"])
		columns = append(columns, models.Column{
			Name:            stringValue(row["column_name"]),
			DataType:        strings.ToLower(stringValue(row["data_type"])),
			ColumnType:      stringValue(row["column_type"]),
			IsNullable:      stringValue(row["is_nullable"]) == "YES",
			Default:         unquoteDefault(nullableString(row["column_default"])),
			IsAutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
			Extra:           extra,
		})
	}
	return columns, nil
}

// unquoteDefault strips the quotes MariaDB keeps around literal defaults
func unquoteDefault(def *string) *string {
	if def == nil {
		return nil
	}
	s := *def
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		return &s
	}
	if strings.EqualFold(s, "NULL") {
		return nil
	}
	return def
}

func (MySQL) PrimaryKey(ctx context.Context, db *connector.DatabaseConnector, table string) ([]string, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT column_name AS column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE()
		AND table_name = ?
		AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	return columnList(rows, "column_name"), nil
}

func (MySQL) ConflictColumns(ctx context.Context, db *connector.DatabaseConnector, table string) ([]string, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT index_name AS index_name, column_name AS column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
		AND table_name = ?
		AND non_unique = 0
		ORDER BY index_name = 'PRIMARY' DESC, index_name, seq_in_index
	`, table)
	if err != nil {
		return nil, err
	}
	return firstKeyGroup(rows, "index_name", "column_name"), nil
}

func (MySQL) ForeignKeys(ctx context.Context, db *connector.DatabaseConnector) ([]models.ForeignKey, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT
			table_name AS table_name,
			column_name AS column_name,
			referenced_table_name AS referenced_table_name,
			referenced_column_name AS referenced_column_name,
			constraint_name AS constraint_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE()
		AND referenced_table_name IS NOT NULL
		ORDER BY table_name, column_name
	`)
	if err != nil {
		return nil, err
	}

	fks := make([]models.ForeignKey, 0, len(rows))
	for _, row := range rows {
		fks = append(fks, models.ForeignKey{
			Table:            stringValue(row["table_name"]),
			Column:           stringValue(row["column_name"]),
			ReferencedTable:  stringValue(row["referenced_table_name"]),
			ReferencedColumn: stringValue(row["referenced_column_name"]),
			ConstraintName:   stringValue(row["constraint_name"]),
		})
	}
	return fks, nil
}

func (d MySQL) CreateTableStatement(ctx context.Context, db *connector.DatabaseConnector, table string) (string, error) {
	rows, err := db.ExecuteQuery(ctx, "SHOW CREATE TABLE "+d.QuoteIdent(table))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no CREATE TABLE returned for %q", table)
	}
	stmt := stringValue(rows[0]["Create Table"])
	if stmt == "" {
		return "", fmt.Errorf("%q is not a base table", table)
	}
	return stmt, nil
}

// SyncSequences is a no-op: AUTO_INCREMENT counters follow inserted ids
func (MySQL) SyncSequences(context.Context, *connector.DatabaseConnector, string, []models.Column) error {
	return nil
}

func (d MySQL) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

func (d MySQL) CountRows(table string) string {
	return "SELECT COUNT(*) FROM " + d.QuoteIdent(table)
}

func (d MySQL) SelectPage(table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT ? OFFSET ?", quoteList(d, columns), d.QuoteIdent(table))
}

// Upsert builds INSERT ... ON DUPLICATE KEY UPDATE overwriting every
// non-key column, or a plain INSERT when there is no key
func (d MySQL) Upsert(table string, columns, conflict []string) string {
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), quoteList(d, columns), placeholders(d, len(columns)))
	if len(conflict) == 0 {
		return insert
	}

	updates := nonKeyColumns(columns, conflict)
	if len(updates) == 0 {
		key := d.QuoteIdent(conflict[0])
		return fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s = %s", insert, key, key)
	}
	assignments := make([]string, len(updates))
	for i, col := range updates {
		q := d.QuoteIdent(col)
		assignments[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}
	return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")
}

func (MySQL) IsBinary(col models.Column) bool {
	switch col.DataType {
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bit", "geometry":
		return true
	}
	return false
}

func (MySQL) ConvertValue(_ models.Column, value interface{}) interface{} {
	return value
}
