package dialect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Postgres implements Dialect for PostgreSQL. Metadata lookups are scoped to
// current_schema(); the connector sets search_path from the config schema.
type Postgres struct{}

func (Postgres) Engine() models.Engine { return models.Postgres }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) TableExists(ctx context.Context, db *connector.DatabaseConnector, table string) (bool, error) {
	count, err := db.ExecuteScalar(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_name = $1
	`, table)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (Postgres) ListTables(ctx context.Context, db *connector.DatabaseConnector) ([]string, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, err
	}
	return columnList(rows, "table_name"), nil
}

func (Postgres) Columns(ctx context.Context, db *connector.DatabaseConnector, table string) ([]models.Column, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			udt_name AS column_type,
			is_nullable AS is_nullable,
			column_default AS column_default,
			is_identity AS is_identity
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}

	columns := make([]models.Column, 0, len(rows))
	for _, row := range rows {
		def := nullableString(row["column_default"])
		serial := def != nil && strings.HasPrefix(*def, "nextval(")
		columns = append(columns, models.Column{
			Name:            stringValue(row["column_name"]),
			DataType:        strings.ToLower(stringValue(row["data_type"])),
			ColumnType:      stringValue(row["column_type"]),
			IsNullable:      stringValue(row["is_nullable"]) == "YES",
			Default:         def,
			IsAutoIncrement: serial || stringValue(row["is_identity"]) == "YES",
		})
	}
	return columns, nil
}

const pgKeyColumnsQuery = `
		SELECT tc.constraint_name AS constraint_name, kcu.column_name AS column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
			AND kcu.table_name = tc.table_name
		WHERE tc.table_schema = current_schema()
		AND tc.table_name = $1
		AND tc.constraint_type IN (%s)
		ORDER BY tc.constraint_type = 'PRIMARY KEY' DESC, tc.constraint_name, kcu.ordinal_position
	`

func (Postgres) PrimaryKey(ctx context.Context, db *connector.DatabaseConnector, table string) ([]string, error) {
	rows, err := db.ExecuteQuery(ctx, fmt.Sprintf(pgKeyColumnsQuery, "'PRIMARY KEY'"), table)
	if err != nil {
		return nil, err
	}
	return columnList(rows, "column_name"), nil
}

func (Postgres) ConflictColumns(ctx context.Context, db *connector.DatabaseConnector, table string) ([]string, error) {
	rows, err := db.ExecuteQuery(ctx, fmt.Sprintf(pgKeyColumnsQuery, "'PRIMARY KEY', 'UNIQUE'"), table)
	if err != nil {
		return nil, err
	}
	return firstKeyGroup(rows, "constraint_name", "column_name"), nil
}

func (Postgres) ForeignKeys(ctx context.Context, db *connector.DatabaseConnector) ([]models.ForeignKey, error) {
	rows, err := db.ExecuteQuery(ctx, `
		SELECT
			kcu.table_name AS table_name,
			kcu.column_name AS column_name,
			ccu.table_name AS referenced_table_name,
			ccu.column_name AS referenced_column_name,
			tc.constraint_name AS constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_schema = tc.constraint_schema
			AND ccu.constraint_name = tc.constraint_name
		WHERE tc.table_schema = current_schema()
		AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY kcu.table_name, kcu.column_name
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

// CreateTableStatement is not available: Postgres has no native SHOW CREATE
// TABLE, so Postgres sources go through translated DDL only
func (Postgres) CreateTableStatement(context.Context, *connector.DatabaseConnector, string) (string, error) {
	return "", fmt.Errorf("postgres does not expose a native CREATE TABLE statement")
}

// SyncSequences moves serial sequences past the largest copied value
func (d Postgres) SyncSequences(ctx context.Context, db *connector.DatabaseConnector, table string, columns []models.Column) error {
	for _, col := range columns {
		if !col.IsAutoIncrement {
			continue
		}
		q := d.QuoteIdent(col.Name)
		stmt := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence($1, $2), COALESCE(MAX(%s), 1), MAX(%s) IS NOT NULL) FROM %s",
			q, q, d.QuoteIdent(table),
		)
		if _, err := db.ExecuteStatement(ctx, stmt, d.QuoteIdent(table), col.Name); err != nil {
			return fmt.Errorf("sync sequence of %s.%s: %w", table, col.Name, err)
		}
	}
	return nil
}

// DropTable cascades to dependent destination objects
func (d Postgres) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", d.QuoteIdent(table))
}

func (d Postgres) CountRows(table string) string {
	return "SELECT COUNT(*) FROM " + d.QuoteIdent(table)
}

func (d Postgres) SelectPage(table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT $1 OFFSET $2", quoteList(d, columns), d.QuoteIdent(table))
}

// Upsert builds INSERT ... ON CONFLICT (keys) DO UPDATE SET, or a plain
// INSERT when there is no conflict target
func (d Postgres) Upsert(table string, columns, conflict []string) string {
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), quoteList(d, columns), placeholders(d, len(columns)))
	if len(conflict) == 0 {
		return insert
	}

	target := quoteList(d, conflict)
	updates := nonKeyColumns(columns, conflict)
	if len(updates) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", insert, target)
	}
	assignments := make([]string, len(updates))
	for i, col := range updates {
		q := d.QuoteIdent(col)
		assignments[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", insert, target, strings.Join(assignments, ", "))
}

func (Postgres) IsBinary(col models.Column) bool {
	return col.DataType == "bytea"
}

// ConvertValue maps MySQL style 0/1 booleans onto Postgres booleans
func (Postgres) ConvertValue(col models.Column, value interface{}) interface{} {
	if col.DataType != "boolean" {
		return value
	}
	switch v := value.(type) {
	case int64:
		return v != 0
	case int32:
		return v != 0
	case int:
		return v != 0
	case uint8:
		return v != 0
	case []byte:
		return parseBool(string(v), value)
	case string:
		return parseBool(v, value)
	}
	return value
}

func parseBool(s string, fallback interface{}) interface{} {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	case "0", "f", "false", "n", "no", "off":
		return false
	}
	return fallback
}
