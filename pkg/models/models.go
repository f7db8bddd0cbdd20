package models

import "fmt"

// Engine identifies a relational database engine
type Engine string

const (
	MySQL    Engine = "mysql"
	Postgres Engine = "postgres"
)

// DefaultPort returns the conventional port of the engine
func (e Engine) DefaultPort() int {
	switch e {
	case MySQL:
		return 3306
	case Postgres:
		return 5432
	}
	return 0
}

// SSHConfig describes an optional SSH jump host in front of a database
type SSHConfig struct {
	Host    string `validate:"required"`
	Port    int    `validate:"gte=0,lte=65535"`
	User    string `validate:"required"`
	KeyPath string `validate:"required"`
	// KnownHostsPath enables host key checking when set.
	KnownHostsPath string
}

// ConnectionConfig describes how to reach one database, and optionally one
// table inside it. It is built once per operation and never mutated.
type ConnectionConfig struct {
	Engine    Engine `validate:"required,oneof=mysql postgres"`
	Host      string `validate:"required"`
	Port      int    `validate:"gte=0,lte=65535"`
	User      string `validate:"required"`
	Password  string
	Database  string `validate:"required"`
	TableName string

	// Schema is the Postgres namespace tables live in (default "public").
	Schema string
	// Params are extra driver parameters appended to the DSN.
	Params map[string]string
	SSH    *SSHConfig `validate:"omitempty"`
}

// WithTable returns a copy of the config scoped to the given table
func (c ConnectionConfig) WithTable(table string) ConnectionConfig {
	c.TableName = table
	return c
}

// Address returns host:port, falling back to the engine default port
func (c ConnectionConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = c.Engine.DefaultPort()
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// SchemaName returns the namespace used for Postgres metadata lookups
func (c ConnectionConfig) SchemaName() string {
	if c.Schema == "" {
		return "public"
	}
	return c.Schema
}

// Column represents a database column with its properties
type Column struct {
	Name            string
	DataType        string
	ColumnType      string
	IsNullable      bool
	Default         *string
	IsAutoIncrement bool
	Extra           string
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
}

// TableSchema is the structure of one source table
type TableSchema struct {
	Name       string
	Columns    []Column
	PrimaryKey []string

	// CreateStatement holds the engine-native CREATE TABLE, when requested.
	CreateStatement string
}

// ColumnNames returns the column names in ordinal order
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		names = append(names, col.Name)
	}
	return names
}

// IsPrimaryKey reports whether the column belongs to the primary key
func (s *TableSchema) IsPrimaryKey(column string) bool {
	for _, pk := range s.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

// Row maps column names to values
type Row map[string]interface{}

// Batch is one page of source rows
type Batch struct {
	Offset int64
	Size   int
	Rows   []Row
}
