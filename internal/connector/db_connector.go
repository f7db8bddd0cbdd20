package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/migerr"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// DatabaseConnector handles database connection and query execution
type DatabaseConnector struct {
	Config models.ConnectionConfig
	DB     *sql.DB
	Logger logrus.FieldLogger

	tunnel *Tunnel
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(cfg models.ConnectionConfig, logger logrus.FieldLogger) *DatabaseConnector {
	if cfg.Host == "" {
		cfg.Host = getEnvOrDefault("INTERDB_DEFAULT_HOST", "localhost")
	}
	return &DatabaseConnector{
		Config: cfg,
		Logger: logger,
	}
}

// NewFromDB wraps an already opened *sql.DB
func NewFromDB(db *sql.DB, cfg models.ConnectionConfig, logger logrus.FieldLogger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		DB:     db,
		Logger: logger,
	}
}

// Engine returns the engine this connector talks to
func (dc *DatabaseConnector) Engine() models.Engine {
	return dc.Config.Engine
}

// Connect establishes a connection to the configured database
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	if dc.Config.Database == "" {
		return migerr.ConnectionError(fmt.Errorf("database name must be provided"))
	}

	if dc.Config.SSH != nil && dc.tunnel == nil {
		tunnel, err := OpenTunnel(*dc.Config.SSH)
		if err != nil {
			dc.Logger.Errorf("Error opening SSH tunnel to %s: %v", dc.Config.SSH.Host, err)
			return migerr.ConnectionError(err)
		}
		dc.tunnel = tunnel
	}

	var (
		db  *sql.DB
		err error
	)
	switch dc.Config.Engine {
	case models.MySQL:
		db, err = dc.openMySQL()
	case models.Postgres:
		db, err = dc.openPostgres()
	default:
		err = fmt.Errorf("unsupported engine %q", dc.Config.Engine)
	}
	if err != nil {
		dc.Logger.Errorf("Error connecting to %s database: %v", dc.Config.Engine, err)
		dc.closeTunnel()
		return migerr.ConnectionError(err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Config.Engine, err)
		db.Close()
		dc.closeTunnel()
		return migerr.ConnectionError(err)
	}

	db.SetMaxOpenConns(GetEnvInt("INTERDB_MAX_OPEN_CONNS", 4))
	dc.DB = db
	dc.Logger.Debugf("Connected to %s database: %s", dc.Config.Engine, dc.Config.Database)
	return nil
}

func (dc *DatabaseConnector) openMySQL() (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = dc.Config.User
	cfg.Passwd = dc.Config.Password
	cfg.Net = "tcp"
	cfg.Addr = dc.Config.Address()
	cfg.DBName = dc.Config.Database
	cfg.ParseTime = true
	if len(dc.Config.Params) > 0 {
		cfg.Params = make(map[string]string, len(dc.Config.Params))
		for k, v := range dc.Config.Params {
			cfg.Params[k] = v
		}
	}
	if dc.tunnel != nil {
		cfg.Net = dc.tunnel.RegisterMySQL()
	}

	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(conn), nil
}

func (dc *DatabaseConnector) openPostgres() (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(PostgresURL(dc.Config))
	if err != nil {
		return nil, err
	}
	if dc.tunnel != nil {
		cfg.DialFunc = dc.tunnel.DialContext
	}
	return stdlib.OpenDB(*cfg), nil
}

// PostgresURL builds a connection URL for pgx
func PostgresURL(cfg models.ConnectionConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Address(),
		Path:   "/" + cfg.Database,
	}
	query := url.Values{}
	for k, v := range cfg.Params {
		query.Set(k, v)
	}
	// pgx forwards unknown keys as runtime params
	if query.Get("search_path") == "" {
		query.Set("search_path", cfg.SchemaName())
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Debugf("%s connection closed", dc.Config.Engine)
		}
		dc.DB = nil
	}
	dc.closeTunnel()
}

func (dc *DatabaseConnector) closeTunnel() {
	if dc.tunnel != nil {
		dc.tunnel.Close()
		dc.tunnel = nil
	}
}

func (dc *DatabaseConnector) ensureConnected(ctx context.Context) error {
	if dc.DB == nil {
		return dc.Connect(ctx)
	}
	return nil
}

// ExecuteQuery executes a SQL query and returns the results, with byte
// slices converted to strings
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	rows, err := dc.query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	results := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		for col, val := range row {
			// Convert []byte to string for text fields
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			}
		}
		results = append(results, row)
	}
	return results, nil
}

// ExecuteRawQuery executes a SQL query and returns the values exactly as
// the driver produced them
func (dc *DatabaseConnector) ExecuteRawQuery(ctx context.Context, query string, params ...interface{}) ([]models.Row, error) {
	rows, err := dc.query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	results := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		results = append(results, models.Row(row))
	}
	return results, nil
}

func (dc *DatabaseConnector) query(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return nil, err
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Debugf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// The driver may reuse the buffer behind a []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = append([]byte(nil), b...)
			} else {
				row[col] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// ExecuteScalar runs a query expected to return one int64 in one row
func (dc *DatabaseConnector) ExecuteScalar(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return 0, err
	}
	var value int64
	if err := dc.DB.QueryRowContext(ctx, query, params...).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return 0, err
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Debugf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// DDL on some drivers has no meaningful count
		return 0, nil
	}

	return affected, nil
}

// ExecuteMany executes a SQL statement with multiple parameter sets inside
// one transaction. Any failure rolls the whole set back.
func (dc *DatabaseConnector) ExecuteMany(ctx context.Context, query string, paramsList [][]interface{}) (int64, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return 0, err
	}

	tx, err := dc.DB.BeginTx(ctx, nil)
	if err != nil {
		dc.Logger.Errorf("Error starting transaction: %v", err)
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		dc.Logger.Errorf("Error preparing statement: %v", err)
		dc.rollback(tx)
		return 0, err
	}
	defer stmt.Close()

	var totalAffected int64

	for i, params := range paramsList {
		result, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			dc.Logger.Errorf("Error executing batch statement (row %d): %v", i, err)
			dc.rollback(tx)
			return 0, err
		}

		affected, err := result.RowsAffected()
		if err == nil {
			totalAffected += affected
		}
	}

	if err := tx.Commit(); err != nil {
		dc.Logger.Errorf("Error committing transaction: %v", err)
		return 0, err
	}

	return totalAffected, nil
}

func (dc *DatabaseConnector) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		dc.Logger.Errorf("Error rolling back transaction: %v", err)
	}
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer value from an environment variable
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
