// Package populator fills an existing database with fake rows so a
// migration can be tried against realistic data. Tables are seeded parents
// first and foreign key columns reuse keys already present in the parent.
package populator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/analyzer"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/generator"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// DefaultBatchSize is the number of rows per insert transaction
const DefaultBatchSize = 100

// referenceSample bounds how many parent keys are loaded per foreign key
const referenceSample = 1000

// Result is the outcome of a seed run
type Result struct {
	OK           bool
	Message      string
	Rows         map[string]int64
	FailedTables []string
}

// DatabasePopulator populates database tables with fake data
type DatabasePopulator struct {
	DB             *connector.DatabaseConnector
	Dialect        dialect.Dialect
	SchemaAnalyzer *analyzer.SchemaAnalyzer
	DataGenerator  *generator.DataGenerator
	NumRecords     int
	BatchSize      int
	Logger         logrus.FieldLogger

	references map[string][]interface{}
}

// NewDatabasePopulator creates a new database populator
func NewDatabasePopulator(
	db *connector.DatabaseConnector,
	d dialect.Dialect,
	dataGenerator *generator.DataGenerator,
	numRecords int,
	logger logrus.FieldLogger,
) *DatabasePopulator {
	return &DatabasePopulator{
		DB:             db,
		Dialect:        d,
		SchemaAnalyzer: analyzer.NewSchemaAnalyzer(db, d, logger),
		DataGenerator:  dataGenerator,
		NumRecords:     numRecords,
		BatchSize:      DefaultBatchSize,
		Logger:         logger,
		references:     make(map[string][]interface{}),
	}
}

// PopulateDatabase seeds tables (all base tables when empty) in dependency
// order. A table that fails is reported and the others are still seeded.
func (dp *DatabasePopulator) PopulateDatabase(ctx context.Context, tables []string) Result {
	if err := dp.SchemaAnalyzer.AnalyzeSchema(ctx, tables); err != nil {
		return Result{Message: fmt.Sprintf("Failed to analyze schema: %v", err)}
	}

	order := dp.SchemaAnalyzer.GetTableOrder()
	circular := dp.SchemaAnalyzer.GetCircularTables()
	result := Result{Rows: make(map[string]int64, len(order)), FailedTables: []string{}}

	var deferred []models.ForeignKey
	for _, table := range order {
		rows, late, err := dp.populateTable(ctx, table, circular)
		if err != nil {
			dp.Logger.Errorf("Error populating table %s: %v", table, err)
			result.FailedTables = append(result.FailedTables, table)
			continue
		}
		result.Rows[table] = rows
		deferred = append(deferred, late...)
		dp.Logger.Infof("Populated table %s with %d records", table, rows)
	}

	// Second pass: point the keys left NULL inside cycles at real rows
	for _, fk := range deferred {
		if err := dp.fillDeferred(ctx, fk); err != nil {
			dp.Logger.Warnf("Could not fill %s.%s: %v", fk.Table, fk.Column, err)
		}
	}

	result.OK = len(result.FailedTables) == 0
	if result.OK {
		result.Message = fmt.Sprintf("Seeded %d tables with %d records each", len(order), dp.NumRecords)
	} else {
		result.Message = fmt.Sprintf("Seeded %d/%d tables. Failed: %s",
			len(order)-len(result.FailedTables), len(order), strings.Join(result.FailedTables, ", "))
	}
	return result
}

// populateTable inserts NumRecords rows. Foreign keys into the same cycle
// are inserted as NULL and returned for the second pass.
func (dp *DatabasePopulator) populateTable(ctx context.Context, table string, circular map[string]bool) (int64, []models.ForeignKey, error) {
	columns, err := dp.Dialect.Columns(ctx, dp.DB, table)
	if err != nil {
		return 0, nil, err
	}

	fkMap := make(map[string]models.ForeignKey)
	for _, fk := range dp.SchemaAnalyzer.ForeignKeys[table] {
		fkMap[fk.Column] = fk
	}

	var (
		names    []string
		insert   []models.Column
		deferred []models.ForeignKey
	)
	for _, col := range columns {
		if col.IsAutoIncrement {
			continue
		}
		names = append(names, col.Name)
		insert = append(insert, col)
	}
	if len(names) == 0 {
		dp.Logger.Warnf("No insertable columns found for table: %s", table)
		return 0, nil, nil
	}

	// Resolve where each foreign key column gets its values
	references := make(map[string][]interface{})
	for _, col := range insert {
		fk, ok := fkMap[col.Name]
		if !ok {
			continue
		}
		inCycle := fk.ReferencedTable == table || (circular[table] && circular[fk.ReferencedTable])
		if inCycle {
			if !col.IsNullable {
				return 0, nil, fmt.Errorf("NOT NULL foreign key %s.%s is part of a cycle", table, col.Name)
			}
			deferred = append(deferred, fk)
			references[col.Name] = nil
			continue
		}

		values, err := dp.referenceValues(ctx, fk)
		if err != nil {
			return 0, nil, err
		}
		if len(values) == 0 && !col.IsNullable {
			return 0, nil, fmt.Errorf("no value available for NOT NULL foreign key %s.%s referencing %s.%s",
				table, col.Name, fk.ReferencedTable, fk.ReferencedColumn)
		}
		references[col.Name] = values
	}

	insertSQL := dp.Dialect.Upsert(table, names, nil)
	batchSize := dp.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var (
		inserted   int64
		paramsList [][]interface{}
	)
	for i := 0; i < dp.NumRecords; i++ {
		params := make([]interface{}, len(insert))
		for j, col := range insert {
			if values, isFK := references[col.Name]; isFK {
				params[j] = dp.pick(values)
				continue
			}
			params[j] = dp.DataGenerator.GenerateData(col)
		}
		paramsList = append(paramsList, params)

		if len(paramsList) >= batchSize || i == dp.NumRecords-1 {
			if _, err := dp.DB.ExecuteMany(ctx, insertSQL, paramsList); err != nil {
				return inserted, nil, err
			}
			inserted += int64(len(paramsList))
			paramsList = nil
		}
	}
	return inserted, deferred, nil
}

// referenceValues loads existing keys of the referenced column
func (dp *DatabasePopulator) referenceValues(ctx context.Context, fk models.ForeignKey) ([]interface{}, error) {
	key := fk.ReferencedTable + "." + fk.ReferencedColumn
	if values, ok := dp.references[key]; ok {
		return values, nil
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		dp.Dialect.QuoteIdent(fk.ReferencedColumn), dp.Dialect.QuoteIdent(fk.ReferencedTable),
		dp.Dialect.QuoteIdent(fk.ReferencedColumn), referenceSample)
	rows, err := dp.DB.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read keys of %s: %w", key, err)
	}
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, row[fk.ReferencedColumn])
	}
	dp.references[key] = values
	return values, nil
}

func (dp *DatabasePopulator) pick(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	return values[dp.DataGenerator.Rand.Intn(len(values))]
}

// fillDeferred sets a NULL cyclic foreign key to an existing parent key
func (dp *DatabasePopulator) fillDeferred(ctx context.Context, fk models.ForeignKey) error {
	delete(dp.references, fk.ReferencedTable+"."+fk.ReferencedColumn)
	values, err := dp.referenceValues(ctx, fk)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		dp.Logger.Warnf("Referenced table %s has no data, leaving %s.%s NULL", fk.ReferencedTable, fk.Table, fk.Column)
		return nil
	}

	col := dp.Dialect.QuoteIdent(fk.Column)
	updateSQL := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
		dp.Dialect.QuoteIdent(fk.Table), col, dp.Dialect.Placeholder(1), col)
	_, err = dp.DB.ExecuteStatement(ctx, updateSQL, dp.pick(values))
	return err
}
