package analyzer

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/pkg/models"
	"github.com/yourbasic/graph"
)

// SchemaAnalyzer builds the foreign key dependency graph of a database so
// tables can be copied parents first
type SchemaAnalyzer struct {
	DB              *connector.DatabaseConnector
	Dialect         dialect.Dialect
	Tables          []string
	ForeignKeys     map[string][]models.ForeignKey
	DependencyGraph *graph.Mutable
	TableIndexMap   map[string]int
	IndexTableMap   map[int]string
	Logger          logrus.FieldLogger
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(db *connector.DatabaseConnector, d dialect.Dialect, logger logrus.FieldLogger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		DB:            db,
		Dialect:       d,
		ForeignKeys:   make(map[string][]models.ForeignKey),
		TableIndexMap: make(map[string]int),
		IndexTableMap: make(map[int]string),
		Logger:        logger,
	}
}

// AnalyzeSchema loads tables and foreign keys. When tables is non-empty it
// is used as the table list instead of querying it.
func (sa *SchemaAnalyzer) AnalyzeSchema(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		var err error
		tables, err = sa.Dialect.ListTables(ctx, sa.DB)
		if err != nil {
			sa.Logger.Errorf("Error getting tables: %v", err)
			return err
		}
	}

	fks, err := sa.Dialect.ForeignKeys(ctx, sa.DB)
	if err != nil {
		sa.Logger.Errorf("Error getting foreign keys: %v", err)
		return err
	}

	sa.BuildGraph(tables, fks)
	return nil
}

// BuildGraph indexes tables and adds one edge per foreign key, pointing
// from the referenced table to the referencing one
func (sa *SchemaAnalyzer) BuildGraph(tables []string, fks []models.ForeignKey) {
	sa.Tables = tables
	sa.ForeignKeys = make(map[string][]models.ForeignKey)
	sa.TableIndexMap = make(map[string]int, len(tables))
	sa.IndexTableMap = make(map[int]string, len(tables))
	for i, table := range tables {
		sa.TableIndexMap[table] = i
		sa.IndexTableMap[i] = table
	}

	sa.DependencyGraph = graph.New(len(tables))
	for _, fk := range fks {
		sa.ForeignKeys[fk.Table] = append(sa.ForeignKeys[fk.Table], fk)

		// Self references never constrain the order
		if fk.Table == fk.ReferencedTable {
			continue
		}
		child, ok := sa.TableIndexMap[fk.Table]
		if !ok {
			continue
		}
		parent, ok := sa.TableIndexMap[fk.ReferencedTable]
		if !ok {
			continue
		}
		sa.DependencyGraph.Add(parent, child)
	}
}

// GetCircularTables returns tables that take part in a foreign key cycle
func (sa *SchemaAnalyzer) GetCircularTables() map[string]bool {
	circular := make(map[string]bool)
	if sa.DependencyGraph == nil {
		return circular
	}
	for _, comp := range graph.StrongComponents(sa.DependencyGraph) {
		if len(comp) < 2 {
			continue
		}
		for _, v := range comp {
			circular[sa.IndexTableMap[v]] = true
		}
	}
	return circular
}

// GetTableOrder returns the tables with every referenced table ahead of the
// tables referencing it. Tables in a cycle are kept together in listing
// order, since no order satisfies all of their constraints.
func (sa *SchemaAnalyzer) GetTableOrder() []string {
	if sa.DependencyGraph == nil || len(sa.Tables) == 0 {
		return sa.Tables
	}

	comps := graph.StrongComponents(sa.DependencyGraph)
	compOf := make([]int, len(sa.Tables))
	for i, comp := range comps {
		for _, v := range comp {
			compOf[v] = i
		}
	}

	// Collapse each cycle to a single vertex, then sort the acyclic result
	condensed := graph.New(len(comps))
	for v := range sa.Tables {
		sa.DependencyGraph.Visit(v, func(w int, _ int64) bool {
			if compOf[v] != compOf[w] {
				condensed.Add(compOf[v], compOf[w])
			}
			return false
		})
	}

	order, ok := graph.TopSort(condensed)
	if !ok {
		sa.Logger.Warnf("Could not order tables by foreign keys; keeping listing order")
		return sa.Tables
	}

	ordered := make([]string, 0, len(sa.Tables))
	for _, c := range order {
		members := append([]int(nil), comps[c]...)
		sort.Ints(members)
		if len(members) > 1 {
			sa.Logger.Warnf("Tables %v form a foreign key cycle", sa.names(members))
		}
		ordered = append(ordered, sa.names(members)...)
	}
	return ordered
}

func (sa *SchemaAnalyzer) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, v := range idx {
		out[i] = sa.IndexTableMap[v]
	}
	return out
}
