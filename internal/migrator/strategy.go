// Package migrator composes the schema and data steps into table and
// whole-database migrations.
package migrator

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/schema"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Pair is a (source engine, destination engine) combination
type Pair struct {
	Source      models.Engine
	Destination models.Engine
}

func (p Pair) String() string {
	return fmt.Sprintf("%s->%s", p.Source, p.Destination)
}

// Strategy holds everything that differs between engine pairs
type Strategy struct {
	Pair               Pair
	SourceDialect      dialect.Dialect
	DestinationDialect dialect.Dialect
	Writer             schema.Writer
}

type strategyFactory func(logger logrus.FieldLogger) *Strategy

var strategies = map[Pair]strategyFactory{
	{models.MySQL, models.MySQL}: func(logger logrus.FieldLogger) *Strategy {
		return &Strategy{
			Pair:               Pair{models.MySQL, models.MySQL},
			SourceDialect:      dialect.MySQL{},
			DestinationDialect: dialect.MySQL{},
			Writer:             schema.NewVerbatimWriter(dialect.MySQL{}, logger),
		}
	},
	{models.MySQL, models.Postgres}: func(logger logrus.FieldLogger) *Strategy {
		return &Strategy{
			Pair:               Pair{models.MySQL, models.Postgres},
			SourceDialect:      dialect.MySQL{},
			DestinationDialect: dialect.Postgres{},
			Writer:             schema.NewTranslatingWriter(logger),
		}
	},
}

// StrategyFor returns the strategy of an engine pair
func StrategyFor(source, destination models.Engine, logger logrus.FieldLogger) (*Strategy, error) {
	factory, ok := strategies[Pair{source, destination}]
	if !ok {
		return nil, fmt.Errorf("migrating from %s to %s is not supported (supported: %v)", source, destination, SupportedPairs())
	}
	return factory(logger), nil
}

// SupportedPairs lists the engine pairs with a strategy
func SupportedPairs() []Pair {
	pairs := make([]Pair, 0, len(strategies))
	for p := range strategies {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	return pairs
}
