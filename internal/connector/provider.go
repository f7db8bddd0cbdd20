package connector

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Provider opens connectors for connection configs. Components receive a
// Provider instead of reaching for shared pools.
type Provider interface {
	Open(ctx context.Context, cfg models.ConnectionConfig) (*DatabaseConnector, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, cfg models.ConnectionConfig) (*DatabaseConnector, error)

func (f ProviderFunc) Open(ctx context.Context, cfg models.ConnectionConfig) (*DatabaseConnector, error) {
	return f(ctx, cfg)
}

// NewProvider returns a Provider dialing a fresh connection per Open
func NewProvider(logger logrus.FieldLogger) Provider {
	return ProviderFunc(func(ctx context.Context, cfg models.ConnectionConfig) (*DatabaseConnector, error) {
		dc := NewDatabaseConnector(cfg, logger)
		if err := dc.Connect(ctx); err != nil {
			return nil, err
		}
		return dc, nil
	})
}
