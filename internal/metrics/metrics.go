// Package metrics exposes migration progress as prometheus counters.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

const namespace = "interdb"

// Collector counts rows, batches and table outcomes. It implements
// progress.Observer.
type Collector struct {
	Registry *prometheus.Registry

	rows    *prometheus.CounterVec
	batches *prometheus.CounterVec
	tables  *prometheus.CounterVec
}

// NewCollector registers the migration counters on a fresh registry
func NewCollector() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_transferred_total",
			Help:      "Rows written to the destination in committed batches.",
		}, []string{"table"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches processed, by outcome.",
		}, []string{"table", "outcome"}),
		tables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_total",
			Help:      "Tables that reached a terminal state, by state.",
		}, []string{"state"}),
	}
	c.Registry.MustRegister(c.rows, c.batches, c.tables)
	return c
}

func (c *Collector) OnBatch(e models.BatchEvent) {
	if e.Committed {
		c.rows.WithLabelValues(e.Table).Add(float64(e.Rows))
		c.batches.WithLabelValues(e.Table, "committed").Inc()
		return
	}
	c.batches.WithLabelValues(e.Table, "rolled_back").Inc()
}

func (c *Collector) OnTable(e models.TableEvent) {
	if e.State.Terminal() {
		c.tables.WithLabelValues(e.State.String()).Inc()
	}
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string, logger logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
