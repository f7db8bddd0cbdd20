package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

func TestCollectorCountsBatches(t *testing.T) {
	c := NewCollector()

	c.OnBatch(models.BatchEvent{Table: "users", Rows: 1000, Committed: true})
	c.OnBatch(models.BatchEvent{Table: "users", Rows: 500, Committed: true})
	c.OnBatch(models.BatchEvent{Table: "users", Rows: 1000, Committed: false})

	assert.Equal(t, float64(1500), testutil.ToFloat64(c.rows.WithLabelValues("users")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.batches.WithLabelValues("users", "committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.batches.WithLabelValues("users", "rolled_back")))
}

func TestCollectorCountsTerminalTables(t *testing.T) {
	c := NewCollector()

	c.OnTable(models.TableEvent{Table: "users", State: models.SchemaInProgress})
	c.OnTable(models.TableEvent{Table: "users", State: models.Done})
	c.OnTable(models.TableEvent{Table: "orders", State: models.DataFailed})

	assert.Equal(t, float64(1), testutil.ToFloat64(c.tables.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.tables.WithLabelValues("data-failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.tables.WithLabelValues("schema")))
}

func TestHandlerExposesCounters(t *testing.T) {
	c := NewCollector()
	c.OnBatch(models.BatchEvent{Table: "users", Rows: 3, Committed: true})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `interdb_rows_transferred_total{table="users"} 3`)
}
