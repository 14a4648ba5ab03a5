package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.RecordStored("eth", true)
	c.RecordStored("eth", true)
	c.RecordStored("eth", false)
	c.RecordPass("eth", "completed", 1.5)
	c.RecordPushEvent("applied")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.txStored.WithLabelValues("eth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.txDuplicate.WithLabelValues("eth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.passes.WithLabelValues("eth", "completed")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "wallet_ledger_transactions_stored_total")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordStored("eth", true)
		c.RecordAddress("eth", false)
		c.RecordPass("eth", "halted", 0)
		c.RecordPushEvent("dropped")
	})
}
