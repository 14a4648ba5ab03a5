package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the ledger metrics. A nil Collector records nothing.
type Collector struct {
	txStored        *prometheus.CounterVec
	txDuplicate     *prometheus.CounterVec
	addressesSynced *prometheus.CounterVec
	passes          *prometheus.CounterVec
	pushEvents      *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewCollector creates a collector on its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		txStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_transactions_stored_total",
			Help: "Transactions appended to the ledger",
		}, []string{"asset"}),
		txDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_transactions_duplicate_total",
			Help: "Transactions already present at their height",
		}, []string{"asset"}),
		addressesSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_addresses_synced_total",
			Help: "Addresses visited by sync passes",
		}, []string{"asset", "active"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_sync_passes_total",
			Help: "Sync passes by outcome",
		}, []string{"asset", "outcome"}),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_push_events_total",
			Help: "Pushed indexer events by outcome",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_ledger_sync_pass_duration_seconds",
			Help:    "Duration of sync passes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"asset"}),
	}

	registry.MustRegister(
		c.txStored,
		c.txDuplicate,
		c.addressesSynced,
		c.passes,
		c.pushEvents,
		c.passDuration,
		collectors.NewGoCollector(),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordStored counts a ledger write, stored or deduplicated
func (c *Collector) RecordStored(asset string, stored bool) {
	if c == nil {
		return
	}
	if stored {
		c.txStored.WithLabelValues(asset).Inc()
		return
	}
	c.txDuplicate.WithLabelValues(asset).Inc()
}

// RecordAddress counts an address visit
func (c *Collector) RecordAddress(asset string, active bool) {
	if c == nil {
		return
	}
	label := "false"
	if active {
		label = "true"
	}
	c.addressesSynced.WithLabelValues(asset, label).Inc()
}

// RecordPass counts a finished pass and its duration
func (c *Collector) RecordPass(asset, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.passes.WithLabelValues(asset, outcome).Inc()
	c.passDuration.WithLabelValues(asset).Observe(seconds)
}

// RecordPushEvent counts a pushed event
func (c *Collector) RecordPushEvent(outcome string) {
	if c == nil {
		return
	}
	c.pushEvents.WithLabelValues(outcome).Inc()
}
