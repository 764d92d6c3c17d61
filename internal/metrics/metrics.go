// Package metrics exposes pipeline counters on a side HTTP listener.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "velowatch_"

var (
	SnapshotsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "snapshots_ingested_total",
		Help: "Snapshots accepted and appended to the raw store",
	})
	RowsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "rows_rejected_total",
		Help: "Scraped rows rejected by validation",
	})
	RowsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "rows_failed_total",
		Help: "Rows skipped because of store errors",
	})
	LocationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "locations_created_total",
		Help: "Locations created on first sighting",
	})
	StatsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "stats_emitted_total",
		Help: "Stats produced by monthly aggregation",
	})
	SnapshotsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "snapshots_pruned_total",
		Help: "Raw snapshots deleted by retention",
	})
	PruneSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "prune_skipped_months_total",
		Help: "Months the pruner refused to delete for lack of a closed aggregation",
	})
	SyncPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "sync_pushed_total",
		Help: "Entities acknowledged by the external system",
	})
	SyncRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "sync_retried_total",
		Help: "Entities requeued after a transient sync failure",
	})
	SyncDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "sync_dropped_total",
		Help: "Entities dropped after a permanent sync failure",
	})
)

// Serve starts the metrics listener and returns a shutdown func.
func Serve(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	return srv.Shutdown
}
