package bikes

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the contract the raw/summary store must satisfy. Both the
// in-memory store and the Postgres store implement it.
type Repository interface {
	// GetOrCreateLocation resolves a location by name, creating it if
	// unseen. The upsert must be atomic: concurrent calls for the same
	// unseen name yield exactly one location, created reported true for
	// exactly one caller. Capacity and coordinates follow last-write-wins.
	GetOrCreateLocation(ctx context.Context, name string, capacity int, coordinates string) (Location, bool, error)

	// AppendSnapshot stores a new raw snapshot.
	AppendSnapshot(ctx context.Context, snap Snapshot) error

	// QuerySnapshots returns snapshots with from <= Timestamp < to,
	// ordered by timestamp. A zero from means no lower bound.
	QuerySnapshots(ctx context.Context, from, to time.Time) ([]Snapshot, error)

	// DeleteSnapshots removes the given snapshots and reports how many
	// existed. Re-deleting already-deleted ids is a no-op.
	DeleteSnapshots(ctx context.Context, ids []uuid.UUID) (int, error)

	// ReplacePeriodStats atomically replaces all stats for the given
	// month and marks the period closed. Re-running for a closed month
	// replaces the prior stats; it never produces duplicate tuples.
	ReplacePeriodStats(ctx context.Context, month time.Time, stats []Stat) error

	// StatsForMonth returns the stats recorded for a reporting month.
	StatsForMonth(ctx context.Context, month time.Time) ([]Stat, error)

	// IsPeriodClosed reports whether the month has a durable aggregation.
	IsPeriodClosed(ctx context.Context, month time.Time) (bool, error)

	// ClosedPeriods lists all months with a durable aggregation.
	ClosedPeriods(ctx context.Context) ([]time.Time, error)

	// Locations lists all known locations.
	Locations(ctx context.Context) ([]Location, error)
}

// Fetcher produces one cycle's worth of raw rows from the source site.
// The scrape package provides the real implementation.
type Fetcher interface {
	FetchRawRows(ctx context.Context) ([]RawRow, error)
}

// SyncQueue receives newly created entities destined for the external
// system of record. The syncer package provides the real implementation.
type SyncQueue interface {
	EnqueueLocation(loc Location)
	EnqueueSnapshot(snap Snapshot)
	EnqueueStat(stat Stat)
}
