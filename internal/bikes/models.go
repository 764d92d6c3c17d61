package bikes

import (
	"time"

	"github.com/google/uuid"
)

// Location is a bike station known to the system, identified by its name.
type Location struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	Coordinates string `json:"coordinates"`
}

// Snapshot is one timestamped reading of a station's availability.
// Snapshots are immutable after creation and are removed only by the
// retention pruner once their month has been aggregated.
type Snapshot struct {
	ID         uuid.UUID `json:"id"`
	LocationID int64     `json:"location_id"`
	AvailBikes int       `json:"available_bikes"`
	FreeStands int       `json:"free_stands"`
	Timestamp  time.Time `json:"timestamp"`
	Weekend    bool      `json:"is_weekend"`
}

// Stat is a monthly per-bucket summary of snapshots. Exactly one Stat
// exists per (location, time bucket, weekend class, month) tuple.
type Stat struct {
	LocationID     int64     `json:"location_id"`
	TimeBucket     string    `json:"time_bucket"` // "HH:MM" label
	Weekend        bool      `json:"is_weekend"`
	Month          time.Time `json:"month"` // first day of the reporting month
	SampleCount    int       `json:"sample_count"`
	AvailBikesMean float64   `json:"available_bikes_mean"`
	AvailBikesSD   float64   `json:"available_bikes_stddev"`
	FreeStandsMean float64   `json:"free_stands_mean"`
	FreeStandsSD   float64   `json:"free_stands_stddev"`
}

// RawRow is one row extracted from the station-map table. Numeric fields
// are kept as text; the ingestor parses and validates them so that a
// malformed cell rejects the row instead of failing the fetch.
type RawRow struct {
	LocationName string
	AvailBikes   string
	FreeStands   string
	TotalStands  string
	Coordinates  string
}

// IngestReport summarizes one ingest cycle.
type IngestReport struct {
	Accepted         int `json:"accepted"`
	Rejected         int `json:"rejected"`
	Failed           int `json:"failed"` // store errors; row skipped, retried next cycle
	LocationsCreated int `json:"locations_created"`
}

// ReduceReport summarizes one monthly aggregate-then-prune cycle.
type ReduceReport struct {
	StatsEmitted int         `json:"stats_emitted"`
	Prune        PruneReport `json:"prune"`
}

// PruneReport summarizes one prune run. SkippedMonths lists months whose
// snapshots fell below the cutoff but were kept because no completed
// aggregation exists for them.
type PruneReport struct {
	Deleted       int         `json:"deleted"`
	SkippedMonths []time.Time `json:"skipped_months,omitempty"`
}
