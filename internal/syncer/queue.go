package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velowatch/velowatch/internal/bikes"
)

// Kind names the entity type behind a queue entry; it selects the target
// endpoint path.
type Kind string

const (
	KindLocation Kind = "locations"
	KindSnapshot Kind = "snapshots"
	KindStat     Kind = "stats"
)

// Entry is one entity queued for push to the external system of record.
type Entry struct {
	Kind    Kind
	Payload any
}

// locationDoc, snapshotDoc, and statDoc are the wire documents of the
// external sync boundary.
type locationDoc struct {
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	Coordinates string `json:"coordinates"`
}

type snapshotDoc struct {
	ID         uuid.UUID `json:"id"`
	LocationID int64     `json:"location_id"`
	AvailBikes int       `json:"available_bikes"`
	FreeStands int       `json:"free_stands"`
	Timestamp  time.Time `json:"timestamp"`
	Weekend    bool      `json:"is_weekend"`
}

type statDoc struct {
	LocationID     int64   `json:"location_id"`
	TimeBucket     string  `json:"time_bucket"`
	Weekend        bool    `json:"is_weekend"`
	Month          string  `json:"month"` // YYYY-MM-DD, first day of month
	SampleCount    int     `json:"sample_count"`
	AvailBikesMean float64 `json:"available_bikes_mean"`
	AvailBikesSD   float64 `json:"available_bikes_stddev"`
	FreeStandsMean float64 `json:"free_stands_mean"`
	FreeStandsSD   float64 `json:"free_stands_stddev"`
}

// Queue is a concurrency-safe outbox of entities awaiting push. It
// implements bikes.SyncQueue.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// EnqueueLocation queues a newly created location.
func (q *Queue) EnqueueLocation(loc bikes.Location) {
	q.push(Entry{Kind: KindLocation, Payload: locationDoc{
		Name:        loc.Name,
		Capacity:    loc.Capacity,
		Coordinates: loc.Coordinates,
	}})
}

// EnqueueSnapshot queues a newly created snapshot.
func (q *Queue) EnqueueSnapshot(snap bikes.Snapshot) {
	q.push(Entry{Kind: KindSnapshot, Payload: snapshotDoc{
		ID:         snap.ID,
		LocationID: snap.LocationID,
		AvailBikes: snap.AvailBikes,
		FreeStands: snap.FreeStands,
		Timestamp:  snap.Timestamp,
		Weekend:    snap.Weekend,
	}})
}

// EnqueueStat queues a newly produced stat.
func (q *Queue) EnqueueStat(stat bikes.Stat) {
	q.push(Entry{Kind: KindStat, Payload: statDoc{
		LocationID:     stat.LocationID,
		TimeBucket:     stat.TimeBucket,
		Weekend:        stat.Weekend,
		Month:          stat.Month.Format("2006-01-02"),
		SampleCount:    stat.SampleCount,
		AvailBikesMean: stat.AvailBikesMean,
		AvailBikesSD:   stat.AvailBikesSD,
		FreeStandsMean: stat.FreeStandsMean,
		FreeStandsSD:   stat.FreeStandsSD,
	}})
}

func (q *Queue) push(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// TakeAll removes and returns everything currently queued.
func (q *Queue) TakeAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

// Requeue puts entries back for the next drain.
func (q *Queue) Requeue(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entries...)
}

// Len reports how many entries are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
