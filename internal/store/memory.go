package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velowatch/velowatch/internal/bikes"
)

// MemoryStore is a concurrency-safe in-memory implementation of the
// bikes.Repository contract. It backs tests and keyless development runs;
// production uses the Postgres store.
type MemoryStore struct {
	mu sync.RWMutex

	nextLocationID int64
	locations      map[string]bikes.Location // key: location name
	snapshots      map[uuid.UUID]bikes.Snapshot
	stats          map[time.Time][]bikes.Stat // key: month start
	closed         map[time.Time]time.Time    // month start -> closed at
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations: make(map[string]bikes.Location),
		snapshots: make(map[uuid.UUID]bikes.Snapshot),
		stats:     make(map[time.Time][]bikes.Stat),
		closed:    make(map[time.Time]time.Time),
	}
}

// GetOrCreateLocation resolves or creates a location under a single lock,
// so concurrent calls for the same unseen name create it exactly once.
// Capacity and coordinates are refreshed on every call (last-write-wins).
func (s *MemoryStore) GetOrCreateLocation(_ context.Context, name string, capacity int, coordinates string) (bikes.Location, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loc, ok := s.locations[name]; ok {
		loc.Capacity = capacity
		loc.Coordinates = coordinates
		s.locations[name] = loc
		return loc, false, nil
	}

	s.nextLocationID++
	loc := bikes.Location{
		ID:          s.nextLocationID,
		Name:        name,
		Capacity:    capacity,
		Coordinates: coordinates,
	}
	s.locations[name] = loc
	return loc, true, nil
}

// AppendSnapshot stores a new snapshot.
func (s *MemoryStore) AppendSnapshot(_ context.Context, snap bikes.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = snap
	return nil
}

// QuerySnapshots returns snapshots with from <= Timestamp < to, ordered
// by timestamp. A zero from means no lower bound.
func (s *MemoryStore) QuerySnapshots(_ context.Context, from, to time.Time) ([]bikes.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []bikes.Snapshot
	for _, snap := range s.snapshots {
		if !from.IsZero() && snap.Timestamp.Before(from) {
			continue
		}
		if !snap.Timestamp.Before(to) {
			continue
		}
		result = append(result, snap)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// DeleteSnapshots removes the given snapshots; missing ids are ignored.
func (s *MemoryStore) DeleteSnapshots(_ context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := s.snapshots[id]; ok {
			delete(s.snapshots, id)
			deleted++
		}
	}
	return deleted, nil
}

// ReplacePeriodStats swaps the month's stats and marks it closed under a
// single lock, giving the all-or-nothing guarantee aggregation needs.
func (s *MemoryStore) ReplacePeriodStats(_ context.Context, month time.Time, stats []bikes.Stat) error {
	key := monthKey(month)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats[key] = append([]bikes.Stat(nil), stats...)
	s.closed[key] = time.Now()
	return nil
}

// StatsForMonth returns the stats recorded for a month.
func (s *MemoryStore) StatsForMonth(_ context.Context, month time.Time) ([]bikes.Stat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bikes.Stat(nil), s.stats[monthKey(month)]...), nil
}

// IsPeriodClosed reports whether the month has a durable aggregation.
func (s *MemoryStore) IsPeriodClosed(_ context.Context, month time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.closed[monthKey(month)]
	return ok, nil
}

// ClosedPeriods lists all closed months.
func (s *MemoryStore) ClosedPeriods(_ context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	months := make([]time.Time, 0, len(s.closed))
	for m := range s.closed {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months, nil
}

// Locations lists all known locations ordered by id.
func (s *MemoryStore) Locations(_ context.Context) ([]bikes.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locs := make([]bikes.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].ID < locs[j].ID })
	return locs, nil
}

// monthKey normalizes a month to UTC midnight on its first day so map
// lookups are insensitive to the caller's timezone representation.
func monthKey(month time.Time) time.Time {
	return time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
}
