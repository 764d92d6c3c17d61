package bikes

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig carries the tunables of the pipeline.
type ServiceConfig struct {
	// Timezone is the reporting timezone: capture timestamps, weekend
	// classification, and month boundaries all use it.
	Timezone *time.Location

	// Resolution is the time-of-day bucket width used by aggregation.
	Resolution time.Duration

	// RetentionDays is the raw snapshot retention age.
	RetentionDays int
}

// Service orchestrates the ingestion, aggregation, and retention pipeline
// on top of a Repository.
type Service struct {
	repo       Repository
	queue      SyncQueue
	tz         *time.Location
	resolution time.Duration
	retention  int

	now func() time.Time // swapped in tests
}

// NewService creates a new Service. queue may be nil when external sync
// is disabled.
func NewService(repo Repository, queue SyncQueue, cfg ServiceConfig) *Service {
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	res := cfg.Resolution
	if res <= 0 {
		res = 10 * time.Minute
	}
	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = 10
	}

	return &Service{
		repo:       repo,
		queue:      queue,
		tz:         tz,
		resolution: res,
		retention:  retention,
		now:        time.Now,
	}
}

// IngestCycle converts one fetch cycle's rows into snapshots. Malformed
// rows are rejected and counted, not raised; rows hitting a store error
// are skipped and picked up again by the next cycle's fetch. All accepted
// rows share a single capture instant. Duplicate location names within
// one cycle collapse to the last occurrence.
func (s *Service) IngestCycle(ctx context.Context, rows []RawRow) (IngestReport, error) {
	var report IngestReport

	captured := s.now().In(s.tz)
	weekend := IsWeekend(captured)

	// Collapse duplicates, last occurrence wins, first-seen order kept.
	// Blank names are rejected here so they never collapse together.
	order := make([]string, 0, len(rows))
	byName := make(map[string]RawRow, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.LocationName)
		if name == "" {
			report.Rejected++
			log.Printf("ingest: rejected row: blank location name")
			continue
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = row
	}

	for _, name := range order {
		row := byName[name]

		parsed, err := parseRow(name, row)
		if err != nil {
			report.Rejected++
			log.Printf("ingest: rejected row %q: %v", row.LocationName, err)
			continue
		}

		loc, created, err := s.repo.GetOrCreateLocation(ctx, parsed.name, parsed.totalStands, parsed.coordinates)
		if err != nil {
			report.Failed++
			log.Printf("ingest: skipping row %q: %v", parsed.name, err)
			continue
		}
		if created {
			report.LocationsCreated++
			if s.queue != nil {
				s.queue.EnqueueLocation(loc)
			}
		}

		snap := Snapshot{
			ID:         uuid.New(),
			LocationID: loc.ID,
			AvailBikes: parsed.availBikes,
			FreeStands: parsed.freeStands,
			Timestamp:  captured,
			Weekend:    weekend,
		}
		if err := s.repo.AppendSnapshot(ctx, snap); err != nil {
			report.Failed++
			log.Printf("ingest: snapshot append failed for %q: %v", parsed.name, err)
			continue
		}

		report.Accepted++
		if s.queue != nil {
			s.queue.EnqueueSnapshot(snap)
		}
	}

	return report, ctx.Err()
}

type parsedRow struct {
	name        string
	availBikes  int
	freeStands  int
	totalStands int
	coordinates string
}

func parseRow(name string, row RawRow) (parsedRow, error) {
	if name == "" {
		return parsedRow{}, fmt.Errorf("%w: blank location name", ErrValidation)
	}

	bikes, err := parseCount("available bikes", row.AvailBikes)
	if err != nil {
		return parsedRow{}, err
	}
	free, err := parseCount("free stands", row.FreeStands)
	if err != nil {
		return parsedRow{}, err
	}
	total, err := parseCount("total stands", row.TotalStands)
	if err != nil {
		return parsedRow{}, err
	}

	return parsedRow{
		name:        name,
		availBikes:  bikes,
		freeStands:  free,
		totalStands: total,
		coordinates: strings.TrimSpace(row.Coordinates),
	}, nil
}

func parseCount(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not numeric", ErrValidation, field)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrValidation, field)
	}
	return n, nil
}

// Locations delegates to the underlying repository.
func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	return s.repo.Locations(ctx)
}

// Snapshots delegates to the underlying repository.
func (s *Service) Snapshots(ctx context.Context, from, to time.Time) ([]Snapshot, error) {
	return s.repo.QuerySnapshots(ctx, from, to)
}

// StatsForMonth delegates to the underlying repository, normalizing the
// month to its first day in the reporting timezone.
func (s *Service) StatsForMonth(ctx context.Context, month time.Time) ([]Stat, error) {
	return s.repo.StatsForMonth(ctx, MonthStart(month.In(s.tz)))
}
