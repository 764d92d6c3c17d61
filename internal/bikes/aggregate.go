package bikes

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// bucketKey identifies one aggregation cell within a reporting month.
type bucketKey struct {
	locationID int64
	label      string
	weekend    bool
}

// AggregatePeriod collapses all snapshots with periodStart <= Timestamp <
// periodEnd into one Stat per non-empty (location, time bucket, weekend)
// cell, stamped with the month of periodStart. The stats replace any
// previous aggregation of the same month atomically, so re-running for an
// already-closed month yields identical stats rather than duplicates.
func (s *Service) AggregatePeriod(ctx context.Context, periodStart, periodEnd time.Time) ([]Stat, error) {
	snaps, err := s.repo.QuerySnapshots(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("aggregate: query snapshots: %w", err)
	}

	month := MonthStart(periodStart.In(s.tz))

	type cell struct {
		bikes  []float64
		stands []float64
	}
	cells := make(map[bucketKey]*cell)

	for _, snap := range snaps {
		key := bucketKey{
			locationID: snap.LocationID,
			label:      BucketLabel(snap.Timestamp.In(s.tz), s.resolution),
			weekend:    snap.Weekend,
		}
		c, ok := cells[key]
		if !ok {
			c = &cell{}
			cells[key] = c
		}
		c.bikes = append(c.bikes, float64(snap.AvailBikes))
		c.stands = append(c.stands, float64(snap.FreeStands))
	}

	stats := make([]Stat, 0, len(cells))
	for key, c := range cells {
		bikesMean, bikesSD := meanStddev(c.bikes)
		standsMean, standsSD := meanStddev(c.stands)
		stats = append(stats, Stat{
			LocationID:     key.locationID,
			TimeBucket:     key.label,
			Weekend:        key.weekend,
			Month:          month,
			SampleCount:    len(c.bikes),
			AvailBikesMean: bikesMean,
			AvailBikesSD:   bikesSD,
			FreeStandsMean: standsMean,
			FreeStandsSD:   standsSD,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.LocationID != b.LocationID {
			return a.LocationID < b.LocationID
		}
		if a.TimeBucket != b.TimeBucket {
			return a.TimeBucket < b.TimeBucket
		}
		return !a.Weekend && b.Weekend
	})

	if err := s.repo.ReplacePeriodStats(ctx, month, stats); err != nil {
		return nil, fmt.Errorf("aggregate: persist stats: %w", err)
	}

	if s.queue != nil {
		for _, st := range stats {
			s.queue.EnqueueStat(st)
		}
	}

	log.Printf("aggregate: month %s closed with %d stats from %d snapshots",
		month.Format("2006-01"), len(stats), len(snaps))
	return stats, nil
}

// PruneBefore deletes snapshots older than cutoff, but only those whose
// reporting month is closed. Months below the cutoff without a durable
// aggregation are skipped and reported, never deleted.
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (PruneReport, error) {
	var report PruneReport

	closedList, err := s.repo.ClosedPeriods(ctx)
	if err != nil {
		return report, fmt.Errorf("prune: closed-period lookup: %w", err)
	}
	closed := make(map[time.Time]bool, len(closedList))
	for _, m := range closedList {
		// Stores return months as calendar labels, not instants in the
		// reporting timezone. Key by the label's own date fields; converting
		// the instant first would shift the month west of UTC.
		closed[time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, s.tz)] = true
	}

	candidates, err := s.repo.QuerySnapshots(ctx, time.Time{}, cutoff)
	if err != nil {
		return report, fmt.Errorf("prune: query snapshots: %w", err)
	}

	byMonth := make(map[time.Time][]Snapshot)
	for _, snap := range candidates {
		m := MonthStart(snap.Timestamp.In(s.tz))
		byMonth[m] = append(byMonth[m], snap)
	}

	for month, snaps := range byMonth {
		if !closed[month] {
			report.SkippedMonths = append(report.SkippedMonths, month)
			log.Printf("prune: skipped month %s: no completed aggregation (%d snapshots kept)",
				month.Format("2006-01"), len(snaps))
			continue
		}

		ids := make([]uuid.UUID, 0, len(snaps))
		for _, snap := range snaps {
			ids = append(ids, snap.ID)
		}
		n, err := s.repo.DeleteSnapshots(ctx, ids)
		if err != nil {
			return report, fmt.Errorf("prune: delete snapshots for %s: %w", month.Format("2006-01"), err)
		}
		report.Deleted += n
	}

	sort.Slice(report.SkippedMonths, func(i, j int) bool {
		return report.SkippedMonths[i].Before(report.SkippedMonths[j])
	})
	return report, nil
}

// ReduceCycle is the monthly driver: it aggregates the previous full
// calendar month relative to now, then prunes snapshots older than the
// retention age. Pruning runs only after the aggregation has committed.
func (s *Service) ReduceCycle(ctx context.Context, now time.Time) (ReduceReport, error) {
	now = now.In(s.tz)
	first := MonthStart(now)
	prev := first.AddDate(0, -1, 0)

	stats, err := s.AggregatePeriod(ctx, prev, first)
	if err != nil {
		return ReduceReport{}, err
	}

	cutoff := now.AddDate(0, 0, -s.retention)
	prune, err := s.PruneBefore(ctx, cutoff)
	if err != nil {
		return ReduceReport{StatsEmitted: len(stats)}, err
	}
	log.Printf("reduce: pruned %d snapshots before %s (%d months skipped)",
		prune.Deleted, cutoff.Format("2006-01-02"), len(prune.SkippedMonths))
	return ReduceReport{StatsEmitted: len(stats), Prune: prune}, nil
}
