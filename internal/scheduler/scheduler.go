package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/velowatch/velowatch/internal/bikes"
	"github.com/velowatch/velowatch/internal/metrics"
	"github.com/velowatch/velowatch/internal/syncer"
)

// reduceCron fires at midnight on the first day of each month.
const reduceCron = "0 0 1 * *"

// Scheduler drives the three periodic tasks: snapshot ingestion, the
// monthly aggregate-then-prune cycle, and the sync queue drain. Every job
// runs in singleton mode, so an invocation overlapping a still-running
// prior one blocks instead of racing it.
type Scheduler struct {
	scheduler *gocron.Scheduler

	service *bikes.Service
	fetcher bikes.Fetcher
	sync    *syncer.Client
	queue   *syncer.Queue

	fetchInterval time.Duration
	syncInterval  time.Duration
}

// New creates a Scheduler. sync and queue may be nil when external sync
// is disabled.
func New(service *bikes.Service, fetcher bikes.Fetcher, sync *syncer.Client, queue *syncer.Queue, fetchInterval, syncInterval time.Duration) *Scheduler {
	return &Scheduler{
		scheduler:     gocron.NewScheduler(time.UTC),
		service:       service,
		fetcher:       fetcher,
		sync:          sync,
		queue:         queue,
		fetchInterval: fetchInterval,
		syncInterval:  syncInterval,
	}
}

// Start registers the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	fetchMinutes := int(s.fetchInterval.Minutes())
	if fetchMinutes <= 0 {
		fetchMinutes = 10
	}

	if _, err := s.scheduler.Every(fetchMinutes).Minutes().SingletonMode().Do(s.runIngest); err != nil {
		return err
	}
	if _, err := s.scheduler.Cron(reduceCron).SingletonMode().Do(s.runReduce); err != nil {
		return err
	}

	if s.sync != nil && s.queue != nil {
		syncMinutes := int(s.syncInterval.Minutes())
		if syncMinutes <= 0 {
			syncMinutes = 10
		}
		if _, err := s.scheduler.Every(syncMinutes).Minutes().SingletonMode().Do(s.runSync); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runIngest() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rows, err := s.fetcher.FetchRawRows(ctx)
	if err != nil {
		log.Printf("scheduler: fetch failed: %v", err)
		return
	}

	report, err := s.service.IngestCycle(ctx, rows)
	if err != nil {
		log.Printf("scheduler: ingest cycle aborted: %v", err)
	}

	metrics.SnapshotsIngested.Add(float64(report.Accepted))
	metrics.RowsRejected.Add(float64(report.Rejected))
	metrics.RowsFailed.Add(float64(report.Failed))
	metrics.LocationsCreated.Add(float64(report.LocationsCreated))

	log.Printf("scheduler: ingest cycle done: %d accepted, %d rejected, %d failed, %d locations created",
		report.Accepted, report.Rejected, report.Failed, report.LocationsCreated)
}

func (s *Scheduler) runReduce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Pruning only happens after aggregation has committed; a failed
	// aggregation leaves the raw data untouched until the next run.
	report, err := s.service.ReduceCycle(ctx, time.Now())
	if err != nil {
		log.Printf("scheduler: reduce cycle failed: %v", err)
	}
	metrics.StatsEmitted.Add(float64(report.StatsEmitted))
	metrics.SnapshotsPruned.Add(float64(report.Prune.Deleted))
	metrics.PruneSkips.Add(float64(len(report.Prune.SkippedMonths)))
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report := s.sync.Drain(ctx, s.queue)
	metrics.SyncPushed.Add(float64(report.Pushed))
	metrics.SyncRetried.Add(float64(report.Retried))
	metrics.SyncDropped.Add(float64(report.Dropped))

	log.Printf("scheduler: sync drain done: %d pushed, %d retried, %d dropped",
		report.Pushed, report.Retried, report.Dropped)
}
