package bikes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is a minimal Repository for ingest tests. Only the methods the
// ingestor touches are functional.
type fakeRepo struct {
	nextID    int64
	locations map[string]Location
	snapshots []Snapshot

	failLocations map[string]bool // names whose resolution fails
	failAppend    bool

	closedChecks int
	replaceCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{locations: make(map[string]Location)}
}

func (r *fakeRepo) GetOrCreateLocation(_ context.Context, name string, capacity int, coordinates string) (Location, bool, error) {
	if r.failLocations[name] {
		return Location{}, false, ErrStoreUnavailable
	}
	if loc, ok := r.locations[name]; ok {
		loc.Capacity = capacity
		loc.Coordinates = coordinates
		r.locations[name] = loc
		return loc, false, nil
	}
	r.nextID++
	loc := Location{ID: r.nextID, Name: name, Capacity: capacity, Coordinates: coordinates}
	r.locations[name] = loc
	return loc, true, nil
}

func (r *fakeRepo) AppendSnapshot(_ context.Context, snap Snapshot) error {
	if r.failAppend {
		return ErrStoreUnavailable
	}
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func (r *fakeRepo) QuerySnapshots(context.Context, time.Time, time.Time) ([]Snapshot, error) {
	return nil, nil
}
func (r *fakeRepo) DeleteSnapshots(context.Context, []uuid.UUID) (int, error) { return 0, nil }
func (r *fakeRepo) ReplacePeriodStats(context.Context, time.Time, []Stat) error {
	r.replaceCalls++
	return nil
}
func (r *fakeRepo) StatsForMonth(context.Context, time.Time) ([]Stat, error) { return nil, nil }
func (r *fakeRepo) IsPeriodClosed(context.Context, time.Time) (bool, error) {
	r.closedChecks++
	return false, nil
}
func (r *fakeRepo) ClosedPeriods(context.Context) ([]time.Time, error)       { return nil, nil }
func (r *fakeRepo) Locations(context.Context) ([]Location, error)            { return nil, nil }

// recordingQueue captures enqueued entities for assertions.
type recordingQueue struct {
	locations []Location
	snapshots []Snapshot
	stats     []Stat
}

func (q *recordingQueue) EnqueueLocation(loc Location) { q.locations = append(q.locations, loc) }
func (q *recordingQueue) EnqueueSnapshot(s Snapshot)   { q.snapshots = append(q.snapshots, s) }
func (q *recordingQueue) EnqueueStat(s Stat)           { q.stats = append(q.stats, s) }

func newTestService(repo Repository, queue SyncQueue) *Service {
	warsaw, _ := time.LoadLocation("Europe/Warsaw")
	return NewService(repo, queue, ServiceConfig{
		Timezone:      warsaw,
		Resolution:    10 * time.Minute,
		RetentionDays: 10,
	})
}

func TestIngestCycleSharedCaptureInstant(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	// A Saturday afternoon in Warsaw.
	captured := time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return captured }

	rows := []RawRow{
		{LocationName: "Central", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "52.23,21.01"},
		{LocationName: "Old Town", AvailBikes: "3", FreeStands: "12", TotalStands: "15", Coordinates: "52.25,21.01"},
	}

	report, err := svc.IngestCycle(context.Background(), rows)
	if err != nil {
		t.Fatalf("IngestCycle: %v", err)
	}
	if report.Accepted != 2 || report.Rejected != 0 || report.LocationsCreated != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if len(repo.snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(repo.snapshots))
	}
	for _, snap := range repo.snapshots {
		if !snap.Timestamp.Equal(captured) {
			t.Errorf("snapshot timestamp %v differs from capture instant %v", snap.Timestamp, captured)
		}
		if !snap.Weekend {
			t.Error("saturday snapshot should be marked weekend")
		}
	}
}

func TestIngestCycleRejectsMalformedRows(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	rows := []RawRow{
		{LocationName: "Central", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
		{LocationName: "Bad Bikes", AvailBikes: "-1", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
		{LocationName: "Not A Number", AvailBikes: "five", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
		{LocationName: "", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
	}

	report, err := svc.IngestCycle(context.Background(), rows)
	if err != nil {
		t.Fatalf("IngestCycle: %v", err)
	}
	if report.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", report.Accepted)
	}
	if report.Rejected != 3 {
		t.Errorf("rejected = %d, want 3", report.Rejected)
	}
	if len(repo.snapshots) != 1 {
		t.Errorf("expected 1 stored snapshot, got %d", len(repo.snapshots))
	}
}

func TestIngestCycleCollapsesDuplicateNames(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	rows := []RawRow{
		{LocationName: "Central", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
		{LocationName: "Central", AvailBikes: "7", FreeStands: "8", TotalStands: "15", Coordinates: "x"},
	}

	report, err := svc.IngestCycle(context.Background(), rows)
	if err != nil {
		t.Fatalf("IngestCycle: %v", err)
	}
	if report.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1 (duplicates collapse)", report.Accepted)
	}
	if len(repo.snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(repo.snapshots))
	}
	// Last occurrence wins.
	if repo.snapshots[0].AvailBikes != 7 {
		t.Errorf("avail bikes = %d, want 7 (last occurrence)", repo.snapshots[0].AvailBikes)
	}
}

func TestIngestCycleSkipsRowsOnStoreError(t *testing.T) {
	repo := newFakeRepo()
	repo.failLocations = map[string]bool{"Broken": true}
	svc := newTestService(repo, nil)

	rows := []RawRow{
		{LocationName: "Broken", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
		{LocationName: "Central", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
	}

	report, err := svc.IngestCycle(context.Background(), rows)
	if err != nil {
		t.Fatalf("IngestCycle: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Failed)
	}
	if report.Accepted != 1 {
		t.Errorf("accepted = %d, want 1; a store error must not abort the cycle", report.Accepted)
	}
}

func TestIngestCycleQueuesNewEntities(t *testing.T) {
	repo := newFakeRepo()
	queue := &recordingQueue{}
	svc := newTestService(repo, queue)

	rows := []RawRow{
		{LocationName: "Central", AvailBikes: "5", FreeStands: "10", TotalStands: "15", Coordinates: "x"},
	}

	if _, err := svc.IngestCycle(context.Background(), rows); err != nil {
		t.Fatalf("IngestCycle: %v", err)
	}
	if len(queue.locations) != 1 || len(queue.snapshots) != 1 {
		t.Fatalf("queued %d locations and %d snapshots, want 1 each", len(queue.locations), len(queue.snapshots))
	}

	// A second cycle re-sights the location: only the snapshot is queued.
	if _, err := svc.IngestCycle(context.Background(), rows); err != nil {
		t.Fatalf("IngestCycle: %v", err)
	}
	if len(queue.locations) != 1 {
		t.Errorf("re-sighted location queued again: %d entries", len(queue.locations))
	}
	if len(queue.snapshots) != 2 {
		t.Errorf("queued snapshots = %d, want 2", len(queue.snapshots))
	}
}

// Closing a period is a single repository interaction: the replace call
// carries the close, with no separate closed-state lookup beforehand.
func TestAggregatePeriodClosesInOneStoreCall(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	warsaw, _ := time.LoadLocation("Europe/Warsaw")
	periodStart := time.Date(2025, 3, 1, 0, 0, 0, 0, warsaw)
	periodEnd := time.Date(2025, 4, 1, 0, 0, 0, 0, warsaw)
	if _, err := svc.AggregatePeriod(context.Background(), periodStart, periodEnd); err != nil {
		t.Fatalf("AggregatePeriod: %v", err)
	}

	if repo.replaceCalls != 1 {
		t.Errorf("ReplacePeriodStats calls = %d, want 1", repo.replaceCalls)
	}
	if repo.closedChecks != 0 {
		t.Errorf("closed-state lookups during aggregation = %d, want 0", repo.closedChecks)
	}
}

func TestParseRowValidationErrors(t *testing.T) {
	_, err := parseRow("", RawRow{AvailBikes: "1", FreeStands: "1", TotalStands: "1"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("blank name error = %v, want ErrValidation", err)
	}
	_, err = parseRow("X", RawRow{AvailBikes: "1", FreeStands: "-2", TotalStands: "1"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("negative count error = %v, want ErrValidation", err)
	}
}
