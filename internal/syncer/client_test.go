package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/velowatch/velowatch/internal/bikes"
)

func testClient(baseURL string) *Client {
	c := NewClient(&http.Client{Timeout: 5 * time.Second}, baseURL)
	// No retries in tests; retry behaviour belongs to the httpx package.
	c.httpCfg.Backoff.MaxRetries = 0
	return c
}

func TestDrainOutcomesPerEntity(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		switch r.URL.Path {
		case "/locations/":
			w.WriteHeader(http.StatusCreated)
		case "/snapshots/":
			w.WriteHeader(http.StatusBadRequest)
		case "/stats/":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	q := NewQueue()
	q.EnqueueLocation(bikes.Location{ID: 1, Name: "Central", Capacity: 15})
	q.EnqueueSnapshot(bikes.Snapshot{LocationID: 1, AvailBikes: 5, FreeStands: 10, Timestamp: time.Now()})
	q.EnqueueStat(bikes.Stat{LocationID: 1, TimeBucket: "08:00", SampleCount: 2, Month: time.Now()})

	report := testClient(srv.URL).Drain(context.Background(), q)

	if report.Pushed != 1 {
		t.Errorf("pushed = %d, want 1", report.Pushed)
	}
	if report.Dropped != 1 {
		t.Errorf("dropped = %d, want 1 (4xx is permanent)", report.Dropped)
	}
	if report.Retried != 1 {
		t.Errorf("retried = %d, want 1 (5xx is transient)", report.Retried)
	}

	// One failing entity never blocks the others.
	if atomic.LoadInt64(&hits) != 3 {
		t.Errorf("server saw %d pushes, want 3", hits)
	}

	// Only the transient failure stays queued.
	if q.Len() != 1 {
		t.Errorf("queue holds %d entries after drain, want 1", q.Len())
	}
}

func TestDrainRequeuedEntrySucceedsLater(t *testing.T) {
	var fail int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	q := NewQueue()
	q.EnqueueLocation(bikes.Location{Name: "Central"})

	report := client.Drain(context.Background(), q)
	if report.Retried != 1 || q.Len() != 1 {
		t.Fatalf("transient failure not requeued: %+v, queue len %d", report, q.Len())
	}

	atomic.StoreInt32(&fail, 0)
	report = client.Drain(context.Background(), q)
	if report.Pushed != 1 || q.Len() != 0 {
		t.Errorf("requeued entry not delivered: %+v, queue len %d", report, q.Len())
	}
}

func TestQueueTakeAllAndRequeue(t *testing.T) {
	q := NewQueue()
	q.EnqueueLocation(bikes.Location{Name: "A"})
	q.EnqueueLocation(bikes.Location{Name: "B"})

	entries := q.TakeAll()
	if len(entries) != 2 || q.Len() != 0 {
		t.Fatalf("TakeAll returned %d entries, queue len %d", len(entries), q.Len())
	}

	q.Requeue(entries[:1])
	if q.Len() != 1 {
		t.Errorf("queue len after requeue = %d, want 1", q.Len())
	}
}
