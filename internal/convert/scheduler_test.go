package convert

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"morpho/internal/config"
	"morpho/internal/db"
	"morpho/internal/store"
)

// fakeJobStore records UpdateJob calls and replays scripted errors.
type fakeJobStore struct {
	mu      sync.Mutex
	calls   []store.UpdateJobParams
	errs    []error
	updated chan struct{}
}

func newFakeJobStore(expectedCalls int, errs ...error) *fakeJobStore {
	return &fakeJobStore{
		errs:    errs,
		updated: make(chan struct{}, expectedCalls),
	}
}

func (f *fakeJobStore) UpdateJob(ctx context.Context, id uuid.UUID, params store.UpdateJobParams) (db.ConversionJob, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()

	f.updated <- struct{}{}
	if err != nil {
		return db.ConversionJob{}, err
	}
	return db.ConversionJob{ID: id}, nil
}

func (f *fakeJobStore) waitForCalls(t *testing.T, n int) []store.UpdateJobParams {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-f.updated:
		case <-deadline:
			t.Fatalf("timed out waiting for update %d of %d", i+1, n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.UpdateJobParams, len(f.calls))
	copy(out, f.calls)
	return out
}

func testJob(quality string) db.ConversionJob {
	j := db.ConversionJob{
		ID:           uuid.New(),
		SourceFormat: "docx",
		TargetFormat: "pdf",
		Status:       "pending",
	}
	if quality != "" {
		j.Metadata = pqtype.NullRawMessage{
			RawMessage: []byte(`{"quality":"` + quality + `"}`),
			Valid:      true,
		}
	}
	return j
}

func TestSchedulerCompletesJob(t *testing.T) {
	fake := newFakeJobStore(2)
	sched := NewScheduler(context.Background(), &config.Config{}, fake, nil)

	job := testJob("high")
	sched.Submit(job, 0)

	calls := fake.waitForCalls(t, 2)

	if calls[0].Status == nil || *calls[0].Status != "processing" {
		t.Fatalf("first transition should be processing, got %+v", calls[0])
	}
	final := calls[1]
	if final.Status == nil || *final.Status != "completed" {
		t.Fatalf("final transition should be completed, got %+v", final)
	}
	if final.DownloadURL == nil || *final.DownloadURL != DownloadPath(job.ID) {
		t.Fatalf("download url not derived from job id: %+v", final)
	}
	if final.CompletedAt == nil {
		t.Fatalf("completed transition missing timestamp")
	}
	if final.CompletedAt.Location() != time.UTC {
		t.Fatalf("completion timestamp not UTC")
	}
}

func TestSchedulerDeletedJobIsNoOp(t *testing.T) {
	fake := newFakeJobStore(1, sql.ErrNoRows)
	sched := NewScheduler(context.Background(), &config.Config{}, fake, nil)

	sched.Submit(testJob(""), 0)

	calls := fake.waitForCalls(t, 1)
	if len(calls) != 1 {
		t.Fatalf("expected a single attempted update, got %d", len(calls))
	}

	// No failed-state write must follow the miss.
	select {
	case <-fake.updated:
		t.Fatalf("unexpected update after sql.ErrNoRows")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedulerStoreErrorFailsJob(t *testing.T) {
	fake := newFakeJobStore(2, errors.New("disk on fire"))
	sched := NewScheduler(context.Background(), &config.Config{}, fake, nil)

	sched.Submit(testJob("medium"), 0)

	calls := fake.waitForCalls(t, 2)
	final := calls[1]
	if final.Status == nil || *final.Status != "failed" {
		t.Fatalf("expected failed transition, got %+v", final)
	}
	if final.CompletedAt == nil {
		t.Fatalf("failed transition should carry a completion timestamp")
	}
	if final.DownloadURL != nil {
		t.Fatalf("failed job must not get a download url")
	}
}

func TestSchedulerCancelledContextSkipsTransition(t *testing.T) {
	fake := newFakeJobStore(1)
	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(ctx, &config.Config{}, fake, nil)
	cancel()

	sched.Submit(testJob(""), 10*time.Millisecond)

	select {
	case <-fake.updated:
		t.Fatalf("transition fired after context cancellation")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDelay(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.ConversionConfig
		quality string
		index   int
		want    time.Duration
	}{
		{"high default", config.ConversionConfig{}, "high", 0, 3000 * time.Millisecond},
		{"medium default", config.ConversionConfig{}, "medium", 0, 2000 * time.Millisecond},
		{"low default", config.ConversionConfig{}, "low", 0, 1000 * time.Millisecond},
		{"unknown quality falls back to low", config.ConversionConfig{}, "ultra", 0, 1000 * time.Millisecond},
		{"empty quality falls back to low", config.ConversionConfig{}, "", 0, 1000 * time.Millisecond},
		{"batch stagger", config.ConversionConfig{}, "low", 3, 1300 * time.Millisecond},
		{"configured base", config.ConversionConfig{HighDelayMs: 50}, "high", 0, 50 * time.Millisecond},
		{"configured stagger", config.ConversionConfig{BatchStaggerMs: 10}, "low", 2, 1020 * time.Millisecond},
		{"negative index clamped", config.ConversionConfig{}, "low", -5, 1000 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Delay(tc.cfg, tc.quality, tc.index); got != tc.want {
				t.Fatalf("Delay(%q, %d) = %v, want %v", tc.quality, tc.index, got, tc.want)
			}
		})
	}
}

func TestQualityFromMetadata(t *testing.T) {
	if q := qualityFromMetadata(nil); q != "" {
		t.Fatalf("expected empty quality for nil metadata, got %q", q)
	}
	if q := qualityFromMetadata([]byte(`not json`)); q != "" {
		t.Fatalf("expected empty quality for bad metadata, got %q", q)
	}
	if q := qualityFromMetadata([]byte(`{"quality":"medium","batchId":"x"}`)); q != "medium" {
		t.Fatalf("expected medium, got %q", q)
	}
}
