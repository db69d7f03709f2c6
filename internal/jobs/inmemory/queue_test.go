package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-categorizer/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), id)
	t.Fatalf("job %s never reached %s, last %+v", id, want, job)
	return nil
}

func TestQueue_ProcessesJobs(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.Job) error {
		if job.FileName == "unmapped.csv" {
			job.Status = jobs.JobStatusAwaitingMapping
		}
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}

	done := &jobs.Job{FileName: "bank.csv", ClientID: "c1"}
	paused := &jobs.Job{FileName: "unmapped.csv", ClientID: "c1"}
	for _, j := range []*jobs.Job{done, paused} {
		if err := q.Publish(ctx, j); err != nil {
			t.Fatal(err)
		}
		if j.ID == "" || j.MaxRetries != 3 {
			t.Errorf("Publish did not initialize job: %+v", j)
		}
	}

	got := waitForStatus(t, store, done.ID, jobs.JobStatusCompleted)
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Errorf("Expected timestamps on completed job, got %+v", got)
	}
	got = waitForStatus(t, store, paused.ID, jobs.JobStatusAwaitingMapping)
	if got.CompletedAt != nil {
		t.Error("A job paused for user input should not be completed")
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, &jobs.Job{}); err == nil {
		t.Error("Expected publish on a stopped queue to fail")
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store, zerolog.Nop())
	q.backoff = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	handler := func(ctx context.Context, job *jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("storage unavailable")
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.Job{FileName: "bank.csv", MaxRetries: 2}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatal(err)
	}
	got := waitForStatus(t, store, job.ID, jobs.JobStatusFailed)
	if got.RetryCount != 2 || got.Error != "storage unavailable" {
		t.Errorf("unexpected failed job %+v", got)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("handler called %d times, want 3", n)
	}
	_ = q.Close()
}

func TestStore_ListAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		clientID := "c1"
		if id == "b" {
			clientID = "c2"
		}
		if err := s.SaveJob(ctx, &jobs.Job{ID: id, ClientID: clientID, Status: jobs.JobStatusQueued, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveJob(ctx, &jobs.Job{}); err == nil {
		t.Error("Expected an error for a job without ID")
	}

	list, err := s.ListJobs(ctx, jobs.JobFilter{})
	if err != nil || len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
		t.Fatalf("ListJobs = %v, %v", list, err)
	}
	list, _ = s.ListJobs(ctx, jobs.JobFilter{ClientID: "c1", Limit: 1})
	if len(list) != 1 || list[0].ID != "c" {
		t.Errorf("filtered list = %v", list)
	}
	list, _ = s.ListJobs(ctx, jobs.JobFilter{Offset: 5})
	if len(list) != 0 {
		t.Errorf("Expected empty page, got %d", len(list))
	}

	if err := s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(ctx, "a", 60, 4); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, "a")
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" || got.Progress != 60 || got.ProcessedRows != 4 {
		t.Errorf("updated job = %+v", got)
	}

	got.Status = jobs.JobStatusCompleted
	again, _ := s.GetJob(ctx, "a")
	if again.Status != jobs.JobStatusFailed {
		t.Error("GetJob must return a copy")
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if err := s.UpdateProgress(ctx, "missing", 1, 1); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}
