package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueue_RunsJobs(t *testing.T) {
	q := NewQueue(Config{Workers: 2, QueueSize: 4, JobTimeout: time.Second}, nil)
	defer q.Close()

	var mu sync.Mutex
	var got []string
	q.Register("greet", func(ctx context.Context, job Job) error {
		var name string
		if err := job.Decode(&name); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, name)
		mu.Unlock()
		return nil
	})

	results := make(chan Result, 2)
	q.OnResult(func(r Result) { results <- r })

	for _, name := range []string{"ada", "grace"} {
		job, err := NewJob("greet", "greet:"+name, name)
		if err != nil {
			t.Fatal(err)
		}
		if err := q.Submit(job); err != nil {
			t.Fatalf("Submit(%s) failed: %v", name, err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.Err != nil {
				t.Errorf("job %s failed: %v", r.Job.Key, r.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Errorf("handled %v, want two jobs", got)
	}
}

func TestQueue_Dedupe(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 4, JobTimeout: time.Second}, nil)
	defer q.Close()

	release := make(chan struct{})
	q.Register("pay", func(ctx context.Context, job Job) error {
		<-release
		return nil
	})

	job := Job{Key: "payment:person_001", Kind: "pay"}
	if err := q.Submit(job); err != nil {
		t.Fatalf("first Submit() failed: %v", err)
	}
	if err := q.Submit(job); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Submit() should be ErrDuplicate, got %v", err)
	}
	if !q.InFlight(job.Key) {
		t.Error("job should be in flight")
	}

	close(release)
	waitFor(t, func() bool { return !q.InFlight(job.Key) })

	if err := q.Submit(job); err != nil {
		t.Errorf("resubmit after completion should succeed, got %v", err)
	}
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 1, JobTimeout: time.Second}, nil)
	defer q.Close()

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	q.Register("slow", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	defer close(release)

	if err := q.Submit(Job{Key: "a", Kind: "slow"}); err != nil {
		t.Fatal(err)
	}
	<-started // worker is busy with a

	if err := q.Submit(Job{Key: "b", Kind: "slow"}); err != nil {
		t.Fatalf("b should fit in the backlog: %v", err)
	}
	if err := q.Submit(Job{Key: "c", Kind: "slow"}); !errors.Is(err, ErrFull) {
		t.Errorf("c should be rejected with ErrFull, got %v", err)
	}
	if q.InFlight("c") {
		t.Error("rejected job must not be tracked")
	}

	pending, running := q.Stats()
	if pending != 1 || running != 1 {
		t.Errorf("Stats() = (%d, %d), want (1, 1)", pending, running)
	}
}

func TestQueue_CancelRunning(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 2, JobTimeout: time.Minute}, nil)
	defer q.Close()

	started := make(chan struct{})
	q.Register("poll", func(ctx context.Context, job Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	results := make(chan Result, 1)
	q.OnResult(func(r Result) { results <- r })

	q.Submit(Job{Key: "lookup:person_002", Kind: "poll"})
	<-started

	if !q.Cancel("lookup:person_002") {
		t.Fatal("Cancel() should find the running job")
	}
	select {
	case r := <-results:
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled job did not finish")
	}

	if q.Cancel("lookup:person_002") {
		t.Error("Cancel() of a finished job should return false")
	}
}

func TestQueue_Timeout(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 1, JobTimeout: time.Minute}, nil)
	defer q.Close()

	q.Register("hang", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	results := make(chan Result, 1)
	q.OnResult(func(r Result) { results <- r })

	q.Submit(Job{Key: "h", Kind: "hang", Timeout: 20 * time.Millisecond})

	select {
	case r := <-results:
		if !errors.Is(r.Err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job did not time out")
	}
}

func TestQueue_PanicIsReported(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 1}, nil)
	defer q.Close()

	q.Register("boom", func(ctx context.Context, job Job) error { panic("kaboom") })
	results := make(chan Result, 1)
	q.OnResult(func(r Result) { results <- r })

	q.Submit(Job{Kind: "boom"})
	r := <-results
	if r.Err == nil || r.Job.Key != "boom" {
		t.Errorf("panic should surface as an error keyed by kind, got %+v", r)
	}
}

func TestQueue_SubmitErrors(t *testing.T) {
	q := NewQueue(DefaultConfig(), nil)

	if err := q.Submit(Job{Key: "x", Kind: "unknown"}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}

	q.Register("noop", func(ctx context.Context, job Job) error { return nil })
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit(Job{Key: "x", Kind: "noop"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := q.Close(); err != nil {
		t.Error("second Close() should be a no-op")
	}
}

func TestQueue_CloseCancelsInFlight(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 4, JobTimeout: time.Minute}, nil)

	started := make(chan struct{})
	var once sync.Once
	q.Register("wait", func(ctx context.Context, job Job) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	})

	var mu sync.Mutex
	var errs []error
	q.OnResult(func(r Result) {
		mu.Lock()
		errs = append(errs, r.Err)
		mu.Unlock()
	})

	q.Submit(Job{Key: "1", Kind: "wait"})
	q.Submit(Job{Key: "2", Kind: "wait"})
	<-started

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 2 {
		t.Fatalf("expected both jobs to be reported, got %d", len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	}
}
