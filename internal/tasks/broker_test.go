package tasks

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("REDIS_ADDR not set")
	}
	return addr
}

func TestBroker(t *testing.T) {
	addr := redisAddr(t)

	b := NewBroker(BrokerConfig{Addr: addr, Queue: "facegift-test-" + time.Now().Format("150405.000")}, nil)
	defer b.Close()

	done := make(chan Job, 1)
	release := make(chan struct{})
	b.Register("echo", func(ctx context.Context, job Job) error {
		<-release
		done <- job
		return nil
	})
	if err := b.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	job, _ := NewJob("echo", "echo:1", map[string]string{"hello": "world"})
	if err := b.Submit(job); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if err := b.Submit(job); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate key should be rejected, got %v", err)
	}
	close(release)

	select {
	case got := <-done:
		if got.Key != "echo:1" {
			t.Errorf("Key = %q, want echo:1", got.Key)
		}
		var payload map[string]string
		if err := got.Decode(&payload); err != nil || payload["hello"] != "world" {
			t.Errorf("payload = %v, %v", payload, err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestBroker_FailedJobFreesKey(t *testing.T) {
	addr := redisAddr(t)

	b := NewBroker(BrokerConfig{Addr: addr, Queue: "facegift-fail-" + time.Now().Format("150405.000")}, nil)
	defer b.Close()

	calls := make(chan int32, 2)
	var n atomic.Int32
	b.Register("flaky", func(ctx context.Context, job Job) error {
		call := n.Add(1)
		calls <- call
		if call == 1 {
			return errors.New("gift server down")
		}
		return nil
	})
	if err := b.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	job, _ := NewJob("flaky", "payment:person_003", nil)
	if err := b.Submit(job); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	select {
	case <-calls:
	case <-time.After(10 * time.Second):
		t.Fatal("first job was not processed")
	}

	// The failed task is archived shortly after the handler returns.
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := b.Submit(job)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicate) || time.Now().After(deadline) {
			t.Fatalf("resubmit after failure: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case got := <-calls:
		if got != 2 {
			t.Errorf("handler call = %d, want 2", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("resubmitted job was not processed")
	}
}
