package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newQueue(t *testing.T, cfg Config) (*RedisJobQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if cfg.Stream == "" {
		cfg.Stream = "test:jobs"
	}
	if cfg.Block == 0 {
		cfg.Block = 20 * time.Millisecond
	}
	q, err := NewRedisJobQueue(client, cfg)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q, client
}

func waitForStatus(t *testing.T, q *RedisJobQueue, jobID, status string) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, status)
	return Job{}
}

func TestEnqueueStoresStatusAndPayload(t *testing.T) {
	q, _ := newQueue(t, Config{})
	job, err := q.Enqueue(context.Background(), "verification_code", []byte(`{"code":"000111"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, ok, err := q.GetJob(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusQueued || got.Kind != "verification_code" || string(got.Payload) != `{"code":"000111"}` {
		t.Fatalf("unexpected job %+v", got)
	}
	if _, err := q.Enqueue(context.Background(), " ", nil); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestRunProcessesJobs(t *testing.T) {
	q, _ := newQueue(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, 2, func(_ context.Context, job Job) error {
			seen.Store(string(job.Payload))
			return nil
		})
	}()

	job, err := q.Enqueue(ctx, "verification_code", []byte("hello"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := waitForStatus(t, q, job.ID, StatusDone)
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d", got.Attempts)
	}
	if seen.Load() != "hello" {
		t.Fatalf("handler saw %v", seen.Load())
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRunRetriesThenFails(t *testing.T) {
	q, client := newQueue(t, Config{MaxRetries: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() {
		_ = q.Run(ctx, 1, func(context.Context, Job) error {
			calls.Add(1)
			return errors.New("gateway down")
		})
	}()

	job, err := q.Enqueue(ctx, "verification_code", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := waitForStatus(t, q, job.ID, StatusFailed)
	if got.Attempts != 2 || got.ErrorMessage != "gateway down" {
		t.Fatalf("unexpected failed job %+v", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("handler calls = %d", calls.Load())
	}
	pending, err := client.XPending(context.Background(), q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("failed job left %d pending entries", pending.Count)
	}
}

func TestRequeueFailureKeepsPendingEntry(t *testing.T) {
	q, client := newQueue(t, Config{})
	ctx := context.Background()
	if err := q.ensureGroup(ctx); err != nil {
		t.Fatalf("group: %v", err)
	}
	job, err := q.Enqueue(ctx, "verification_code", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: q.group, Consumer: "c1", Streams: []string{q.stream, ">"}, Count: 1, Block: -1,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("read: %v %+v", err, streams)
	}
	msgID := streams[0].Messages[0].ID

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeue(cancelled, msgID, job.ID, job.Kind); err == nil {
		t.Fatalf("expected requeue to fail on cancelled context")
	}
	pending, err := client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected entry to stay pending, got %d", pending.Count)
	}

	if err := q.requeue(ctx, msgID, job.ID, job.Kind); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	pending, _ = client.XPending(ctx, q.stream, q.group).Result()
	if pending.Count != 0 {
		t.Fatalf("expected no pending entries, got %d", pending.Count)
	}
}
