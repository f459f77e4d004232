package outbox_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bakharlabs/blurshield/dbopen"
	"github.com/bakharlabs/blurshield/outbox"
)

func newQ(t *testing.T, opts outbox.Options) (*outbox.Q, *sql.DB) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	q := outbox.New(db, opts)
	if err := q.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	return q, db
}

func TestPublishAndClaim(t *testing.T) {
	q, _ := newQ(t, outbox.Options{Visibility: time.Second})
	ctx := context.Background()

	if err := q.Publish(ctx, "save_example.com", []byte(`[{"id":"mk_1"}]`)); err != nil {
		t.Fatal(err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	if job.ID != "save_example.com" {
		t.Fatalf("got id %q", job.ID)
	}
	if job.Attempts != 1 {
		t.Fatalf("got attempts %d, want 1", job.Attempts)
	}

	// Second claim returns nil — job is invisible.
	job2, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job2 != nil {
		t.Fatal("expected nil, job should be invisible")
	}
}

func TestPublishReplacesPayload(t *testing.T) {
	q, _ := newQ(t, outbox.Options{Visibility: time.Second})
	ctx := context.Background()

	q.Publish(ctx, "save_a", []byte("old"))
	q.Publish(ctx, "save_a", []byte("new"))

	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("len = %d, want 1 (replace, not duplicate)", n)
	}
	job, _ := q.Claim(ctx)
	if string(job.Payload) != "new" {
		t.Fatalf("payload = %q, want latest snapshot", job.Payload)
	}
}

func TestAckRemoves(t *testing.T) {
	q, _ := newQ(t, outbox.Options{Visibility: time.Second})
	ctx := context.Background()

	q.Publish(ctx, "j1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("len after ack = %d", n)
	}
}

func TestNackMakesVisible(t *testing.T) {
	q, _ := newQ(t, outbox.Options{Visibility: time.Minute})
	ctx := context.Background()

	q.Publish(ctx, "j1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Nack(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	again, _ := q.Claim(ctx)
	if again == nil || again.ID != "j1" {
		t.Fatal("nacked job not reclaimable")
	}
	if again.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", again.Attempts)
	}
}

func TestVisibilityTimeoutReappears(t *testing.T) {
	q, _ := newQ(t, outbox.Options{Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	q.Publish(ctx, "j1", nil)
	if job, _ := q.Claim(ctx); job == nil {
		t.Fatal("first claim failed")
	}
	if job, _ := q.Claim(ctx); job != nil {
		t.Fatal("job visible during timeout")
	}
	time.Sleep(80 * time.Millisecond)
	if job, _ := q.Claim(ctx); job == nil {
		t.Fatal("job did not reappear after visibility timeout")
	}
}

func TestExtend(t *testing.T) {
	q, _ := newQ(t, outbox.Options{Visibility: 50 * time.Millisecond})
	ctx := context.Background()

	q.Publish(ctx, "j1", nil)
	job, _ := q.Claim(ctx)
	if err := q.Extend(ctx, job.ID, time.Minute); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if job, _ := q.Claim(ctx); job != nil {
		t.Fatal("extended job reappeared")
	}
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	q, _ := newQ(t, outbox.Options{
		Visibility:   10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q.Publish(ctx, "doomed", []byte("payload"))

	attempts := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(ctx context.Context, job *outbox.Job) error {
			attempts++
			return errors.New("remote still down")
		})
	}()

	// Wait until the job leaves the live queue.
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n, _ := q.Len(context.Background()); n == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	if n, _ := q.Len(context.Background()); n != 0 {
		t.Fatalf("live queue still has %d jobs", n)
	}
	dead, err := q.DeadLetters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].ID != "doomed" {
		t.Fatalf("dead letters = %+v", dead)
	}
	if string(dead[0].Payload) != "payload" {
		t.Fatal("dead letter lost payload")
	}
	if attempts > 2 {
		t.Fatalf("handler ran %d times, budget was 2", attempts)
	}
}

func TestRunAcksOnSuccess(t *testing.T) {
	q, _ := newQ(t, outbox.Options{
		Visibility:   time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q.Publish(ctx, "j1", []byte("a"))
	q.Publish(ctx, "j2", []byte("b"))

	got := make(chan string, 2)
	go q.Run(ctx, func(ctx context.Context, job *outbox.Job) error {
		got <- job.ID
		return nil
	})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-got:
			seen[id] = true
		case <-ctx.Done():
			t.Fatal("timed out waiting for jobs")
		}
	}
	if !seen["j1"] || !seen["j2"] {
		t.Fatalf("seen = %v", seen)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n, _ := q.Len(context.Background()); n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("jobs not acked")
}
