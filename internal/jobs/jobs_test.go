package jobs

import (
	"context"
	"testing"
	"time"
)

func TestAddRejectsInvalidExpression(t *testing.T) {
	r := NewRunner()
	if err := r.Add("bad", "not a cron", nil); err == nil {
		t.Fatal("want error for invalid cron expression")
	}
	if r.Len() != 0 {
		t.Errorf("len = %d, want 0", r.Len())
	}
}

func TestRunDueFiresMatchingJobs(t *testing.T) {
	r := NewRunner()
	var every, yearly int
	if err := r.Add("every-minute", "* * * * *", func(context.Context) error {
		every++
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("new-year", "0 0 1 1 *", func(context.Context) error {
		yearly++
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	r.runDue(context.Background(), now)

	if every != 1 {
		t.Errorf("every-minute ran %d times, want 1", every)
	}
	if yearly != 0 {
		t.Errorf("new-year ran %d times, want 0", yearly)
	}
}

func TestRunDueContinuesPastFailingJob(t *testing.T) {
	r := NewRunner()
	var ran bool
	r.Add("failing", "* * * * *", func(context.Context) error {
		return context.DeadlineExceeded
	})
	r.Add("healthy", "* * * * *", func(context.Context) error {
		ran = true
		return nil
	})

	r.runDue(context.Background(), time.Now())

	if !ran {
		t.Error("healthy job did not run after failing job")
	}
}

func TestRunReturnsWithoutJobs(t *testing.T) {
	r := NewRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run with no jobs: %v", err)
	}
}
