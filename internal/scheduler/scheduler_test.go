package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/you/social-pulse/internal/core"
)

func TestNewRejectsBadTimezone(t *testing.T) {
	if _, err := New("Mars/Olympus", 0); err == nil {
		t.Fatal("expected invalid timezone error")
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	s, err := New("UTC", 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Schedule("not a cron", func(context.Context, core.RunDate) error { return nil }); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestTodayUsesTimezone(t *testing.T) {
	s, err := New("America/New_York", 0)
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 8, 27, 2, 0, 0, 0, time.UTC) }
	if got := s.Today(); got != "2025-08-26" {
		t.Fatalf("Today() = %s, want 2025-08-26", got)
	}
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s, err := New("UTC", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 8, 26, 23, 0, 0, 0, time.UTC) }

	var gotDate core.RunDate
	err = s.RunNow(context.Background(), func(ctx context.Context, date core.RunDate) error {
		gotDate = date
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if gotDate != "2025-08-26" {
		t.Fatalf("unexpected run date %s", gotDate)
	}
}

func TestScheduleFires(t *testing.T) {
	s, err := New("UTC", time.Second)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fired := make(chan core.RunDate, 1)
	if err := s.Schedule("@every 1s", func(_ context.Context, d core.RunDate) error {
		select {
		case fired <- d:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case d := <-fired:
		if d == "" {
			t.Fatal("expected run date")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not fire")
	}
}
