package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

func TestCompletedCallStats_ZeroRows(t *testing.T) {
	db := newTestDB(t)
	st, err := CompletedCallStats(context.Background(), db, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CompletedCallStats: %v", err)
	}
	if st.Count != 0 || st.TotalDuration != 0 || st.AvgDuration != 0 {
		t.Fatalf("expected zeros, got %+v", st)
	}
}

func TestCompletedCallStats_WindowAndAverage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	in := now.Add(-time.Hour)
	out := now.Add(-48 * time.Hour)

	seedCall(t, db, domain.Call{Status: domain.StatusEnded, StartTime: &in, Duration: intPtr(60)})
	seedCall(t, db, domain.Call{Status: domain.StatusEnded, StartTime: &in, Duration: intPtr(120)})
	// Ended without a stored duration counts but does not skew the average.
	seedCall(t, db, domain.Call{Status: domain.StatusEnded, StartTime: &in})
	seedCall(t, db, domain.Call{Status: domain.StatusEnded, StartTime: &out, Duration: intPtr(999)})
	seedCall(t, db, domain.Call{Status: domain.StatusActive, StartTime: &in})

	st, err := CompletedCallStats(ctx, db, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CompletedCallStats: %v", err)
	}
	if st.Count != 3 || st.TotalDuration != 180 || st.AvgDuration != 90 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestCompletedCallStats_NoTable(t *testing.T) {
	db := newIdemDB(t)
	if _, err := CompletedCallStats(context.Background(), db, time.Now()); err == nil {
		t.Fatalf("expected error when calls table is missing")
	}
}

func TestEventCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 1, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)

	for _, ev := range []domain.CallEvent{
		{EventType: domain.EventTransfer, CreatedAt: today},
		{EventType: domain.EventTransfer, CreatedAt: yesterday},
		{EventType: domain.EventTransfer, CreatedAt: yesterday.Add(time.Hour)},
		{EventType: domain.EventHold, CreatedAt: today},
		{EventType: domain.EventTransfer, CreatedAt: today.Add(-30 * 24 * time.Hour)},
	} {
		ev := ev
		if err := AppendCallEvent(ctx, db, &ev); err != nil {
			t.Fatalf("AppendCallEvent: %v", err)
		}
	}

	since := yesterday.Add(-time.Hour)
	counts, err := CountCallEventsByType(ctx, db, since)
	if err != nil {
		t.Fatalf("CountCallEventsByType: %v", err)
	}
	if counts[domain.EventTransfer] != 3 || counts[domain.EventHold] != 1 || counts[domain.EventAttend] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	days, err := DailyEventCounts(ctx, db, domain.EventTransfer, since)
	if err != nil {
		t.Fatalf("DailyEventCounts: %v", err)
	}
	want := []DayCount{
		{Day: yesterday.Format("2006-01-02"), Count: 2},
		{Day: today.Format("2006-01-02"), Count: 1},
	}
	if len(days) != len(want) || days[0] != want[0] || days[1] != want[1] {
		t.Fatalf("DailyEventCounts = %+v; want %+v", days, want)
	}
}
