package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

func TestArchiveCallsBefore_MovesInBatches(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-100 * 24 * time.Hour)

	var oldIDs []int64
	for i := 0; i < 3; i++ {
		c := seedCall(t, db, domain.Call{Status: domain.StatusEnded, CreatedAt: old, Transcript: strPtr("t")})
		oldIDs = append(oldIDs, c.ID)
	}
	fresh := seedCall(t, db, domain.Call{CreatedAt: now})

	cutoff := now.Add(-90 * 24 * time.Hour)
	n, err := ArchiveCallsBefore(ctx, db, cutoff, 2)
	if err != nil || n != 2 {
		t.Fatalf("first batch = %d, %v", n, err)
	}
	n, err = ArchiveCallsBefore(ctx, db, cutoff, 2)
	if err != nil || n != 1 {
		t.Fatalf("second batch = %d, %v", n, err)
	}
	n, err = ArchiveCallsBefore(ctx, db, cutoff, 2)
	if err != nil || n != 0 {
		t.Fatalf("drained batch = %d, %v", n, err)
	}

	live, _ := CountCalls(ctx, db)
	archived, _ := CountArchivedCalls(ctx, db)
	if live != 1 || archived != 3 {
		t.Fatalf("live=%d archived=%d", live, archived)
	}
	if _, err := GetCall(ctx, db, fresh.ID); err != nil {
		t.Fatalf("fresh call should stay live: %v", err)
	}

	var rows []domain.CallArchive
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		t.Fatalf("read archive: %v", err)
	}
	for i, r := range rows {
		if r.ID != oldIDs[i] || r.Transcript == nil || *r.Transcript != "t" {
			t.Fatalf("archive row %d not copied verbatim: %+v", i, r)
		}
	}
}

func TestNotificationsAndWebhookLogs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, n := range []domain.Notification{
		{Type: domain.NotificationCallEnded, Title: "end", ConversationID: "conv-n", Data: "{}", CreatedAt: now},
		{Type: domain.NotificationCallStarted, Title: "start", ConversationID: "conv-n", Data: "{}", CreatedAt: now.Add(-time.Minute)},
		{Type: "system", Title: "other", ConversationID: "conv-n", Data: "{}", CreatedAt: now},
		{Type: domain.NotificationCallStarted, Title: "foreign", ConversationID: "conv-x", Data: "{}", CreatedAt: now},
	} {
		n := n
		if err := CreateNotification(ctx, db, &n); err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}

	got, err := ListCallNotifications(ctx, db, "conv-n")
	if err != nil {
		t.Fatalf("ListCallNotifications: %v", err)
	}
	if len(got) != 2 || got[0].Title != "start" || got[1].Title != "end" {
		t.Fatalf("unexpected notifications: %+v", got)
	}

	l := &domain.WebhookLog{WebhookType: "call_started", ConversationID: "conv-n", Payload: "{}", Status: "success"}
	if err := CreateWebhookLog(ctx, db, l); err != nil {
		t.Fatalf("CreateWebhookLog: %v", err)
	}
	if l.ID == 0 || l.CreatedAt.IsZero() {
		t.Fatalf("webhook log not persisted: %+v", l)
	}
}
