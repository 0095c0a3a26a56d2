package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/callcenter-backend/internal/classify"
	"github.com/tbourn/callcenter-backend/internal/domain"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/webhook"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:callsvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testClock is a settable clock for CallService.Now.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *testClock { return &testClock{t: time.Now().UTC().Truncate(time.Second)} }

func newTestService(t *testing.T) (*CallService, *testClock) {
	t.Helper()
	clk := newClock()
	s := NewCallService(newSvcDB(t), classify.NewKeywordClassifier())
	s.Now = clk.Now
	return s, clk
}

func mustPayload(t *testing.T, body string) webhook.Payload {
	t.Helper()
	p, err := webhook.Parse([]byte(body))
	if err != nil {
		t.Fatalf("parse payload %s: %v", body, err)
	}
	return p
}

func seedCall(t *testing.T, db *gorm.DB, c domain.Call) *domain.Call {
	t.Helper()
	if c.ConversationID == "" {
		c.ConversationID = "conv-" + uuid.NewString()
	}
	if c.PatientName == "" {
		c.PatientName = domain.DefaultPatientName
	}
	if c.AgentName == "" {
		c.AgentName = "Dr. agent"
	}
	if c.CallType == "" {
		c.CallType = domain.CallTypeGeneral
	}
	if c.Priority == "" {
		c.Priority = domain.PriorityNormal
	}
	if c.Status == "" {
		c.Status = domain.StatusActive
	}
	if c.WebhookData == "" {
		c.WebhookData = "{}"
	}
	if err := repo.InsertCall(context.Background(), db, &c); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return &c
}

func events(t *testing.T, db *gorm.DB, callID int64) []domain.CallEvent {
	t.Helper()
	evs, err := repo.ListCallEvents(context.Background(), db, callID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return evs
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(i int) *int              { return &i }
