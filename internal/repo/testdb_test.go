package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// newTestDB opens a unique in-memory database per test with every table
// migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// seedCall inserts a call; zero fields get sensible defaults.
func seedCall(t *testing.T, db *gorm.DB, c domain.Call) *domain.Call {
	t.Helper()
	if c.ConversationID == "" {
		c.ConversationID = fmt.Sprintf("conv-%d", time.Now().UnixNano())
	}
	if c.PatientName == "" {
		c.PatientName = domain.DefaultPatientName
	}
	if c.AgentName == "" {
		c.AgentName = "Dr. unknown"
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
	if err := InsertCall(context.Background(), db, &c); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return &c
}
