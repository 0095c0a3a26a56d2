// Package domain defines the persistence models for the call center: live
// calls, their append-only event log, dashboard notifications, archived calls
// and inbound webhook logs. These types are mapped with GORM and form the core
// data layer shared by the repository and service layers.
package domain

import (
	"encoding/json"
	"math"
	"time"
)

// DefaultPatientName is stored when the inbound webhook carries no patient name.
const DefaultPatientName = "Paciente Desconocido"

// MaxDurationSeconds bounds every stored or derived call duration so it fits
// the INT duration column on every supported driver.
const MaxDurationSeconds = math.MaxInt32

// Call represents one phone conversation handled by the clinic. Rows are
// created by the "call started" webhook and mutated only through guarded
// status transitions (active, waiting, ended).
//
// Fields:
//   - ID: auto-increment surrogate key.
//   - ConversationID: external identifier supplied by the voice provider.
//   - PatientName / PatientPhone: caller identity from dynamic variables.
//   - AgentName: "Dr. {agent_id}" at creation, replaced on transfer/attend.
//   - CallType / Priority: derived by the classifier at creation.
//   - Status: active | waiting | ended.
//   - StartTime / EndTime / Duration: lifecycle timing (Duration in whole seconds).
//   - Transcript / AudioURL: populated by the "call ended" webhook.
//   - WebhookData / WebhookDataEnd: raw inbound payloads, verbatim.
type Call struct {
	ID             int64      `json:"id"              gorm:"primaryKey;autoIncrement"`
	ConversationID string     `json:"conversation_id" gorm:"type:varchar(128);not null;index:idx_calls_conversation"`
	PatientName    string     `json:"patient_name"    gorm:"type:varchar(255);not null;default:'Paciente Desconocido'"`
	PatientPhone   *string    `json:"patient_phone,omitempty" gorm:"type:varchar(64)"`
	AgentName      string     `json:"agent_name"      gorm:"type:varchar(255);not null"`
	CallType       CallType   `json:"call_type"       gorm:"type:varchar(32);not null"`
	Status         CallStatus `json:"status"          gorm:"type:varchar(16);not null;index:idx_calls_status_start,priority:1"`
	Priority       Priority   `json:"priority"        gorm:"type:varchar(16);not null"`
	StartTime      *time.Time `json:"start_time,omitempty" gorm:"index:idx_calls_status_start,priority:2"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Duration       *int       `json:"duration,omitempty"`
	Transcript     *string    `json:"transcript,omitempty"  gorm:"type:text"`
	AudioURL       *string    `json:"audio_url,omitempty"   gorm:"type:varchar(1024)"`
	WebhookData    string     `json:"-"               gorm:"type:text"`
	WebhookDataEnd *string    `json:"-"               gorm:"type:text"`
	CreatedAt      time.Time  `json:"created_at"      gorm:"index"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Call.
func (Call) TableName() string { return "calls" }

// EffectiveDuration returns the call length in whole seconds. A stored,
// non-zero duration wins; otherwise it is derived from StartTime and EndTime,
// or from StartTime and now while the call is still open. Calls without a
// start time report 0.
func (c Call) EffectiveDuration(now time.Time) int {
	if c.Duration != nil && *c.Duration != 0 {
		return *c.Duration
	}
	if c.StartTime == nil {
		return 0
	}
	end := now
	if c.EndTime != nil {
		end = *c.EndTime
	}
	return WholeSeconds(end.Sub(*c.StartTime))
}

// WholeSeconds floors d to seconds, clamped to [0, MaxDurationSeconds].
func WholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if secs > MaxDurationSeconds {
		return MaxDurationSeconds
	}
	return int(secs)
}

// CallEvent is one row of the append-only audit trail. Events are advisory:
// they are never read back to reconstruct call state, and CallID may be nil
// when the best-effort lookup after a transition failed.
type CallEvent struct {
	ID             int64     `json:"id"              gorm:"primaryKey;autoIncrement"`
	CallID         *int64    `json:"call_id"         gorm:"index"`
	ConversationID *string   `json:"conversation_id" gorm:"type:varchar(128);index"`
	EventType      EventType `json:"event_type"      gorm:"type:varchar(16);not null;index:idx_events_type_created,priority:1"`
	AgentName      *string   `json:"agent_name"      gorm:"type:varchar(255)"`
	Meta           *string   `json:"meta"            gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_events_type_created,priority:2"`
}

// TableName returns the database table name for CallEvent.
func (CallEvent) TableName() string { return "call_events" }

// Notification is a dashboard notification raised by a webhook. The
// conversation id is denormalized out of Data into its own indexed column so
// history lookups do not depend on database-specific JSON functions.
type Notification struct {
	ID             int64            `json:"id"              gorm:"primaryKey;autoIncrement"`
	Type           NotificationType `json:"type"            gorm:"type:varchar(32);not null;index:idx_notif_conv_type,priority:2"`
	Title          string           `json:"title"           gorm:"type:varchar(255);not null"`
	Message        string           `json:"message"         gorm:"type:text;not null"`
	ConversationID string           `json:"conversation_id" gorm:"type:varchar(128);not null;index:idx_notif_conv_type,priority:1"`
	Data           string           `json:"-"               gorm:"type:text"`
	Priority       string           `json:"priority"        gorm:"type:varchar(16);not null;default:'normal'"`
	Status         string           `json:"status"          gorm:"type:varchar(16);not null;default:'pending'"`
	CreatedAt      time.Time        `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// DataMap decodes the notification payload. Invalid or empty JSON yields an
// empty map.
func (n Notification) DataMap() map[string]any {
	out := map[string]any{}
	if n.Data == "" {
		return out
	}
	if err := json.Unmarshal([]byte(n.Data), &out); err != nil {
		return map[string]any{}
	}
	return out
}

// CallArchive mirrors Call for rows moved out of the live table by the
// archiver. Its ID keeps the original call id.
type CallArchive struct {
	ID             int64      `gorm:"primaryKey;autoIncrement:false"`
	ConversationID string     `gorm:"type:varchar(128);not null;index"`
	PatientName    string     `gorm:"type:varchar(255);not null"`
	PatientPhone   *string    `gorm:"type:varchar(64)"`
	AgentName      string     `gorm:"type:varchar(255);not null"`
	CallType       CallType   `gorm:"type:varchar(32);not null"`
	Status         CallStatus `gorm:"type:varchar(16);not null"`
	Priority       Priority   `gorm:"type:varchar(16);not null"`
	StartTime      *time.Time
	EndTime        *time.Time
	Duration       *int
	Transcript     *string `gorm:"type:text"`
	AudioURL       *string `gorm:"type:varchar(1024)"`
	WebhookData    string  `gorm:"type:text"`
	WebhookDataEnd *string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the database table name for CallArchive.
func (CallArchive) TableName() string { return "calls_archive" }

// WebhookLog records every inbound provider webhook and how it was handled.
type WebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	WebhookType    string    `gorm:"type:varchar(32);not null;index"`
	ConversationID string    `gorm:"type:varchar(128);not null;index"`
	Payload        string    `gorm:"type:text"`
	Status         string    `gorm:"type:varchar(16);not null"`
	Response       *string   `gorm:"type:text"`
	ErrorMessage   *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"index"`
}

// TableName returns the database table name for WebhookLog.
func (WebhookLog) TableName() string { return "webhook_logs" }
