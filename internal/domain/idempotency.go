package domain

import "time"

// Idempotency records the outcome of an operator action, keyed by
// (user_id, call_id, key). A retried POST carrying the same Idempotency-Key
// is answered from this record instead of re-running the transition, which
// keeps the audit trail free of duplicate transfer/attend events.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_call_key,priority:1"`
	CallID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_call_key,priority:2"`
	Key       string    `gorm:"column:idem_key;type:varchar(200);not null;uniqueIndex:ux_user_call_key,priority:3"`
	Action    string    `gorm:"type:varchar(32);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
