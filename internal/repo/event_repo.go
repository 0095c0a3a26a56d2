package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// AppendCallEvent inserts one audit row. Events are append-only; there is no
// update or delete counterpart.
func AppendCallEvent(ctx context.Context, db *gorm.DB, ev *domain.CallEvent) error {
	return db.WithContext(ctx).Create(ev).Error
}

// ListCallEvents returns the events recorded for callID in insertion order.
func ListCallEvents(ctx context.Context, db *gorm.DB, callID int64) ([]domain.CallEvent, error) {
	var out []domain.CallEvent
	err := db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("id asc").
		Find(&out).Error
	return out, err
}
