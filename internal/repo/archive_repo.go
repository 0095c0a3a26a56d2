package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// archiveColumns lists the columns copied from calls into calls_archive.
const archiveColumns = "id, conversation_id, patient_name, patient_phone, agent_name, call_type, status, priority, " +
	"start_time, end_time, duration, transcript, audio_url, webhook_data, webhook_data_end, created_at, updated_at"

// ArchiveCallsBefore moves up to batch calls created before cutoff from calls
// into calls_archive inside one transaction and returns how many were moved.
// Callers loop until it returns 0.
func ArchiveCallsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = 500
	}
	var moved int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Model(&domain.Call{}).
			Where("created_at < ?", cutoff).
			Order("id asc").
			Limit(batch).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Exec(
			"INSERT INTO calls_archive ("+archiveColumns+") SELECT "+archiveColumns+" FROM calls WHERE id IN ?", ids,
		).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.Call{})
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		return nil
	})
	return moved, err
}
