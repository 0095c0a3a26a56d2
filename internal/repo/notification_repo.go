package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// CreateNotification inserts n and fills its ID.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

// ListCallNotifications returns the call_started and call_ended notifications
// for conversationID, oldest first.
func ListCallNotifications(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND type IN ?", conversationID,
			[]domain.NotificationType{domain.NotificationCallStarted, domain.NotificationCallEnded}).
		Order("created_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// CreateWebhookLog records an inbound webhook.
func CreateWebhookLog(ctx context.Context, db *gorm.DB, l *domain.WebhookLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(l).Error
}
