package services

import (
	"context"
	"time"

	"github.com/okemsocial/okem_social/models"
	"gorm.io/gorm"
)

type NotificationService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, now: time.Now}
}

func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	n.IsRead = false
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *NotificationService) ListForUser(ctx context.Context, userID uint, take int) ([]models.Notification, error) {
	if take <= 0 {
		take = 50
	}
	var list []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(take).
		Find(&list).Error
	return list, err
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead flips one of the user's notifications to read. Someone else's
// notification is reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumn("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}
