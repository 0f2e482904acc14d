package services

import (
	"context"
	"fmt"
	"time"

	"github.com/okemsocial/okem_social/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultMessagePage = 50
	MaxMessagePage     = 200
)

type MessageService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db, now: time.Now}
}

// Create persists msg, bumps the conversation's last activity time and
// loads the sender. The steps are sequential, not one transaction.
func (s *MessageService) Create(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	db := s.db.WithContext(ctx)

	if err := db.Omit(clause.Associations).Create(msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	if err := db.Model(&models.Conversation{}).
		Where("id = ?", msg.ConversationID).
		UpdateColumn("updated_at", msg.CreatedAt).Error; err != nil {
		return fmt.Errorf("touch conversation %d: %w", msg.ConversationID, err)
	}

	var sender models.User
	if err := db.First(&sender, msg.SenderID).Error; err != nil {
		return fmt.Errorf("load sender %d: %w", msg.SenderID, notFound(err))
	}
	msg.Sender = &sender
	return nil
}

func (s *MessageService) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).Preload("Sender").First(&msg, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

// List returns up to take non-deleted messages older than before (all when
// before is nil), oldest first.
func (s *MessageService) List(ctx context.Context, conversationID uint, before *time.Time, take int) ([]models.Message, error) {
	if take <= 0 {
		take = DefaultMessagePage
	}
	if take > MaxMessagePage {
		take = MaxMessagePage
	}

	q := s.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}

	var messages []models.Message
	if err := q.Order("created_at DESC").Order("id DESC").Limit(take).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
