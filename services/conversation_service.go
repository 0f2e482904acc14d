package services

import (
	"context"
	"fmt"
	"time"

	"github.com/okemsocial/okem_social/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db, now: time.Now}
}

func (s *ConversationService) IsMember(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *ConversationService) ConversationIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

func (s *ConversationService) MemberIDs(ctx context.Context, conversationID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListForUser returns the user's conversations, most recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Members.User").
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id AND cm.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (s *ConversationService) GetByID(ctx context.Context, id uint, withMembers bool) (*models.Conversation, error) {
	q := s.db.WithContext(ctx)
	if withMembers {
		q = q.Preload("Members.User")
	}

	var conversation models.Conversation
	if err := q.First(&conversation, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conversation, nil
}

func (s *ConversationService) Member(ctx context.Context, conversationID, userID uint) (*models.ConversationMember, error) {
	var member models.ConversationMember
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&member).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

// Create stores a conversation with the given members. More than two
// distinct members makes it a group.
func (s *ConversationService) Create(ctx context.Context, name *string, memberIDs []uint) (*models.Conversation, error) {
	ids := uniqueIDs(memberIDs)
	now := s.now().UTC()

	conversation := models.Conversation{
		Name:      name,
		IsGroup:   len(ids) > 2,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&conversation).Error; err != nil {
			return err
		}
		members := make([]models.ConversationMember, 0, len(ids))
		for _, id := range ids {
			members = append(members, models.ConversationMember{
				ConversationID: conversation.ID,
				UserID:         id,
				JoinedAt:       now,
			})
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return s.GetByID(ctx, conversation.ID, true)
}

// GetOrCreateDirect finds the two-person conversation between a and b, or
// creates it. The boolean reports whether it was created.
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, a, b uint) (*models.Conversation, bool, error) {
	if a == b {
		return nil, false, ErrSelfConversation
	}
	if a > b {
		a, b = b, a
	}

	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_members m1 ON m1.conversation_id = conversations.id AND m1.user_id = ?", a).
		Joins("JOIN conversation_members m2 ON m2.conversation_id = conversations.id AND m2.user_id = ?", b).
		Where("conversations.is_group = ?", false).
		First(&conversation).Error
	if err == nil {
		found, err := s.GetByID(ctx, conversation.ID, true)
		return found, false, err
	}
	if err = notFound(err); err != ErrNotFound {
		return nil, false, err
	}

	created, err := s.Create(ctx, nil, []uint{a, b})
	return created, err == nil, err
}

func (s *ConversationService) Rename(ctx context.Context, id uint, name string) error {
	conversation, err := s.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	if !conversation.IsGroup {
		return ErrNotGroupConversation
	}

	return s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"name": name, "updated_at": s.now().UTC()}).Error
}

func (s *ConversationService) AddMember(ctx context.Context, conversationID, userID uint) error {
	conversation, err := s.GetByID(ctx, conversationID, false)
	if err != nil {
		return err
	}
	if !conversation.IsGroup {
		return ErrNotGroupConversation
	}

	member := models.ConversationMember{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       s.now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error
}

func (s *ConversationService) RemoveMember(ctx context.Context, conversationID, userID uint) error {
	conversation, err := s.GetByID(ctx, conversationID, false)
	if err != nil {
		return err
	}
	if !conversation.IsGroup {
		return ErrNotGroupConversation
	}

	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&models.ConversationMember{}).Error
}

// MarkRead moves the member's last_read_at forward to at. An older at is a
// no-op, so out-of-order receipts never move the read position backwards.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID uint, at time.Time) error {
	at = at.UTC()
	return s.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		UpdateColumn("last_read_at", at).Error
}

func (s *ConversationService) MarkReadNow(ctx context.Context, conversationID, userID uint) error {
	return s.MarkRead(ctx, conversationID, userID, s.now())
}

// UnreadCount counts messages from others newer than each membership's read
// position, across every conversation of the user.
func (s *ConversationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN conversation_members cm ON cm.conversation_id = messages.conversation_id AND cm.user_id = ?", userID).
		Where("messages.sender_id <> ? AND messages.is_deleted = ?", userID, false).
		Where("messages.created_at > COALESCE(cm.last_read_at, cm.joined_at)").
		Count(&count).Error
	return count, err
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
