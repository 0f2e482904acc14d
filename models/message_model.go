package models

import "time"

const MaxMessageLength = 5000

type Message struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	ConversationID uint    `gorm:"not null;index:idx_messages_conversation_created" json:"conversation_id"`
	SenderID       uint    `gorm:"not null" json:"sender_id"`
	Content        *string `gorm:"size:5000" json:"content"`
	AttachmentURL  *string `gorm:"size:1000" json:"attachment_url"`
	IsDeleted      bool    `gorm:"not null;default:false" json:"is_deleted"`

	Sender       *User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"-"`

	CreatedAt time.Time `gorm:"index:idx_messages_conversation_created" json:"created_at"`
}
