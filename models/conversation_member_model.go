package models

import "time"

type ConversationMember struct {
	ConversationID uint       `gorm:"primaryKey;autoIncrement:false" json:"conversation_id"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at"`

	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}
