package models

import "time"

type Conversation struct {
	ID      uint    `gorm:"primaryKey" json:"id"`
	Name    *string `gorm:"size:200" json:"name"`
	IsGroup bool    `gorm:"not null;default:false" json:"is_group"`

	// UpdatedAt doubles as the conversation's last activity time.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Members  []ConversationMember `gorm:"constraint:OnDelete:CASCADE;" json:"members,omitempty"`
	Messages []Message            `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}
