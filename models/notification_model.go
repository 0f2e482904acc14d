package models

import "time"

// Notification types produced inside the realtime core. Other collaborators
// are free to use their own tags.
const (
	NotificationMissedCall = "MissedCall"
	NotificationMessage    = "Message"
	NotificationSystem     = "System"
)

type Notification struct {
	ID      uint    `gorm:"primaryKey" json:"id"`
	UserID  uint    `gorm:"not null;index" json:"user_id"`
	Type    string  `gorm:"size:50;not null" json:"type"`
	Title   string  `gorm:"size:255;not null" json:"title"`
	Content string  `gorm:"type:text" json:"content"`
	URL     *string `gorm:"size:500" json:"url"`
	IsRead  bool    `gorm:"not null;default:false" json:"is_read"`

	User *User `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
