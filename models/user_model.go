package models

import "time"

type User struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	FullName  string  `gorm:"size:120;not null" json:"full_name"`
	Email     string  `gorm:"size:200;not null;unique" json:"email"`
	Password  string  `gorm:"not null" json:"-"`
	Role      string  `gorm:"size:20;not null;default:'user'" json:"role"`
	AvatarURL *string `gorm:"size:500" json:"avatar_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
