package services

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrNotGroupConversation = errors.New("operation requires a group conversation")
	ErrSelfConversation     = errors.New("cannot open a direct conversation with yourself")
)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
