package database

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	config "github.com/okemsocial/okem_social/configs"
	"github.com/okemsocial/okem_social/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:            false,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	log.Info("✅ Database connected successfully")
}

// AutoMigrate creates or updates the realtime core tables on db.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.Notification{},
	)
}

func Migrate() {
	if err := AutoMigrate(DB); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	log.Info("✅ Database migration successful")
}

// SeedAdmin makes sure the account allowed to push notifications on behalf
// of other services exists.
func SeedAdmin(db *gorm.DB, email, password, fullName string) error {
	if email == "" || password == "" {
		return errors.New("admin email and password are required")
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("check for admin user: %w", err)
	}
	if count > 0 {
		log.Info("Admin user already exists.")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		FullName: fullName,
		Email:    email,
		Password: string(hashedPassword),
		Role:     "admin",
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	log.Info("✅ Admin user seeded successfully")
	return nil
}
