// Package databasetest opens throwaway migrated databases for tests.
package databasetest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/okemsocial/okem_social/database"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an in-memory SQLite database with the realtime schema applied.
// The pool is pinned to one connection so every query sees the same memory
// database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
