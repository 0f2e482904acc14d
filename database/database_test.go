package database_test

import (
	"testing"

	"github.com/okemsocial/okem_social/database"
	"github.com/okemsocial/okem_social/database/databasetest"
	"github.com/okemsocial/okem_social/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedAdminIsIdempotent(t *testing.T) {
	db := databasetest.Open(t)

	require.NoError(t, database.SeedAdmin(db, "admin@okem.social", "s3cret!", "Okem Admin"))
	require.NoError(t, database.SeedAdmin(db, "admin@okem.social", "s3cret!", "Okem Admin"))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte("s3cret!")))
}

func TestSeedAdminRequiresCredentials(t *testing.T) {
	db := databasetest.Open(t)
	assert.Error(t, database.SeedAdmin(db, "", "", ""))
}
