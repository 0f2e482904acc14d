package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okemsocial/okem_social/database/databasetest"
	"github.com/okemsocial/okem_social/models"
	"github.com/okemsocial/okem_social/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedUsers(t *testing.T, db *gorm.DB, n int) []models.User {
	t.Helper()
	users := make([]models.User, n)
	for i := range users {
		users[i] = models.User{
			FullName: fmt.Sprintf("User %d", i+1),
			Email:    fmt.Sprintf("user%d@okem.social", i+1),
			Password: "x",
		}
	}
	require.NoError(t, db.Create(&users).Error)
	return users
}

func strPtr(s string) *string { return &s }

func TestDirectConversationIsCreatedOnce(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	conversations := services.NewConversationService(db)
	ctx := context.Background()

	first, created, err := conversations.GetOrCreateDirect(ctx, users[1].ID, users[0].ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, first.IsGroup)
	assert.Len(t, first.Members, 2)

	again, created, err := conversations.GetOrCreateDirect(ctx, users[0].ID, users[1].ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = conversations.GetOrCreateDirect(ctx, users[0].ID, users[0].ID)
	assert.ErrorIs(t, err, services.ErrSelfConversation)
}

func TestGroupMembershipRules(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 4)
	conversations := services.NewConversationService(db)
	ctx := context.Background()

	group, err := conversations.Create(ctx, strPtr("weekend"), []uint{users[0].ID, users[1].ID, users[2].ID, users[2].ID})
	require.NoError(t, err)
	assert.True(t, group.IsGroup)
	assert.Len(t, group.Members, 3)

	require.NoError(t, conversations.AddMember(ctx, group.ID, users[3].ID))
	require.NoError(t, conversations.AddMember(ctx, group.ID, users[3].ID))
	ids, err := conversations.MemberIDs(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{users[0].ID, users[1].ID, users[2].ID, users[3].ID}, ids)

	require.NoError(t, conversations.RemoveMember(ctx, group.ID, users[0].ID))
	ok, err := conversations.IsMember(ctx, group.ID, users[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, conversations.Rename(ctx, group.ID, "weekday"))
	renamed, err := conversations.GetByID(ctx, group.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "weekday", *renamed.Name)

	direct, _, err := conversations.GetOrCreateDirect(ctx, users[0].ID, users[1].ID)
	require.NoError(t, err)
	assert.ErrorIs(t, conversations.AddMember(ctx, direct.ID, users[2].ID), services.ErrNotGroupConversation)
	assert.ErrorIs(t, conversations.Rename(ctx, direct.ID, "nope"), services.ErrNotGroupConversation)

	_, err = conversations.GetByID(ctx, 9999, false)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestMarkReadNeverRegresses(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	conversations := services.NewConversationService(db)
	ctx := context.Background()

	conv, _, err := conversations.GetOrCreateDirect(ctx, users[0].ID, users[1].ID)
	require.NoError(t, err)

	later := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Minute)

	require.NoError(t, conversations.MarkRead(ctx, conv.ID, users[0].ID, later))
	require.NoError(t, conversations.MarkRead(ctx, conv.ID, users[0].ID, earlier))

	member, err := conversations.Member(ctx, conv.ID, users[0].ID)
	require.NoError(t, err)
	require.NotNil(t, member.LastReadAt)
	assert.True(t, member.LastReadAt.Equal(later), "got %s", member.LastReadAt)
}

func TestMessageCreateTouchesConversationAndLoadsSender(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	conversations := services.NewConversationService(db)
	messages := services.NewMessageService(db)
	ctx := context.Background()

	conv, _, err := conversations.GetOrCreateDirect(ctx, users[0].ID, users[1].ID)
	require.NoError(t, err)

	at := conv.UpdatedAt.Add(time.Hour).UTC()
	msg := &models.Message{ConversationID: conv.ID, SenderID: users[0].ID, Content: strPtr("hi"), CreatedAt: at}
	require.NoError(t, messages.Create(ctx, msg))
	assert.NotZero(t, msg.ID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "User 1", msg.Sender.FullName)

	reloaded, err := conversations.GetByID(ctx, conv.ID, false)
	require.NoError(t, err)
	assert.True(t, reloaded.UpdatedAt.Equal(at))

	got, err := messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", *got.Content)
}

func TestMessageListPagesBackwards(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	conversations := services.NewConversationService(db)
	messages := services.NewMessageService(db)
	ctx := context.Background()

	conv, _, err := conversations.GetOrCreateDirect(ctx, users[0].ID, users[1].ID)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, messages.Create(ctx, &models.Message{
			ConversationID: conv.ID,
			SenderID:       users[i%2].ID,
			Content:        strPtr(fmt.Sprintf("m%d", i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, err := messages.List(ctx, conv.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", *page[0].Content)
	assert.Equal(t, "m4", *page[1].Content)

	before := page[0].CreatedAt
	older, err := messages.List(ctx, conv.ID, &before, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, "m0", *older[0].Content)
}

func TestUnreadCountFollowsReadPosition(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	conversations := services.NewConversationService(db)
	messages := services.NewMessageService(db)
	ctx := context.Background()

	conv, _, err := conversations.GetOrCreateDirect(ctx, users[0].ID, users[1].ID)
	require.NoError(t, err)

	base := time.Now().UTC().Add(time.Minute)
	var last *models.Message
	for i := 0; i < 3; i++ {
		last = &models.Message{ConversationID: conv.ID, SenderID: users[0].ID, Content: strPtr("x"), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, messages.Create(ctx, last))
	}

	count, err := conversations.UnreadCount(ctx, users[1].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	own, err := conversations.UnreadCount(ctx, users[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, own)

	require.NoError(t, conversations.MarkRead(ctx, conv.ID, users[1].ID, last.CreatedAt))
	count, err = conversations.UnreadCount(ctx, users[1].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestNotificationReadState(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	notifications := services.NewNotificationService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, notifications.Create(ctx, &models.Notification{
			UserID: users[0].ID, Type: models.NotificationSystem, Title: fmt.Sprintf("n%d", i),
		}))
	}

	list, err := notifications.ListForUser(ctx, users[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.ErrorIs(t, notifications.MarkRead(ctx, list[0].ID, users[1].ID), services.ErrNotFound)
	require.NoError(t, notifications.MarkRead(ctx, list[0].ID, users[0].ID))
	require.NoError(t, notifications.MarkRead(ctx, list[0].ID, users[0].ID))

	unread, err := notifications.UnreadCount(ctx, users[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	flipped, err := notifications.MarkAllRead(ctx, users[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, flipped)
}

func TestMissingUserIDs(t *testing.T) {
	db := databasetest.Open(t)
	users := seedUsers(t, db, 2)
	svc := services.NewUserService(db)

	missing, err := svc.MissingIDs(context.Background(), []uint{users[0].ID, 4242, users[1].ID, 4242})
	require.NoError(t, err)
	assert.Equal(t, []uint{4242}, missing)
}
