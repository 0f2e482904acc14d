package signaling_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okemsocial/okem_social/database/databasetest"
	"github.com/okemsocial/okem_social/models"
	"github.com/okemsocial/okem_social/services"
	"github.com/okemsocial/okem_social/signaling"
	"github.com/okemsocial/okem_social/websocket"
	"github.com/okemsocial/okem_social/websocket/websockettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type chatRig struct {
	db            *gorm.DB
	registry      *websocket.Registry
	hub           *signaling.ChatHub
	conversations *services.ConversationService
	messages      *services.MessageService
	users         []models.User
}

func newChatRig(t *testing.T, users int) *chatRig {
	t.Helper()
	db := databasetest.Open(t)
	rig := &chatRig{
		db:            db,
		registry:      newRegistry(t),
		conversations: services.NewConversationService(db),
		messages:      services.NewMessageService(db),
	}
	rig.hub = signaling.NewChatHub(rig.registry, rig.conversations, rig.messages)

	for i := 0; i < users; i++ {
		u := models.User{
			FullName: fmt.Sprintf("User %d", i+1),
			Email:    fmt.Sprintf("user%d@okem.social", i+1),
			Password: "x",
		}
		require.NoError(t, db.Create(&u).Error)
		rig.users = append(rig.users, u)
	}
	return rig
}

func (rig *chatRig) conversation(t *testing.T, members ...int) *models.Conversation {
	t.Helper()
	ids := make([]uint, 0, len(members))
	for _, i := range members {
		ids = append(ids, rig.users[i].ID)
	}
	conv, err := rig.conversations.Create(context.Background(), nil, ids)
	require.NoError(t, err)
	return conv
}

func (rig *chatRig) connect(t *testing.T, user int) (*websocket.Client, *websockettest.Conn) {
	t.Helper()
	c, conn := connect(rig.registry, rig.users[user].ID)
	require.NoError(t, rig.hub.Connect(context.Background(), c))
	return c, conn
}

func text(s string) *string { return &s }

func TestSendMessageComputesIsMinePerRecipient(t *testing.T) {
	rig := newChatRig(t, 2)
	conv := rig.conversation(t, 0, 1)
	sender, senderConn := rig.connect(t, 0)
	_, senderTabConn := rig.connect(t, 0)
	_, recipientConn := rig.connect(t, 1)
	ctx := context.Background()

	msg, err := rig.hub.SendMessage(ctx, sender, signaling.SendMessageRequest{
		ConversationID:  conv.ID,
		Content:         text("hi"),
		ClientMessageID: "local-1",
	})
	require.NoError(t, err)

	var stored models.Message
	require.NoError(t, rig.db.First(&stored, msg.ID).Error)
	assert.Equal(t, rig.users[0].ID, stored.SenderID)
	assert.Equal(t, "hi", *stored.Content)

	for _, conn := range []*websockettest.Conn{senderConn, senderTabConn} {
		var got signaling.MessagePayload
		websockettest.Decode(t, conn.Expect(t, signaling.EventReceiveMessage), &got)
		assert.Equal(t, "hi", *got.Content)
		assert.True(t, got.IsMine)
		assert.Equal(t, "local-1", got.ClientMessageID)
		assert.Equal(t, "User 1", got.Sender.FullName)
	}

	var got signaling.MessagePayload
	websockettest.Decode(t, recipientConn.Expect(t, signaling.EventReceiveMessage), &got)
	assert.Equal(t, "hi", *got.Content)
	assert.False(t, got.IsMine)
	assert.Empty(t, got.ClientMessageID)
	assert.Equal(t, msg.ID, got.ID)

	senderConn.Quiet(t, 20*time.Millisecond)
}

func TestSendMessageValidatesBody(t *testing.T) {
	rig := newChatRig(t, 2)
	conv := rig.conversation(t, 0, 1)
	sender, _ := rig.connect(t, 0)
	ctx := context.Background()

	_, err := rig.hub.SendMessage(ctx, sender, signaling.SendMessageRequest{ConversationID: conv.ID, Content: text("   ")})
	assert.Equal(t, signaling.CodeInvalidArgument, signaling.CodeOf(err))
	assert.Equal(t, "Message must have content or attachment", signaling.PublicMessage(err))

	_, err = rig.hub.SendMessage(ctx, sender, signaling.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        text(strings.Repeat("a", models.MaxMessageLength+1)),
	})
	assert.Equal(t, signaling.CodeInvalidArgument, signaling.CodeOf(err))

	msg, err := rig.hub.SendMessage(ctx, sender, signaling.SendMessageRequest{
		ConversationID: conv.ID,
		AttachmentURL:  text("https://res.cloudinary.com/okem/image/upload/v1/cat.png"),
	})
	require.NoError(t, err)
	assert.Nil(t, msg.Content)

	var count int64
	rig.db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestNonMemberIsForbidden(t *testing.T) {
	rig := newChatRig(t, 3)
	conv := rig.conversation(t, 0, 1)
	member, _ := rig.connect(t, 0)
	outsider, outsiderConn := rig.connect(t, 2)
	ctx := context.Background()

	msg, err := rig.hub.SendMessage(ctx, member, signaling.SendMessageRequest{ConversationID: conv.ID, Content: text("private")})
	require.NoError(t, err)

	_, err = rig.hub.SendMessage(ctx, outsider, signaling.SendMessageRequest{ConversationID: conv.ID, Content: text("let me in")})
	assert.Equal(t, signaling.CodeForbidden, signaling.CodeOf(err))
	_, err = rig.hub.SendMessage(ctx, outsider, signaling.SendMessageRequest{ConversationID: conv.ID, Content: text("  ")})
	assert.Equal(t, signaling.CodeForbidden, signaling.CodeOf(err))
	assert.Equal(t, signaling.CodeForbidden, signaling.CodeOf(rig.hub.Typing(ctx, outsider, conv.ID)))
	assert.Equal(t, signaling.CodeForbidden, signaling.CodeOf(rig.hub.Seen(ctx, outsider, conv.ID, msg.ID)))
	assert.Equal(t, signaling.CodeForbidden, signaling.CodeOf(rig.hub.JoinConversation(ctx, outsider, conv.ID)))

	assert.False(t, rig.registry.InGroup(outsider, websocket.ConversationGroup(conv.ID)))
	outsiderConn.Quiet(t, 20*time.Millisecond)
}

func TestDeliveryOrderMatchesPersistenceOrder(t *testing.T) {
	rig := newChatRig(t, 3)
	conv := rig.conversation(t, 0, 1, 2)
	a, _ := rig.connect(t, 0)
	b, _ := rig.connect(t, 1)
	_, watcher := rig.connect(t, 2)
	ctx := context.Background()

	const perSender = 20
	var wg sync.WaitGroup
	for _, c := range []*websocket.Client{a, b} {
		wg.Add(1)
		go func(c *websocket.Client) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := rig.hub.SendMessage(ctx, c, signaling.SendMessageRequest{
					ConversationID: conv.ID,
					Content:        text(fmt.Sprintf("%d-%d", c.UserID, i)),
				})
				assert.NoError(t, err)
			}
		}(c)
	}
	wg.Wait()

	var persisted []uint
	require.NoError(t, rig.db.Model(&models.Message{}).Order("id").Pluck("id", &persisted).Error)
	require.Len(t, persisted, 2*perSender)

	observed := make([]uint, 0, len(persisted))
	for range persisted {
		observed = append(observed, watcher.Expect(t, signaling.EventReceiveMessage).Data.(signaling.MessagePayload).ID)
	}
	assert.Equal(t, persisted, observed)
}

func TestTypingReachesOtherSubscribersOnly(t *testing.T) {
	rig := newChatRig(t, 2)
	conv := rig.conversation(t, 0, 1)
	typist, typistConn := rig.connect(t, 0)
	_, otherConn := rig.connect(t, 1)

	require.NoError(t, rig.hub.Typing(context.Background(), typist, conv.ID))

	ev := otherConn.Expect(t, signaling.EventUserTyping)
	assert.Equal(t, signaling.TypingPayload{UserID: rig.users[0].ID, ConversationID: conv.ID}, ev.Data)
	typistConn.Quiet(t, 20*time.Millisecond)
}

func TestSeenNeverMovesReadPositionBackwards(t *testing.T) {
	rig := newChatRig(t, 2)
	conv := rig.conversation(t, 0, 1)
	reader, _ := rig.connect(t, 1)
	_, senderConn := rig.connect(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := &models.Message{ConversationID: conv.ID, SenderID: rig.users[0].ID, Content: text("first"), CreatedAt: base}
	newer := &models.Message{ConversationID: conv.ID, SenderID: rig.users[0].ID, Content: text("second"), CreatedAt: base.Add(time.Minute)}
	require.NoError(t, rig.messages.Create(ctx, older))
	require.NoError(t, rig.messages.Create(ctx, newer))

	require.NoError(t, rig.hub.Seen(ctx, reader, conv.ID, newer.ID))
	require.NoError(t, rig.hub.Seen(ctx, reader, conv.ID, older.ID))

	member, err := rig.conversations.Member(ctx, conv.ID, rig.users[1].ID)
	require.NoError(t, err)
	require.NotNil(t, member.LastReadAt)
	assert.True(t, member.LastReadAt.Equal(newer.CreatedAt), "last_read_at = %s", member.LastReadAt)

	ev := senderConn.Expect(t, signaling.EventMessageSeen)
	assert.Equal(t, signaling.SeenPayload{UserID: rig.users[1].ID, ConversationID: conv.ID, MessageID: newer.ID}, ev.Data)
	senderConn.Expect(t, signaling.EventMessageSeen)
}

func TestSeenRequiresMessageInConversation(t *testing.T) {
	rig := newChatRig(t, 3)
	conv := rig.conversation(t, 0, 1)
	elsewhere := rig.conversation(t, 0, 2)
	reader, _ := rig.connect(t, 0)
	ctx := context.Background()

	foreign := &models.Message{ConversationID: elsewhere.ID, SenderID: rig.users[2].ID, Content: text("other room")}
	require.NoError(t, rig.messages.Create(ctx, foreign))

	assert.Equal(t, signaling.CodeNotFound, signaling.CodeOf(rig.hub.Seen(ctx, reader, conv.ID, foreign.ID)))
	assert.Equal(t, signaling.CodeNotFound, signaling.CodeOf(rig.hub.Seen(ctx, reader, conv.ID, 9999)))

	member, err := rig.conversations.Member(ctx, conv.ID, rig.users[0].ID)
	require.NoError(t, err)
	assert.Nil(t, member.LastReadAt)
}

func TestJoinConversationCreatedAfterConnect(t *testing.T) {
	rig := newChatRig(t, 2)
	c, conn := rig.connect(t, 1)
	conv := rig.conversation(t, 0, 1)
	group := websocket.ConversationGroup(conv.ID)
	ctx := context.Background()

	assert.False(t, rig.registry.InGroup(c, group))
	require.NoError(t, rig.hub.JoinConversation(ctx, c, conv.ID))
	assert.True(t, rig.registry.InGroup(c, group))

	_, err := rig.hub.Post(ctx, rig.users[0].ID, signaling.SendMessageRequest{ConversationID: conv.ID, Content: text("welcome")})
	require.NoError(t, err)
	var got signaling.MessagePayload
	websockettest.Decode(t, conn.Expect(t, signaling.EventReceiveMessage), &got)
	assert.Equal(t, "welcome", *got.Content)
	assert.False(t, got.IsMine)
}

func TestSubscribeUserFollowsMembershipChanges(t *testing.T) {
	rig := newChatRig(t, 3)
	group, err := rig.conversations.Create(context.Background(), text("crew"), []uint{rig.users[0].ID, rig.users[1].ID, rig.users[2].ID})
	require.NoError(t, err)
	newcomer, _ := connect(rig.registry, 99)
	tab, _ := connect(rig.registry, 99)

	assert.Equal(t, 2, rig.hub.SubscribeUser(99, group.ID))
	assert.True(t, rig.registry.InGroup(newcomer, websocket.ConversationGroup(group.ID)))
	assert.True(t, rig.registry.InGroup(tab, websocket.ConversationGroup(group.ID)))

	assert.Equal(t, 2, rig.hub.UnsubscribeUser(99, group.ID))
	assert.False(t, rig.registry.InGroup(newcomer, websocket.ConversationGroup(group.ID)))
}

func TestPostEchoesToSenderConnections(t *testing.T) {
	rig := newChatRig(t, 2)
	conv := rig.conversation(t, 0, 1)
	_, senderConn := rig.connect(t, 0)
	ctx := context.Background()

	_, err := rig.hub.Post(ctx, rig.users[0].ID, signaling.SendMessageRequest{
		ConversationID:  conv.ID,
		Content:         text("from rest"),
		ClientMessageID: "rest-1",
	})
	require.NoError(t, err)

	var got signaling.MessagePayload
	websockettest.Decode(t, senderConn.Expect(t, signaling.EventReceiveMessage), &got)
	assert.True(t, got.IsMine)
	assert.Equal(t, "rest-1", got.ClientMessageID)

	_, err = rig.hub.Post(ctx, 0, signaling.SendMessageRequest{ConversationID: conv.ID, Content: text("x")})
	assert.Equal(t, signaling.CodeUnauthorized, signaling.CodeOf(err))
}

func TestDisconnectLeavesConversationGroups(t *testing.T) {
	rig := newChatRig(t, 2)
	conv := rig.conversation(t, 0, 1)
	c, conn := rig.connect(t, 0)
	group := websocket.ConversationGroup(conv.ID)

	require.Equal(t, 1, rig.registry.GroupSize(group))
	assert.Equal(t, 0, rig.hub.Disconnect(c))
	assert.Equal(t, 0, rig.registry.GroupSize(group))
	assert.True(t, conn.Closed())
}

type openMembership struct{}

func (openMembership) IsMember(context.Context, uint, uint) (bool, error) {
	return true, nil
}

func (openMembership) ConversationIDsForUser(context.Context, uint) ([]uint, error) {
	return nil, nil
}

func (openMembership) MarkRead(context.Context, uint, uint, time.Time) error {
	return nil
}

// stalledMessages holds every write to one conversation until release is
// closed.
type stalledMessages struct {
	stalled uint
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	next uint
}

func (s *stalledMessages) Create(_ context.Context, msg *models.Message) error {
	if msg.ConversationID == s.stalled {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	msg.ID = s.next
	msg.CreatedAt = time.Now()
	return nil
}

func (s *stalledMessages) GetByID(context.Context, uint) (*models.Message, error) {
	return nil, services.ErrNotFound
}

func TestSlowWriteBlocksOnlyItsOwnConversation(t *testing.T) {
	store := &stalledMessages{stalled: 1, entered: make(chan struct{}, 2), release: make(chan struct{})}
	hub := signaling.NewChatHub(newRegistry(t), openMembership{}, store)
	sender, _ := connect(hub.Registry(), 5)
	ctx := context.Background()

	send := func(conversationID uint) <-chan error {
		done := make(chan error, 1)
		go func() {
			_, err := hub.SendMessage(ctx, sender, signaling.SendMessageRequest{ConversationID: conversationID, Content: text("hi")})
			done <- err
		}()
		return done
	}

	first := send(1)
	<-store.entered

	// 65 shares nothing with 1, whatever a modulo would say.
	for _, id := range []uint{65, 2, 129} {
		select {
		case err := <-send(id):
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatalf("send to conversation %d waited on conversation 1", id)
		}
	}

	second := send(1)
	select {
	case <-second:
		t.Fatal("second send to conversation 1 overtook the stalled one")
	case <-time.After(20 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
}
