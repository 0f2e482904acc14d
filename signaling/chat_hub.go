package signaling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/okemsocial/okem_social/models"
	"github.com/okemsocial/okem_social/services"
	"github.com/okemsocial/okem_social/websocket"
)

// MembershipStore answers who belongs to which conversation.
type MembershipStore interface {
	IsMember(ctx context.Context, conversationID, userID uint) (bool, error)
	ConversationIDsForUser(ctx context.Context, userID uint) ([]uint, error)
	MarkRead(ctx context.Context, conversationID, userID uint, at time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
}

var (
	errNotMember    = &Error{Code: CodeForbidden, Message: "Not a member of this conversation"}
	errEmptyMessage = &Error{Code: CodeInvalidArgument, Message: "Message must have content or attachment"}
)

// ChatHub persists messages and fans them out to conversation groups.
type ChatHub struct {
	registry *websocket.Registry
	members  MembershipStore
	messages MessageStore

	// held across persist and enqueue, one per conversation
	locks keyedLock
}

func NewChatHub(registry *websocket.Registry, members MembershipStore, messages MessageStore) *ChatHub {
	return &ChatHub{registry: registry, members: members, messages: messages}
}

func (h *ChatHub) Registry() *websocket.Registry {
	return h.registry
}

// Connect subscribes c to every conversation its user belongs to.
func (h *ChatHub) Connect(ctx context.Context, c *websocket.Client) error {
	ids, err := h.members.ConversationIDsForUser(ctx, c.UserID)
	if err != nil {
		return fmt.Errorf("load conversations for user %d: %w", c.UserID, err)
	}
	for _, id := range ids {
		h.registry.Join(c, websocket.ConversationGroup(id))
	}
	log.Debugf("user %d joined %d conversation groups", c.UserID, len(ids))
	return nil
}

func (h *ChatHub) Disconnect(c *websocket.Client) int {
	return h.registry.Unregister(c)
}

// SendMessage persists a message from c and delivers it to the
// conversation, the sending connection included.
func (h *ChatHub) SendMessage(ctx context.Context, c *websocket.Client, req SendMessageRequest) (*models.Message, error) {
	if c == nil || c.UserID == 0 {
		return nil, ErrUnauthorized
	}
	return h.send(ctx, c.UserID, c, req)
}

// Post is SendMessage for senders without a live connection, such as the
// REST endpoint.
func (h *ChatHub) Post(ctx context.Context, senderID uint, req SendMessageRequest) (*models.Message, error) {
	if senderID == 0 {
		return nil, ErrUnauthorized
	}
	return h.send(ctx, senderID, nil, req)
}

func (h *ChatHub) send(ctx context.Context, senderID uint, origin *websocket.Client, req SendMessageRequest) (*models.Message, error) {
	if err := h.gate(ctx, req.ConversationID, senderID); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	content := normalize(req.Content)
	attachment := normalize(req.AttachmentURL)
	if content == nil && attachment == nil {
		return nil, errEmptyMessage
	}

	unlock := h.locks.lock(req.ConversationID)
	defer unlock()

	msg := &models.Message{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Content:        content,
		AttachmentURL:  attachment,
	}
	if err := h.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	n := h.deliver(msg, origin, req.ClientMessageID)
	log.Debugf("message %d in conversation %d queued on %d connections", msg.ID, msg.ConversationID, n)
	return msg, nil
}

// deliver queues msg on origin first and then on every other subscriber,
// computing is_mine per recipient.
func (h *ChatHub) deliver(msg *models.Message, origin *websocket.Client, clientMessageID string) int {
	build := func(c *websocket.Client) websocket.Event {
		payload := NewMessagePayload(msg, c.UserID)
		if payload.IsMine {
			payload.ClientMessageID = clientMessageID
		}
		return websocket.Event{Type: EventReceiveMessage, Data: payload}
	}

	n := 0
	originID := uuid.Nil
	if origin != nil {
		originID = origin.ID
		if h.registry.SendToClient(origin, build(origin)) == websocket.Delivered {
			n++
		}
	}
	n += h.registry.SendToGroupFunc(websocket.ConversationGroup(msg.ConversationID), func(c *websocket.Client) (websocket.Event, bool) {
		if c.ID == originID {
			return websocket.Event{}, false
		}
		return build(c), true
	})
	return n
}

func (h *ChatHub) Typing(ctx context.Context, c *websocket.Client, conversationID uint) error {
	if err := h.gate(ctx, conversationID, c.UserID); err != nil {
		return err
	}
	h.registry.SendToGroup(websocket.ConversationGroup(conversationID), websocket.Event{
		Type: EventUserTyping,
		Data: TypingPayload{UserID: c.UserID, ConversationID: conversationID},
	}, c.ID)
	return nil
}

// Seen moves the user's read position up to the message and tells the
// other subscribers.
func (h *ChatHub) Seen(ctx context.Context, c *websocket.Client, conversationID, messageID uint) error {
	if err := h.gate(ctx, conversationID, c.UserID); err != nil {
		return err
	}

	msg, err := h.messages.GetByID(ctx, messageID)
	if errors.Is(err, services.ErrNotFound) || (err == nil && msg.ConversationID != conversationID) {
		return Errorf(CodeNotFound, "Message not found")
	}
	if err != nil {
		return fmt.Errorf("load message %d: %w", messageID, err)
	}

	if err := h.members.MarkRead(ctx, conversationID, c.UserID, msg.CreatedAt); err != nil {
		return fmt.Errorf("mark conversation %d read: %w", conversationID, err)
	}

	h.registry.SendToGroup(websocket.ConversationGroup(conversationID), websocket.Event{
		Type: EventMessageSeen,
		Data: SeenPayload{UserID: c.UserID, ConversationID: conversationID, MessageID: messageID},
	}, c.ID)
	return nil
}

func (h *ChatHub) JoinConversation(ctx context.Context, c *websocket.Client, conversationID uint) error {
	if err := h.gate(ctx, conversationID, c.UserID); err != nil {
		return err
	}
	h.registry.Join(c, websocket.ConversationGroup(conversationID))
	return nil
}

// SubscribeUser joins every live connection of userID to the conversation,
// for members added while online.
func (h *ChatHub) SubscribeUser(userID, conversationID uint) int {
	return h.registry.JoinUser(userID, websocket.ConversationGroup(conversationID))
}

func (h *ChatHub) UnsubscribeUser(userID, conversationID uint) int {
	return h.registry.LeaveUser(userID, websocket.ConversationGroup(conversationID))
}

func (h *ChatHub) gate(ctx context.Context, conversationID, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	if conversationID == 0 {
		return Errorf(CodeInvalidArgument, "conversation_id is required")
	}
	ok, err := h.members.IsMember(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check membership of user %d in conversation %d: %w", userID, conversationID, err)
	}
	if !ok {
		return errNotMember
	}
	return nil
}

// normalize maps blank strings to nil.
func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
