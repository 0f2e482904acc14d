package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/okemsocial/okem_social/signaling"
	"github.com/segmentio/ksuid"
)

const DefaultTypingTTL = 5 * time.Second

// ChatMessage is one entry of a conversation timeline. Pending entries are
// local echoes not yet confirmed by the server.
type ChatMessage struct {
	signaling.MessagePayload
	Pending bool
	Failed  bool
}

type conversationState struct {
	messages []ChatMessage
	known    map[uint]bool
	// echoes maps a client_message_id to its index in messages.
	echoes map[string]int
	typing map[uint]time.Time
	seen   map[uint]uint
}

func newConversationState() *conversationState {
	return &conversationState{
		known:  make(map[uint]bool),
		echoes: make(map[string]int),
		typing: make(map[uint]time.Time),
		seen:   make(map[uint]uint),
	}
}

type ChatOption func(*ChatClient)

func WithChatClock(now func() time.Time) ChatOption {
	return func(c *ChatClient) { c.now = now }
}

func WithTypingTTL(d time.Duration) ChatOption {
	return func(c *ChatClient) { c.typingTTL = d }
}

// ChatClient keeps the timelines a user sees over /signaling/chat.
type ChatClient struct {
	transport Transport
	self      uint
	now       func() time.Time
	typingTTL time.Duration

	mu            sync.Mutex
	conversations map[uint]*conversationState
	lastError     *signaling.ErrorPayload
	// inflight lists unconfirmed sends oldest first. The server answers a
	// connection's sends in order, so a SendMessage error belongs to the head.
	inflight []outgoing
}

type outgoing struct {
	conversationID uint
	localID        string
}

func NewChatClient(transport Transport, self uint, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		transport:     transport,
		self:          self,
		now:           time.Now,
		typingTTL:     DefaultTypingTTL,
		conversations: make(map[uint]*conversationState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ChatClient) conversationLocked(id uint) *conversationState {
	st, ok := c.conversations[id]
	if !ok {
		st = newConversationState()
		c.conversations[id] = st
	}
	return st
}

// Send appends a local echo and sends the message. The returned id is the
// client_message_id the server echoes back.
func (c *ChatClient) Send(ctx context.Context, conversationID uint, content string) (string, error) {
	localID := ksuid.New().String()
	text := strings.TrimSpace(content)

	c.mu.Lock()
	st := c.conversationLocked(conversationID)
	st.messages = append(st.messages, ChatMessage{
		MessagePayload: signaling.MessagePayload{
			ConversationID:  conversationID,
			Sender:          signaling.SenderPayload{ID: c.self},
			Content:         &text,
			CreatedAt:       c.now(),
			IsMine:          true,
			ClientMessageID: localID,
		},
		Pending: true,
	})
	st.echoes[localID] = len(st.messages) - 1
	c.inflight = append(c.inflight, outgoing{conversationID: conversationID, localID: localID})
	c.mu.Unlock()

	err := c.transport.Send(ctx, signaling.ActionSendMessage, signaling.SendMessageRequest{
		ConversationID:  conversationID,
		Content:         &text,
		ClientMessageID: localID,
	})
	if err != nil {
		c.mu.Lock()
		if i, ok := st.echoes[localID]; ok {
			st.messages[i].Failed = true
		}
		c.forgetLocked(localID)
		c.mu.Unlock()
	}
	return localID, err
}

func (c *ChatClient) Typing(ctx context.Context, conversationID uint) error {
	return c.transport.Send(ctx, signaling.ActionTyping, signaling.ConversationRequest{ConversationID: conversationID})
}

// MarkSeen reports that the user has read up to messageID.
func (c *ChatClient) MarkSeen(ctx context.Context, conversationID, messageID uint) error {
	if err := c.transport.Send(ctx, signaling.ActionSeen, signaling.SeenRequest{
		ConversationID: conversationID,
		MessageID:      messageID,
	}); err != nil {
		return err
	}
	c.mu.Lock()
	c.markSeenLocked(conversationID, c.self, messageID)
	c.mu.Unlock()
	return nil
}

func (c *ChatClient) JoinConversation(ctx context.Context, conversationID uint) error {
	return c.transport.Send(ctx, signaling.ActionJoinConversation, signaling.ConversationRequest{ConversationID: conversationID})
}

// Messages returns a copy of the conversation timeline.
func (c *ChatClient) Messages(conversationID uint) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.conversations[conversationID]
	if !ok {
		return nil
	}
	return append([]ChatMessage(nil), st.messages...)
}

// TypingUsers lists who typed in the conversation within the typing TTL.
func (c *ChatClient) TypingUsers(conversationID uint) []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.conversations[conversationID]
	if !ok {
		return nil
	}
	now := c.now()
	var users []uint
	for userID, until := range st.typing {
		if now.Before(until) {
			users = append(users, userID)
			continue
		}
		delete(st.typing, userID)
	}
	return users
}

// SeenBy lists the other users whose read position covers messageID.
func (c *ChatClient) SeenBy(conversationID, messageID uint) []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.conversations[conversationID]
	if !ok {
		return nil
	}
	var users []uint
	for userID, last := range st.seen {
		if userID != c.self && last >= messageID {
			users = append(users, userID)
		}
	}
	return users
}

// LastError returns the most recent Error event from the server.
func (c *ChatClient) LastError() *signaling.ErrorPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *ChatClient) HandleEvent(_ context.Context, ev Event) {
	if err := c.handle(ev); err != nil {
		log.Warnf("[chat] %v", err)
	}
}

func (c *ChatClient) handle(ev Event) error {
	switch ev.Type {
	case signaling.EventReceiveMessage:
		var p signaling.MessagePayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.mu.Lock()
		c.receiveLocked(p)
		c.mu.Unlock()

	case signaling.EventUserTyping:
		var p signaling.TypingPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if p.UserID == c.self {
			return nil
		}
		c.mu.Lock()
		c.conversationLocked(p.ConversationID).typing[p.UserID] = c.now().Add(c.typingTTL)
		c.mu.Unlock()

	case signaling.EventMessageSeen:
		var p signaling.SeenPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.mu.Lock()
		c.markSeenLocked(p.ConversationID, p.UserID, p.MessageID)
		c.mu.Unlock()

	case signaling.EventError:
		var p signaling.ErrorPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		c.mu.Lock()
		c.lastError = &p
		if p.Action == signaling.ActionSendMessage {
			c.failOldestLocked()
		}
		c.mu.Unlock()
	}
	return nil
}

// receiveLocked replaces the matching local echo or appends. Message ids
// already on the timeline are ignored.
func (c *ChatClient) receiveLocked(p signaling.MessagePayload) {
	st := c.conversationLocked(p.ConversationID)
	if st.known[p.ID] {
		return
	}
	st.known[p.ID] = true
	delete(st.typing, p.Sender.ID)

	if p.IsMine && p.ClientMessageID != "" {
		if i, ok := st.echoes[p.ClientMessageID]; ok {
			delete(st.echoes, p.ClientMessageID)
			c.forgetLocked(p.ClientMessageID)
			st.messages[i] = ChatMessage{MessagePayload: p}
			return
		}
	}
	st.messages = append(st.messages, ChatMessage{MessagePayload: p})
}

func (c *ChatClient) markSeenLocked(conversationID, userID, messageID uint) {
	st := c.conversationLocked(conversationID)
	if messageID > st.seen[userID] {
		st.seen[userID] = messageID
	}
}

// failOldestLocked marks the oldest unconfirmed echo failed.
func (c *ChatClient) failOldestLocked() {
	if len(c.inflight) == 0 {
		return
	}
	head := c.inflight[0]
	c.inflight = c.inflight[1:]
	st := c.conversationLocked(head.conversationID)
	if i, ok := st.echoes[head.localID]; ok {
		st.messages[i].Failed = true
	}
}

func (c *ChatClient) forgetLocked(localID string) {
	for i, o := range c.inflight {
		if o.localID == localID {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			return
		}
	}
}
