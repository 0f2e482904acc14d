package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/okemsocial/okem_social/services"
	"github.com/okemsocial/okem_social/signaling"
)

type MessagingHandler struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	users         *services.UserService
	chat          *signaling.ChatHub
}

func NewMessagingHandler(conversations *services.ConversationService, messages *services.MessageService, users *services.UserService, chat *signaling.ChatHub) *MessagingHandler {
	return &MessagingHandler{conversations: conversations, messages: messages, users: users, chat: chat}
}

type CreateConversationRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=200"`
	MemberIDs []uint  `json:"member_ids" validate:"required,min=1,dive,required"`
}

type DirectConversationRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type RenameConversationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type AddMemberRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type PostMessageRequest struct {
	Content         *string `json:"content"`
	AttachmentURL   *string `json:"attachment_url"`
	ClientMessageID string  `json:"client_message_id"`
}

func (h *MessagingHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	conversations, err := h.conversations.ListForUser(c.UserContext(), userID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(conversations)
}

func (h *MessagingHandler) CreateConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req CreateConversationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.requireUsers(c, req.MemberIDs); err != nil {
		return err
	}

	conversation, err := h.conversations.Create(c.UserContext(), req.Name, append([]uint{userID}, req.MemberIDs...))
	if err != nil {
		return apiError(err)
	}
	for _, m := range conversation.Members {
		h.chat.SubscribeUser(m.UserID, conversation.ID)
	}
	return c.Status(fiber.StatusCreated).JSON(conversation)
}

func (h *MessagingHandler) CreateDirectConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req DirectConversationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.requireUsers(c, []uint{req.UserID}); err != nil {
		return err
	}

	conversation, created, err := h.conversations.GetOrCreateDirect(c.UserContext(), userID, req.UserID)
	if err != nil {
		return apiError(err)
	}
	if !created {
		return c.JSON(conversation)
	}
	h.chat.SubscribeUser(userID, conversation.ID)
	h.chat.SubscribeUser(req.UserID, conversation.ID)
	return c.Status(fiber.StatusCreated).JSON(conversation)
}

func (h *MessagingHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	count, err := h.conversations.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"count": count})
}

func (h *MessagingHandler) GetConversation(c *fiber.Ctx) error {
	_, conversationID, err := h.memberOf(c)
	if err != nil {
		return err
	}

	conversation, err := h.conversations.GetByID(c.UserContext(), conversationID, true)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(conversation)
}

func (h *MessagingHandler) RenameConversation(c *fiber.Ctx) error {
	_, conversationID, err := h.memberOf(c)
	if err != nil {
		return err
	}
	var req RenameConversationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := h.conversations.Rename(c.UserContext(), conversationID, req.Name); err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"message": "Conversation renamed"})
}

func (h *MessagingHandler) AddMember(c *fiber.Ctx) error {
	_, conversationID, err := h.memberOf(c)
	if err != nil {
		return err
	}
	var req AddMemberRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.requireUsers(c, []uint{req.UserID}); err != nil {
		return err
	}

	if err := h.conversations.AddMember(c.UserContext(), conversationID, req.UserID); err != nil {
		return apiError(err)
	}
	h.chat.SubscribeUser(req.UserID, conversationID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Member added"})
}

func (h *MessagingHandler) RemoveMember(c *fiber.Ctx) error {
	_, conversationID, err := h.memberOf(c)
	if err != nil {
		return err
	}
	memberID, err := paramID(c, "userId")
	if err != nil {
		return err
	}

	if err := h.conversations.RemoveMember(c.UserContext(), conversationID, memberID); err != nil {
		return apiError(err)
	}
	h.chat.UnsubscribeUser(memberID, conversationID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MessagingHandler) MarkRead(c *fiber.Ctx) error {
	userID, conversationID, err := h.memberOf(c)
	if err != nil {
		return err
	}

	if err := h.conversations.MarkReadNow(c.UserContext(), conversationID, userID); err != nil {
		return apiError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMessages pages backwards with ?before=<RFC3339>&take=<n>.
func (h *MessagingHandler) ListMessages(c *fiber.Ctx) error {
	userID, conversationID, err := h.memberOf(c)
	if err != nil {
		return err
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "before must be an RFC3339 timestamp")
		}
		before = &t
	}
	take := c.QueryInt("take", services.DefaultMessagePage)

	messages, err := h.messages.List(c.UserContext(), conversationID, before, take)
	if err != nil {
		return apiError(err)
	}

	out := make([]signaling.MessagePayload, 0, len(messages))
	for i := range messages {
		out = append(out, signaling.NewMessagePayload(&messages[i], userID))
	}
	return c.JSON(out)
}

// SendMessage stores a message and fans it out exactly like the chat socket.
func (h *MessagingHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	conversationID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}

	msg, err := h.chat.Post(c.UserContext(), userID, signaling.SendMessageRequest{
		ConversationID:  conversationID,
		Content:         req.Content,
		AttachmentURL:   req.AttachmentURL,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return apiError(err)
	}

	payload := signaling.NewMessagePayload(msg, userID)
	payload.ClientMessageID = req.ClientMessageID
	return c.Status(fiber.StatusCreated).JSON(payload)
}

// memberOf resolves the caller and the :id conversation, failing with 403
// unless the caller belongs to it.
func (h *MessagingHandler) memberOf(c *fiber.Ctx) (uint, uint, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return 0, 0, err
	}
	conversationID, err := paramID(c, "id")
	if err != nil {
		return 0, 0, err
	}

	ok, err := h.conversations.IsMember(c.UserContext(), conversationID, userID)
	if err != nil {
		return 0, 0, apiError(err)
	}
	if !ok {
		return 0, 0, fiber.NewError(fiber.StatusForbidden, "Not a member of this conversation")
	}
	return userID, conversationID, nil
}

func (h *MessagingHandler) requireUsers(c *fiber.Ctx, ids []uint) error {
	missing, err := h.users.MissingIDs(c.UserContext(), ids)
	if err != nil {
		return apiError(err)
	}
	if len(missing) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Unknown users: %v", missing))
	}
	return nil
}
