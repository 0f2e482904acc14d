package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/okemsocial/okem_social/services"
	"github.com/okemsocial/okem_social/signaling"
)

type NotificationHandler struct {
	notifications *services.NotificationService
	notifier      *signaling.Notifier
}

func NewNotificationHandler(notifications *services.NotificationService, notifier *signaling.Notifier) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, notifier: notifier}
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	list, err := h.notifications.ListForUser(c.UserContext(), userID, c.QueryInt("take", 50))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(list)
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	count, err := h.notifications.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"count": count})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := h.notifications.MarkRead(c.UserContext(), id, userID); err != nil {
		return apiError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	updated, err := h.notifications.MarkAllRead(c.UserContext(), userID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// CreateNotification lets trusted collaborators push a notification to a
// user. It is mounted behind AdminRequired.
func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req signaling.NotificationInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	n, err := h.notifier.Notify(c.UserContext(), req)
	if err != nil {
		return apiError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}
