package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/okemsocial/okem_social/handlers"
	"github.com/okemsocial/okem_social/middleware"
)

func NotificationRoutes(app *fiber.App, h *handlers.NotificationHandler) {
	api := app.Group("/api/v1")

	notifications := api.Group("/notifications", middleware.Protected())
	notifications.Get("", h.ListNotifications)
	notifications.Get("/unread-count", h.UnreadCount)
	notifications.Post("/read-all", h.MarkAllRead)
	notifications.Post("/:id/read", h.MarkRead)
	notifications.Post("", middleware.AdminRequired(), h.CreateNotification)
}
