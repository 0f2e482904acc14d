package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/okemsocial/okem_social/handlers"
	"github.com/okemsocial/okem_social/middleware"
)

func MessagingRoutes(app *fiber.App, h *handlers.MessagingHandler) {
	api := app.Group("/api/v1")

	conversations := api.Group("/conversations", middleware.Protected())
	conversations.Get("", h.ListConversations)
	conversations.Post("", h.CreateConversation)
	conversations.Post("/direct", h.CreateDirectConversation)
	conversations.Get("/unread-count", h.UnreadCount)
	conversations.Get("/:id", h.GetConversation)
	conversations.Put("/:id", h.RenameConversation)
	conversations.Post("/:id/members", h.AddMember)
	conversations.Delete("/:id/members/:userId", h.RemoveMember)
	conversations.Post("/:id/read", h.MarkRead)
	conversations.Get("/:id/messages", h.ListMessages)
	conversations.Post("/:id/messages", h.SendMessage)
}
