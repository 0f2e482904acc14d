package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/okemsocial/okem_social/handlers"
	"github.com/okemsocial/okem_social/middleware"
)

func SignalingRoutes(app *fiber.App, h *handlers.SignalingHandler) {
	signaling := app.Group("/signaling", middleware.WebSocketUpgrade())

	signaling.Get("/call", websocket.New(h.ServeCall))
	signaling.Get("/chat", websocket.New(h.ServeChat))
	signaling.Get("/notifications", websocket.New(h.ServeNotifications))
	signaling.Get("/posts", websocket.New(h.ServePosts))
}
