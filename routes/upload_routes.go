package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/okemsocial/okem_social/handlers"
	"github.com/okemsocial/okem_social/middleware"
)

func UploadRoutes(app *fiber.App) {
	uploads := app.Group("/api/v1/uploads", middleware.Protected())
	uploads.Get("/signature", handlers.GenerateUploadSignature)
}
