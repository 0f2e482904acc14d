package routes

import (
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App, appName string) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to " + appName + " API",
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
}
