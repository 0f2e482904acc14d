package main

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	config "github.com/okemsocial/okem_social/configs"
	"github.com/okemsocial/okem_social/database"
	"github.com/okemsocial/okem_social/handlers"
	"github.com/okemsocial/okem_social/jobs"
	"github.com/okemsocial/okem_social/routes"
	"github.com/okemsocial/okem_social/services"
	"github.com/okemsocial/okem_social/signaling"
	"github.com/okemsocial/okem_social/websocket"
	"github.com/robfig/cron/v3"
)

const appName = "Okem Social"

func main() {
	log.SetLevel(logLevel(config.ConfigDefault("LOG_LEVEL", "info")))

	if config.Config("JWT_SECRET") == "" {
		log.Fatal("🔥 JWT_SECRET is not set")
	}

	database.ConnectDB()
	database.Migrate()
	if email := config.Config("ADMIN_EMAIL"); email != "" {
		err := database.SeedAdmin(database.DB, email, config.Config("ADMIN_PASSWORD"), config.ConfigDefault("ADMIN_FULL_NAME", "Administrator"))
		if err != nil {
			log.Errorf("Failed to seed admin user: %v", err)
		}
	}

	conversations := services.NewConversationService(database.DB)
	messages := services.NewMessageService(database.DB)
	notifications := services.NewNotificationService(database.DB)
	users := services.NewUserService(database.DB)

	registryOpts := []websocket.Option{
		websocket.WithSendBuffer(config.ConfigInt("WS_SEND_BUFFER", websocket.DefaultSendBuffer)),
		websocket.WithPingInterval(config.ConfigDuration("WS_PING_INTERVAL", websocket.DefaultPingInterval)),
	}
	callRegistry := websocket.NewRegistry("call", registryOpts...)
	chatRegistry := websocket.NewRegistry("chat", registryOpts...)
	notificationRegistry := websocket.NewRegistry("notifications", registryOpts...)
	postRegistry := websocket.NewRegistry("posts", registryOpts...)

	notifier := signaling.NewNotifier(notificationRegistry, notifications, users)
	calls := signaling.NewCallManager(callRegistry,
		signaling.WithRingTimeout(config.ConfigDuration("CALL_RING_TIMEOUT", signaling.DefaultRingTimeout)),
		signaling.WithMissedCallHook(notifier.MissedCall),
	)
	chat := signaling.NewChatHub(chatRegistry, conversations, messages)
	posts := signaling.NewPostFeed(postRegistry)

	c := cron.New()
	if err := jobs.Schedule(c, calls); err != nil {
		log.Fatalf("🔥 Failed to schedule jobs: %v", err)
	}
	c.Start()
	log.Info("✅ Cron job for ring timeouts scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       appName,
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  config.ConfigDefault("CORS_ORIGINS", "*"),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.PublicRoutes(app, appName)
	routes.MessagingRoutes(app, handlers.NewMessagingHandler(conversations, messages, users, chat))
	routes.NotificationRoutes(app, handlers.NewNotificationHandler(notifications, notifier))
	routes.UploadRoutes(app)
	routes.SignalingRoutes(app, handlers.NewSignalingHandler(calls, callRegistry, chat, notifier, posts,
		2*config.ConfigDuration("WS_PING_INTERVAL", websocket.DefaultPingInterval)))

	port := config.ConfigDefault("PORT", "8080")
	log.Infof("✅ Server is running on port %s", port)
	err := app.Listen(":" + port)

	c.Stop()
	for _, r := range []*websocket.Registry{callRegistry, chatRegistry, notificationRegistry, postRegistry} {
		r.Close()
	}
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}

func logLevel(name string) log.Level {
	switch strings.ToLower(name) {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
