package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/darsy-app/darsy-live-api/internal/config"
	"github.com/darsy-app/darsy-live-api/internal/handler"
	"github.com/darsy-app/darsy-live-api/internal/middleware"
	"github.com/darsy-app/darsy-live-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RoomHandler     *handler.RoomHandler
	ChatHandler     *handler.ChatHandler
	RealtimeHandler *handler.RealtimeHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.RoomHandler != nil {
		rooms := api.Group("/rooms", jwtMiddleware)
		deps.RoomHandler.Register(rooms)

		if deps.ChatHandler != nil {
			// Posting goes through the limiter; reads stay unmetered.
			rooms.Use("/:id/messages", postLimiter())
			rooms.Use("/:id/attachments", postLimiter())
			deps.ChatHandler.RegisterRoomRoutes(rooms)
		}

		if deps.RealtimeHandler != nil {
			deps.RealtimeHandler.Register(rooms)
		}
	}

	if deps.ChatHandler != nil {
		messages := api.Group("/messages", jwtMiddleware)
		deps.ChatHandler.RegisterMessageRoutes(messages)
	}
}

func postLimiter() fiber.Handler {
	limiter := middleware.RateLimit("chat-post", 60, time.Minute)
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost {
			return limiter(c)
		}
		return c.Next()
	}
}
