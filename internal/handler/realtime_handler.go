package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/middleware"
	"github.com/darsy-app/darsy-live-api/internal/service"
	"github.com/darsy-app/darsy-live-api/internal/utils"
)

// RealtimeHandler upgrades room channel connections to websocket.
type RealtimeHandler struct {
	realtime service.RealtimeService
	rooms    service.RoomService
	logger   zerolog.Logger
}

// NewRealtimeHandler constructs a handler instance.
func NewRealtimeHandler(realtime service.RealtimeService, rooms service.RoomService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		realtime: realtime,
		rooms:    rooms,
		logger:   logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route. Access is checked before the upgrade so
// an unauthorised caller gets an HTTP error rather than a closed socket.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/:id/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		roomID, err := parseUintParamValue(c, "id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		ctx := withRequestContext(c)
		identity := identityFromContext(c)
		if identity.ID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user id missing")
		}

		if _, err := h.rooms.Get(ctx, roomID, identity); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return utils.SendError(c, fiber.StatusNotFound, "room not found")
			}
			if errors.Is(err, service.ErrPermissionDenied) {
				return utils.SendError(c, fiber.StatusForbidden, "permission denied")
			}
			return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
		}

		c.Locals("room_id", roomID)
		c.Locals("request_ctx", ctx)
		return c.Next()
	})

	router.Get("/:id/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	identity := websocketIdentity(conn)
	roomID, _ := conn.Locals("room_id").(uint)
	if identity.ID == "" || roomID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "invalid connection state"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	correlation := middleware.CorrelationIDFromContext(baseCtx)

	opts := service.RealtimeConnectionOptions{
		RoomID:        roomID,
		Identity:      identity,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", identity.ID).Uint("room_id", roomID).Msg("realtime websocket connected")
	h.realtime.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", identity.ID).Uint("room_id", roomID).Msg("realtime websocket disconnected")
}
