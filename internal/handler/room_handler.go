package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/middleware"
	"github.com/darsy-app/darsy-live-api/internal/service"
	"github.com/darsy-app/darsy-live-api/internal/utils"
)

// RoomHandler provides the HTTP endpoints for live rooms: lifecycle,
// membership, media state and token minting.
type RoomHandler struct {
	rooms     service.RoomService
	tokens    service.TokenService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoomHandler constructs a handler instance.
func NewRoomHandler(rooms service.RoomService, tokens service.TokenService, validator *validator.Validate, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		tokens:    tokens,
		validator: validator,
		logger:    logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register binds the room routes. Room creation is rejected at the router
// before the service-level host check runs.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.RequireRole("teacher"), h.create)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.closeRoom)
	router.Post("/:id/join", h.join)
	router.Post("/:id/leave", h.leave)
	router.Patch("/:id/media", h.updateMedia)
	router.Post("/:id/token", h.mintToken)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var payload dto.RoomCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.rooms.Create(withRequestContext(c), identityFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	rooms, err := h.rooms.List(withRequestContext(c), identityFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "rooms", rooms)
}

func (h *RoomHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	room, err := h.rooms.Get(withRequestContext(c), id, identityFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "room", room)
}

func (h *RoomHandler) closeRoom(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.rooms.Close(withRequestContext(c), id, identityFromContext(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "room closed", nil)
}

func (h *RoomHandler) join(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	participant, err := h.rooms.Join(withRequestContext(c), id, identityFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "joined room", participant)
}

func (h *RoomHandler) leave(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.rooms.Leave(withRequestContext(c), id, identityFromContext(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "left room", nil)
}

func (h *RoomHandler) updateMedia(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MediaStateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	participant, err := h.rooms.UpdateMediaState(withRequestContext(c), id, identityFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "media state updated", participant)
}

func (h *RoomHandler) mintToken(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TokenMintRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	token, err := h.tokens.Mint(withRequestContext(c), id, identityFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "token minted", token)
}
