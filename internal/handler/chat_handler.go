package handler

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/service"
	"github.com/darsy-app/darsy-live-api/internal/utils"
)

// ChatHandler provides the HTTP endpoints for the room message store and the
// reaction ledger.
type ChatHandler struct {
	chat      service.ChatService
	reactions service.ReactionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatHandler constructs a handler instance.
func NewChatHandler(chat service.ChatService, reactions service.ReactionService, validator *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		reactions: reactions,
		validator: validator,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
	}
}

// RegisterRoomRoutes binds the room-scoped message routes.
func (h *ChatHandler) RegisterRoomRoutes(router fiber.Router) {
	router.Get("/:id/messages", h.listMessages)
	router.Post("/:id/messages", h.postMessage)
	router.Post("/:id/attachments", h.postAttachment)
	router.Get("/:id/reactions/analytics", h.reactionAnalytics)
}

// RegisterMessageRoutes binds the message-scoped routes.
func (h *ChatHandler) RegisterMessageRoutes(router fiber.Router) {
	router.Put("/:id", h.editMessage)
	router.Delete("/:id", h.deleteMessage)
	router.Get("/:id/thread", h.listThread)
	router.Get("/:id/reactions", h.listReactions)
	router.Post("/:id/reactions", h.setReaction)
	router.Delete("/:id/reactions", h.removeReaction)
	router.Post("/:id/read", h.markRead)
}

func (h *ChatHandler) postMessage(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MessageCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.chat.Post(withRequestContext(c), roomID, identityFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message posted", message)
}

func (h *ChatHandler) postAttachment(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file field required")
	}

	message, err := h.chat.PostFile(withRequestContext(c), roomID, identityFromContext(c), file)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment posted", message)
}

func (h *ChatHandler) listMessages(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	query := dto.MessageListQuery{}
	if parent := c.Query("parent_id"); parent != "" {
		parsed, err := strconv.ParseUint(parent, 10, 32)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid parent_id")
		}
		parentID := uint(parsed)
		query.ParentID = &parentID
	}
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.chat.List(withRequestContext(c), roomID, identityFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "messages", messages)
}

func (h *ChatHandler) listThread(c *fiber.Ctx) error {
	parentID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	messages, err := h.chat.ListThread(withRequestContext(c), parentID, identityFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "thread", messages)
}

func (h *ChatHandler) editMessage(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MessageEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.chat.Edit(withRequestContext(c), messageID, identityFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "message updated", message)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.chat.Delete(withRequestContext(c), messageID, identityFromContext(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ChatHandler) setReaction(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReactionSetRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	reaction, err := h.reactions.Set(withRequestContext(c), messageID, identityFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reaction set", reaction)
}

func (h *ChatHandler) removeReaction(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.reactions.Remove(withRequestContext(c), messageID, identityFromContext(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reaction removed", nil)
}

func (h *ChatHandler) listReactions(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	reactions, err := h.reactions.List(withRequestContext(c), messageID, identityFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reactions", reactions)
}

func (h *ChatHandler) reactionAnalytics(c *fiber.Ctx) error {
	roomID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	analytics, err := h.reactions.Analytics(withRequestContext(c), roomID, identityFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reaction analytics", analytics)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	messageID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.reactions.MarkRead(withRequestContext(c), messageID, identityFromContext(c)); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "message marked read", nil)
}
