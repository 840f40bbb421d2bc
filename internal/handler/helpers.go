package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/middleware"
	"github.com/darsy-app/darsy-live-api/internal/service"
	"github.com/darsy-app/darsy-live-api/internal/utils"
)

func identityFromContext(c *fiber.Ctx) service.Identity {
	identity := service.Identity{}
	if v, ok := c.Locals("user_id").(string); ok {
		identity.ID = strings.TrimSpace(v)
	}
	if v, ok := c.Locals("user_name").(string); ok {
		identity.Name = strings.TrimSpace(v)
	}
	if v, ok := c.Locals("user_role").(string); ok {
		identity.Role = strings.ToLower(strings.TrimSpace(v))
	}
	return identity
}

func websocketIdentity(conn *websocket.Conn) service.Identity {
	identity := service.Identity{}
	if v, ok := conn.Locals("user_id").(string); ok {
		identity.ID = strings.TrimSpace(v)
	}
	if v, ok := conn.Locals("user_name").(string); ok {
		identity.Name = strings.TrimSpace(v)
	}
	if v, ok := conn.Locals("user_role").(string); ok {
		identity.Role = strings.ToLower(strings.TrimSpace(v))
	}
	return identity
}

func parseUintParamValue(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	if value == "" {
		return 0, fmt.Errorf("%s required", key)
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

// sendServiceError maps the service error taxonomy onto HTTP statuses; a
// validation failure enumerates the offending fields. Unexpected errors are
// logged with caller context and answered with a generic message only.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fieldErr := range validationErrs {
			fields[strings.ToLower(fieldErr.Field())] = fmt.Sprintf("failed on %s", fieldErr.Tag())
		}
		return utils.SendValidationError(c, fields)
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, "permission denied")
	case errors.Is(err, service.ErrNotParticipant):
		return utils.SendError(c, fiber.StatusForbidden, "not a participant of this room")
	case errors.Is(err, service.ErrRoomFull):
		return utils.SendError(c, fiber.StatusConflict, "room is full")
	case errors.Is(err, service.ErrEmptyContent):
		return utils.SendError(c, fiber.StatusBadRequest, "message content empty")
	case errors.Is(err, service.ErrInvalidReaction):
		return utils.SendError(c, fiber.StatusBadRequest, "invalid reaction symbol")
	case errors.Is(err, service.ErrInvalidTokenKind):
		return utils.SendError(c, fiber.StatusBadRequest, "invalid token kind")
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "attachment too large")
	case errors.Is(err, service.ErrAttachmentTypeForbidden):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, "attachment type not allowed")
	default:
		identity := identityFromContext(c)
		logger.Error().Err(err).
			Str("user_id", identity.ID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("unhandled service error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
