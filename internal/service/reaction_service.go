package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/access"
	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/models"
	"github.com/darsy-app/darsy-live-api/internal/repository"
)

// ReactionService exposes the reaction ledger and read-receipt use-cases.
type ReactionService interface {
	Set(ctx context.Context, messageID uint, actor Identity, payload dto.ReactionSetRequest) (dto.ReactionResponse, error)
	Remove(ctx context.Context, messageID uint, actor Identity) error
	List(ctx context.Context, messageID uint, actor Identity) ([]dto.ReactionResponse, error)
	Analytics(ctx context.Context, roomID uint, actor Identity) (dto.ReactionAnalyticsResponse, error)
	MarkRead(ctx context.Context, messageID uint, actor Identity) error
}

type reactionService struct {
	reactions repository.ReactionRepository
	messages  repository.MessageRepository
	rooms     repository.RoomRepository
	oracle    access.Oracle
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReactionService constructs a reaction service.
func NewReactionService(
	reactions repository.ReactionRepository,
	messages repository.MessageRepository,
	rooms repository.RoomRepository,
	oracle access.Oracle,
	validate *validator.Validate,
	logger zerolog.Logger,
) ReactionService {
	return &reactionService{
		reactions: reactions,
		messages:  messages,
		rooms:     rooms,
		oracle:    oracle,
		validator: validate,
		logger:    logger.With().Str("component", "reaction_service").Logger(),
	}
}

func (s *reactionService) Set(ctx context.Context, messageID uint, actor Identity, payload dto.ReactionSetRequest) (dto.ReactionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReactionResponse{}, err
	}

	symbol := strings.TrimSpace(payload.Symbol)
	if !isKnownSymbol(symbol) {
		return dto.ReactionResponse{}, ErrInvalidReaction
	}
	custom := strings.TrimSpace(payload.CustomText)
	if symbol == "custom" && custom == "" {
		return dto.ReactionResponse{}, ErrInvalidReaction
	}
	if symbol != "custom" {
		custom = ""
	}

	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return dto.ReactionResponse{}, mapNotFound(err)
	}

	if err := s.requireOpenParticipant(ctx, message.RoomID, actor.ID); err != nil {
		return dto.ReactionResponse{}, err
	}

	reaction := models.MessageReaction{
		MessageID:  messageID,
		UserID:     actor.ID,
		Symbol:     symbol,
		CustomText: custom,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.reactions.Set(ctx, message.RoomID, &reaction); err != nil {
		return dto.ReactionResponse{}, err
	}

	return dto.NewReactionResponse(reaction), nil
}

func (s *reactionService) Remove(ctx context.Context, messageID uint, actor Identity) error {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return mapNotFound(err)
	}

	if err := s.requireOpenParticipant(ctx, message.RoomID, actor.ID); err != nil {
		return err
	}

	return mapNotFound(s.reactions.Remove(ctx, message.RoomID, messageID, actor.ID))
}

func (s *reactionService) List(ctx context.Context, messageID uint, actor Identity) ([]dto.ReactionResponse, error) {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	room, err := s.rooms.Get(ctx, message.RoomID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	allowed, err := canViewRoom(ctx, s.oracle, room, actor)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []dto.ReactionResponse{}, nil
	}

	reactions, err := s.reactions.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	return dto.NewReactionResponseSlice(reactions), nil
}

// Analytics is host-only: the rollup exposes per-user counts the host uses to
// gauge engagement, which other participants have no business seeing.
func (s *reactionService) Analytics(ctx context.Context, roomID uint, actor Identity) (dto.ReactionAnalyticsResponse, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return dto.ReactionAnalyticsResponse{}, mapNotFound(err)
	}

	if room.HostID != actor.ID {
		return dto.ReactionAnalyticsResponse{}, ErrPermissionDenied
	}

	aggregate, err := s.reactions.AggregateRoom(ctx, roomID)
	if err != nil {
		return dto.ReactionAnalyticsResponse{}, err
	}

	return dto.ReactionAnalyticsResponse{
		RoomID:         roomID,
		Total:          aggregate.Total,
		CountsBySymbol: aggregate.CountsBySymbol,
		CountsByUser:   aggregate.CountsByUser,
	}, nil
}

func (s *reactionService) MarkRead(ctx context.Context, messageID uint, actor Identity) error {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return mapNotFound(err)
	}

	if err := s.requireOpenParticipant(ctx, message.RoomID, actor.ID); err != nil {
		return err
	}

	receipt := models.ReadReceipt{
		MessageID: messageID,
		UserID:    actor.ID,
		ReadAt:    time.Now().UTC(),
	}
	return s.reactions.MarkRead(ctx, &receipt)
}

func (s *reactionService) requireOpenParticipant(ctx context.Context, roomID uint, userID string) error {
	if _, err := s.rooms.OpenParticipant(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotParticipant
		}
		return err
	}
	return nil
}

func isKnownSymbol(symbol string) bool {
	for _, known := range models.ReactionSymbols {
		if symbol == known {
			return true
		}
	}
	return false
}
