package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/access"
	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/models"
	"github.com/darsy-app/darsy-live-api/internal/observability"
	"github.com/darsy-app/darsy-live-api/internal/repository"
)

// Attachment errors surfaced by PostFile.
var (
	ErrAttachmentTooLarge      = errors.New("attachment exceeds maximum allowed size")
	ErrAttachmentTypeForbidden = errors.New("attachment type not allowed")
)

var allowedAttachmentTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/gif":       {},
	"image/webp":      {},
	"application/pdf": {},
	"application/zip": {},
	"text/plain":      {},
}

// FileStorage abstracts the attachment destination.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// MessageBroadcaster pushes a persisted message to the room's realtime
// subscribers. Every message write flows through it, REST and websocket alike.
type MessageBroadcaster interface {
	BroadcastChatMessage(ctx context.Context, roomID uint, message dto.MessageResponse)
}

// ChatService exposes the room-scoped message store use-cases.
type ChatService interface {
	Post(ctx context.Context, roomID uint, author Identity, payload dto.MessageCreateRequest) (dto.MessageResponse, error)
	PostFile(ctx context.Context, roomID uint, author Identity, file *multipart.FileHeader) (dto.MessageResponse, error)
	Edit(ctx context.Context, messageID uint, actor Identity, payload dto.MessageEditRequest) (dto.MessageResponse, error)
	Delete(ctx context.Context, messageID uint, actor Identity) error
	List(ctx context.Context, roomID uint, actor Identity, query dto.MessageListQuery) ([]dto.MessageResponse, error)
	ListThread(ctx context.Context, parentID uint, actor Identity) ([]dto.MessageResponse, error)
}

type chatService struct {
	messages  repository.MessageRepository
	rooms     repository.RoomRepository
	oracle    access.Oracle
	broadcast MessageBroadcaster
	storage   FileStorage
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	maxUpload int64
}

// NewChatService constructs a chat service. storage may be nil when attachment
// uploads are disabled; broadcast may be nil in tests.
func NewChatService(
	messages repository.MessageRepository,
	rooms repository.RoomRepository,
	oracle access.Oracle,
	broadcast MessageBroadcaster,
	storage FileStorage,
	maxUploadMB int,
	validate *validator.Validate,
	logger zerolog.Logger,
) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}

	return &chatService{
		messages:  messages,
		rooms:     rooms,
		oracle:    oracle,
		broadcast: broadcast,
		storage:   storage,
		validator: validate,
		sanitizer: sanitizer,
		logger:    logger.With().Str("component", "chat_service").Logger(),
		tracer:    otel.Tracer("github.com/darsy-app/darsy-live-api/internal/service"),
		maxUpload: int64(maxUploadMB) * 1024 * 1024,
	}
}

func (s *chatService) Post(ctx context.Context, roomID uint, author Identity, payload dto.MessageCreateRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	if _, err := s.rooms.OpenParticipant(ctx, roomID, author.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrNotParticipant
		}
		return dto.MessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, ErrEmptyContent
	}

	if payload.ParentID != nil {
		parent, err := s.messages.Get(ctx, *payload.ParentID)
		if err != nil {
			return dto.MessageResponse{}, mapNotFound(err)
		}
		if parent.RoomID != roomID {
			return dto.MessageResponse{}, ErrNotFound
		}
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.post", trace.WithAttributes(
		attribute.Int("chat.room_id", int(roomID)),
		attribute.String("chat.author_id", author.ID),
	))
	defer span.End()

	message := models.ChatMessage{
		RoomID:   roomID,
		UserID:   author.ID,
		UserName: author.Name,
		Type:     models.MessageTypeText,
		Content:  clean,
		ParentID: payload.ParentID,
	}

	if err := s.messages.Save(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(message)
	s.publish(spanCtx, roomID, response)
	observability.ChatMessagesSent().WithLabelValues(models.MessageTypeText).Inc()

	return response, nil
}

func (s *chatService) PostFile(ctx context.Context, roomID uint, author Identity, file *multipart.FileHeader) (dto.MessageResponse, error) {
	if file == nil {
		return dto.MessageResponse{}, ErrEmptyContent
	}
	if s.storage == nil {
		return dto.MessageResponse{}, errors.New("attachment storage not configured")
	}

	if _, err := s.rooms.OpenParticipant(ctx, roomID, author.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrNotParticipant
		}
		return dto.MessageResponse{}, err
	}

	if file.Size > s.maxUpload {
		return dto.MessageResponse{}, ErrAttachmentTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return dto.MessageResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxUpload+1)); err != nil {
		return dto.MessageResponse{}, err
	}
	if int64(buf.Len()) > s.maxUpload {
		return dto.MessageResponse{}, ErrAttachmentTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	if _, ok := allowedAttachmentTypes[normalizeMime(detected.String())]; !ok {
		return dto.MessageResponse{}, ErrAttachmentTypeForbidden
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.post_file", trace.WithAttributes(
		attribute.Int("chat.room_id", int(roomID)),
		attribute.String("chat.mime", detected.String()),
	))
	defer span.End()

	url, err := s.storage.Upload(spanCtx, file.Filename, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	size := int64(buf.Len())
	message := models.ChatMessage{
		RoomID:   roomID,
		UserID:   author.ID,
		UserName: author.Name,
		Type:     models.MessageTypeFile,
		Content:  file.Filename,
		FileURL:  url,
		FileName: file.Filename,
		FileSize: &size,
	}

	if err := s.messages.Save(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(message)
	s.publish(spanCtx, roomID, response)
	observability.ChatMessagesSent().WithLabelValues(models.MessageTypeFile).Inc()

	return response, nil
}

func (s *chatService) Edit(ctx context.Context, messageID uint, actor Identity, payload dto.MessageEditRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return dto.MessageResponse{}, mapNotFound(err)
	}

	if message.UserID != actor.ID {
		return dto.MessageResponse{}, ErrPermissionDenied
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, ErrEmptyContent
	}

	now := time.Now().UTC()
	message.Content = clean
	message.IsEdited = true
	message.EditedAt = &now

	if err := s.messages.Update(ctx, &message); err != nil {
		return dto.MessageResponse{}, err
	}

	return dto.NewMessageResponse(message), nil
}

func (s *chatService) Delete(ctx context.Context, messageID uint, actor Identity) error {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return mapNotFound(err)
	}

	isAuthor := message.UserID == actor.ID
	isHost := message.Room != nil && message.Room.HostID == actor.ID
	if !isAuthor && !isHost {
		return ErrPermissionDenied
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return mapNotFound(err)
	}

	s.logger.Info().
		Uint("message_id", messageID).
		Uint("room_id", message.RoomID).
		Str("actor_id", actor.ID).
		Msg("message deleted")

	return nil
}

// List returns the room's messages oldest-first. Callers without room access
// get an empty result rather than a denial; the write paths return explicit
// permission errors instead.
func (s *chatService) List(ctx context.Context, roomID uint, actor Identity, query dto.MessageListQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	allowed, err := canViewRoom(ctx, s.oracle, room, actor)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []dto.MessageResponse{}, nil
	}

	filter := repository.MessageFilter{ParentID: query.ParentID, Limit: query.Limit}
	if query.Before != nil {
		filter.Before = *query.Before
	}

	messages, err := s.messages.ListByRoom(ctx, roomID, filter)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

func (s *chatService) ListThread(ctx context.Context, parentID uint, actor Identity) ([]dto.MessageResponse, error) {
	parent, err := s.messages.Get(ctx, parentID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	room, err := s.rooms.Get(ctx, parent.RoomID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	allowed, err := canViewRoom(ctx, s.oracle, room, actor)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []dto.MessageResponse{}, nil
	}

	messages, err := s.messages.ListThread(ctx, parentID)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

func (s *chatService) publish(ctx context.Context, roomID uint, message dto.MessageResponse) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.BroadcastChatMessage(ctx, roomID, message)
}

func normalizeMime(mime string) string {
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.TrimSpace(strings.ToLower(mime))
}
