package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
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

const defaultMaxParticipants = 50

// RoomService exposes room registry and participant lifecycle use-cases.
type RoomService interface {
	Create(ctx context.Context, actor Identity, payload dto.RoomCreateRequest) (dto.RoomResponse, error)
	Get(ctx context.Context, id uint, actor Identity) (dto.RoomResponse, error)
	List(ctx context.Context, actor Identity) ([]dto.RoomResponse, error)
	Close(ctx context.Context, id uint, actor Identity) error
	Join(ctx context.Context, id uint, actor Identity) (dto.ParticipantResponse, error)
	Leave(ctx context.Context, id uint, actor Identity) error
	UpdateMediaState(ctx context.Context, id uint, actor Identity, payload dto.MediaStateRequest) (dto.ParticipantResponse, error)
}

type roomService struct {
	rooms     repository.RoomRepository
	oracle    access.Oracle
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRoomService constructs a room service.
func NewRoomService(rooms repository.RoomRepository, oracle access.Oracle, validate *validator.Validate, logger zerolog.Logger) RoomService {
	return &roomService{
		rooms:     rooms,
		oracle:    oracle,
		validator: validate,
		logger:    logger.With().Str("component", "room_service").Logger(),
		tracer:    otel.Tracer("github.com/darsy-app/darsy-live-api/internal/service"),
	}
}

func (s *roomService) Create(ctx context.Context, actor Identity, payload dto.RoomCreateRequest) (dto.RoomResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RoomResponse{}, err
	}

	if !actor.IsTeacher() {
		return dto.RoomResponse{}, ErrPermissionDenied
	}

	teaches, err := s.oracle.IsTeacherOf(ctx, actor.ID, payload.CourseID)
	if err != nil {
		return dto.RoomResponse{}, err
	}
	if !teaches {
		return dto.RoomResponse{}, ErrPermissionDenied
	}

	maxParticipants := payload.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = defaultMaxParticipants
	}

	room := models.Room{
		RoomID:          newRoomIdentifier(),
		CourseID:        payload.CourseID,
		LessonID:        payload.LessonID,
		HostID:          actor.ID,
		Title:           strings.TrimSpace(payload.Title),
		Description:     strings.TrimSpace(payload.Description),
		MaxParticipants: maxParticipants,
		Settings:        payload.Settings,
	}

	if err := s.rooms.Create(ctx, &room); err != nil {
		return dto.RoomResponse{}, err
	}

	s.logger.Info().
		Str("room_id", room.RoomID).
		Str("host_id", actor.ID).
		Uint("course_id", room.CourseID).
		Msg("room created")

	return dto.NewRoomResponse(room), nil
}

func (s *roomService) Get(ctx context.Context, id uint, actor Identity) (dto.RoomResponse, error) {
	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		return dto.RoomResponse{}, mapNotFound(err)
	}

	allowed, err := canViewRoom(ctx, s.oracle, room, actor)
	if err != nil {
		return dto.RoomResponse{}, err
	}
	if !allowed {
		return dto.RoomResponse{}, ErrPermissionDenied
	}

	return dto.NewRoomResponse(room), nil
}

// List returns rooms hosted by teachers and rooms of actively-enrolled courses
// for students. Callers with nothing visible get an empty result, not an error.
func (s *roomService) List(ctx context.Context, actor Identity) ([]dto.RoomResponse, error) {
	if actor.IsTeacher() {
		rooms, err := s.rooms.ListByHost(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return dto.NewRoomResponseSlice(rooms), nil
	}

	courseIDs, err := s.oracle.ActiveCourseIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	rooms, err := s.rooms.ListByCourses(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	return dto.NewRoomResponseSlice(rooms), nil
}

func (s *roomService) Close(ctx context.Context, id uint, actor Identity) error {
	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}

	if room.HostID != actor.ID {
		return ErrPermissionDenied
	}

	if err := s.rooms.Close(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("room_id", room.RoomID).Str("host_id", actor.ID).Msg("room closed")
	return nil
}

func (s *roomService) Join(ctx context.Context, id uint, actor Identity) (dto.ParticipantResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "room.join", trace.WithAttributes(
		attribute.String("room.user_id", actor.ID),
	))
	defer span.End()

	room, err := s.rooms.Get(spanCtx, id)
	if err != nil {
		return dto.ParticipantResponse{}, mapNotFound(err)
	}
	span.SetAttributes(attribute.String("room.public_id", room.RoomID))

	allowed, err := canViewRoom(spanCtx, s.oracle, room, actor)
	if err != nil {
		return dto.ParticipantResponse{}, err
	}
	if !allowed {
		return dto.ParticipantResponse{}, ErrPermissionDenied
	}

	participant, err := s.rooms.Join(spanCtx, id, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomFull) {
			return dto.ParticipantResponse{}, ErrRoomFull
		}
		span.RecordError(err)
		return dto.ParticipantResponse{}, err
	}

	observability.RoomJoins().Inc()
	s.logger.Info().Str("room_id", room.RoomID).Str("user_id", actor.ID).Str("role", participant.Role).Msg("participant joined")

	return dto.NewParticipantResponse(participant), nil
}

func (s *roomService) Leave(ctx context.Context, id uint, actor Identity) error {
	hostLeft, err := s.rooms.Leave(ctx, id, actor.ID)
	if err != nil {
		return mapNotFound(err)
	}

	event := s.logger.Info().Uint("room_id", id).Str("user_id", actor.ID)
	if hostLeft {
		event = event.Bool("room_closed", true)
	}
	event.Msg("participant left")

	return nil
}

func (s *roomService) UpdateMediaState(ctx context.Context, id uint, actor Identity, payload dto.MediaStateRequest) (dto.ParticipantResponse, error) {
	participant, err := s.rooms.OpenParticipant(ctx, id, actor.ID)
	if err != nil {
		return dto.ParticipantResponse{}, mapNotFound(err)
	}

	updates := make(map[string]interface{}, 3)
	if payload.IsVideoOn != nil {
		updates["is_video_on"] = *payload.IsVideoOn
		participant.IsVideoOn = *payload.IsVideoOn
	}
	if payload.IsAudioOn != nil {
		updates["is_audio_on"] = *payload.IsAudioOn
		participant.IsAudioOn = *payload.IsAudioOn
	}
	if payload.IsScreenSharing != nil {
		updates["is_screen_sharing"] = *payload.IsScreenSharing
		participant.IsScreenSharing = *payload.IsScreenSharing
	}

	if err := s.rooms.UpdateMediaState(ctx, participant.ID, updates); err != nil {
		return dto.ParticipantResponse{}, err
	}

	return dto.NewParticipantResponse(participant), nil
}

// canViewRoom reports whether the actor may view the room: its host always
// may, everyone else needs an active enrollment in the room's course.
func canViewRoom(ctx context.Context, oracle access.Oracle, room models.Room, actor Identity) (bool, error) {
	if room.HostID == actor.ID {
		return true, nil
	}
	return oracle.IsEnrolled(ctx, actor.ID, room.CourseID)
}

func newRoomIdentifier() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("darsy_%s", hex[:8])
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
