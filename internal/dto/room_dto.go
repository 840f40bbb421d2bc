package dto

import (
	"time"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// RoomCreateRequest is the payload for creating a live room.
type RoomCreateRequest struct {
	CourseID        uint                   `json:"course_id" validate:"required"`
	LessonID        *uint                  `json:"lesson_id"`
	Title           string                 `json:"title" validate:"required,min=1,max=200"`
	Description     string                 `json:"description" validate:"max=2000"`
	MaxParticipants int                    `json:"max_participants" validate:"omitempty,min=1,max=500"`
	Settings        map[string]interface{} `json:"settings"`
}

// MediaStateRequest is a partial update of a participant's media flags.
// Absent fields leave the stored value untouched.
type MediaStateRequest struct {
	IsVideoOn       *bool `json:"is_video_on"`
	IsAudioOn       *bool `json:"is_audio_on"`
	IsScreenSharing *bool `json:"is_screen_sharing"`
}

// TokenMintRequest selects the credential kind to mint for a room.
type TokenMintRequest struct {
	Kind string `json:"kind" validate:"omitempty,oneof=rtc rtm"`
}

// ParticipantResponse is the serialized membership record.
type ParticipantResponse struct {
	ID              uint       `json:"id"`
	UserID          string     `json:"user_id"`
	Role            string     `json:"role"`
	JoinedAt        time.Time  `json:"joined_at"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
	IsVideoOn       bool       `json:"is_video_on"`
	IsAudioOn       bool       `json:"is_audio_on"`
	IsScreenSharing bool       `json:"is_screen_sharing"`
}

// RoomResponse is the serialized room including open participants.
type RoomResponse struct {
	ID                uint                   `json:"id"`
	RoomID            string                 `json:"room_id"`
	CourseID          uint                   `json:"course_id"`
	LessonID          *uint                  `json:"lesson_id,omitempty"`
	HostID            string                 `json:"host_id"`
	Title             string                 `json:"title"`
	Description       string                 `json:"description"`
	IsActive          bool                   `json:"is_active"`
	MaxParticipants   int                    `json:"max_participants"`
	ParticipantsCount int                    `json:"current_participants_count"`
	Settings          map[string]interface{} `json:"settings,omitempty"`
	Participants      []ParticipantResponse  `json:"participants,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	EndedAt           *time.Time             `json:"ended_at,omitempty"`
}

// TokenResponse carries a minted credential back to the client.
type TokenResponse struct {
	Token       string    `json:"token"`
	ChannelName string    `json:"channel_name"`
	UID         uint      `json:"uid"`
	Kind        string    `json:"kind"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewParticipantResponse converts a participant model into a DTO.
func NewParticipantResponse(p models.RoomParticipant) ParticipantResponse {
	return ParticipantResponse{
		ID:              p.ID,
		UserID:          p.UserID,
		Role:            p.Role,
		JoinedAt:        p.JoinedAt,
		LeftAt:          p.LeftAt,
		IsVideoOn:       p.IsVideoOn,
		IsAudioOn:       p.IsAudioOn,
		IsScreenSharing: p.IsScreenSharing,
	}
}

// NewRoomResponse converts a room model into a DTO. Only open participant
// records count toward the occupancy figure.
func NewRoomResponse(room models.Room) RoomResponse {
	open := 0
	participants := make([]ParticipantResponse, 0, len(room.Participants))
	for _, p := range room.Participants {
		if p.LeftAt == nil {
			open++
		}
		participants = append(participants, NewParticipantResponse(p))
	}

	return RoomResponse{
		ID:                room.ID,
		RoomID:            room.RoomID,
		CourseID:          room.CourseID,
		LessonID:          room.LessonID,
		HostID:            room.HostID,
		Title:             room.Title,
		Description:       room.Description,
		IsActive:          room.IsActive,
		MaxParticipants:   room.MaxParticipants,
		ParticipantsCount: open,
		Settings:          room.Settings,
		Participants:      participants,
		CreatedAt:         room.CreatedAt,
		StartedAt:         room.StartedAt,
		EndedAt:           room.EndedAt,
	}
}

// NewRoomResponseSlice converts a slice of room models into DTOs.
func NewRoomResponseSlice(rooms []models.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}

// NewTokenResponse converts a cached token model into a DTO.
func NewTokenResponse(token models.RoomToken) TokenResponse {
	return TokenResponse{
		Token:       token.Token,
		ChannelName: token.ChannelName,
		UID:         token.UID,
		Kind:        token.Kind,
		ExpiresAt:   token.ExpiresAt,
	}
}
