package models

import (
	"time"

	"gorm.io/datatypes"
)

// Participant roles within a live room.
const (
	RoleHost        = "host"
	RoleModerator   = "moderator"
	RoleParticipant = "participant"
)

// Room represents a live video/chat session tied to a course.
// A room is active exactly while its host holds an open participant record.
type Room struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	RoomID          string            `gorm:"size:100;uniqueIndex;not null" json:"room_id"`
	CourseID        uint              `gorm:"index;not null" json:"course_id"`
	LessonID        *uint             `gorm:"index" json:"lesson_id,omitempty"`
	HostID          string            `gorm:"size:64;index;not null" json:"host_id"`
	Title           string            `gorm:"size:200;not null" json:"title"`
	Description     string            `gorm:"type:text" json:"description"`
	IsActive        bool              `gorm:"not null;default:false" json:"is_active"`
	MaxParticipants int               `gorm:"not null;default:50" json:"max_participants"`
	Settings        datatypes.JSONMap `gorm:"type:json" json:"settings"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	Participants    []RoomParticipant `gorm:"constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

// RoomParticipant is a user's membership record in a room. At most one record
// exists per (room, user); leaving closes the record, rejoining reopens it.
type RoomParticipant struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RoomID          uint       `gorm:"index;not null;uniqueIndex:idx_room_user" json:"room_id"`
	UserID          string     `gorm:"size:64;not null;uniqueIndex:idx_room_user" json:"user_id"`
	Role            string     `gorm:"size:12;not null;default:participant" json:"role"`
	JoinedAt        time.Time  `json:"joined_at"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
	IsVideoOn       bool       `gorm:"not null;default:true" json:"is_video_on"`
	IsAudioOn       bool       `gorm:"not null;default:true" json:"is_audio_on"`
	IsScreenSharing bool       `gorm:"not null;default:false" json:"is_screen_sharing"`
}

// RoomToken caches a minted RTC/RTM credential for a (room, user, kind) triple.
type RoomToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomID      uint      `gorm:"not null;uniqueIndex:idx_room_user_kind" json:"room_id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_room_user_kind" json:"user_id"`
	Kind        string    `gorm:"size:3;not null;uniqueIndex:idx_room_user_kind" json:"kind"`
	Token       string    `gorm:"type:text;not null" json:"token"`
	ChannelName string    `gorm:"size:100;not null" json:"channel_name"`
	UID         uint      `gorm:"not null" json:"uid"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
