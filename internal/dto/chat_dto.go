package dto

import (
	"time"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// MessageCreateRequest is the payload for posting a text message to a room.
type MessageCreateRequest struct {
	Content  string `json:"content" validate:"required,min=1,max=4000"`
	ParentID *uint  `json:"parent_id"`
}

// MessageEditRequest replaces a message's content.
type MessageEditRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// MessageListQuery filters a room's message listing.
type MessageListQuery struct {
	ParentID *uint      `query:"parent_id"`
	Before   *time.Time `query:"before"`
	Limit    int        `query:"limit" validate:"omitempty,min=1,max=200"`
}

// ReactionSetRequest sets or replaces the caller's reaction on a message.
type ReactionSetRequest struct {
	Symbol     string `json:"symbol" validate:"required,max=20"`
	CustomText string `json:"custom_text" validate:"omitempty,max=20"`
}

// ReactionResponse is the serialized reaction.
type ReactionResponse struct {
	ID         uint      `json:"id"`
	MessageID  uint      `json:"message_id"`
	UserID     string    `json:"user_id"`
	Symbol     string    `json:"symbol"`
	CustomText string    `json:"custom_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageResponse is the serialized chat message.
type MessageResponse struct {
	ID        uint               `json:"id"`
	RoomID    uint               `json:"room_id"`
	UserID    string             `json:"user_id"`
	UserName  string             `json:"user_name,omitempty"`
	Type      string             `json:"type"`
	Content   string             `json:"content"`
	FileURL   string             `json:"file_url,omitempty"`
	FileName  string             `json:"file_name,omitempty"`
	FileSize  *int64             `json:"file_size,omitempty"`
	IsEdited  bool               `json:"is_edited"`
	EditedAt  *time.Time         `json:"edited_at,omitempty"`
	ParentID  *uint              `json:"parent_id,omitempty"`
	Reactions []ReactionResponse `json:"reactions,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// ReactionAnalyticsResponse aggregates a room's reaction ledger.
type ReactionAnalyticsResponse struct {
	RoomID         uint             `json:"room_id"`
	Total          int64            `json:"total"`
	CountsBySymbol map[string]int64 `json:"counts_by_symbol"`
	CountsByUser   map[string]int64 `json:"counts_by_user"`
}

// NewReactionResponse converts a reaction model into a DTO.
func NewReactionResponse(r models.MessageReaction) ReactionResponse {
	return ReactionResponse{
		ID:         r.ID,
		MessageID:  r.MessageID,
		UserID:     r.UserID,
		Symbol:     r.Symbol,
		CustomText: r.CustomText,
		CreatedAt:  r.CreatedAt,
	}
}

// NewReactionResponseSlice converts reaction models into DTOs.
func NewReactionResponseSlice(reactions []models.MessageReaction) []ReactionResponse {
	out := make([]ReactionResponse, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, NewReactionResponse(r))
	}
	return out
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(m models.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Type:      m.Type,
		Content:   m.Content,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		ParentID:  m.ParentID,
		CreatedAt: m.CreatedAt,
	}
}

// NewMessageResponseSlice converts message models into DTOs.
func NewMessageResponseSlice(messages []models.ChatMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, NewMessageResponse(m))
	}
	return out
}
