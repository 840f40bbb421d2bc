package models

import "time"

// Message types supported by the chat store.
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// ReactionSymbols is the fixed emoji set accepted for reactions. Anything else
// must be submitted with the "custom" tag plus a free-text payload.
var ReactionSymbols = []string{"👍", "👎", "❤️", "😂", "😮", "😢", "😡", "custom"}

// ChatMessage is a single chat payload scoped to a room.
// EditedAt is set if and only if IsEdited is true.
type ChatMessage struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"index;not null" json:"room_id"`
	Room      *Room      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    string     `gorm:"size:64;index;not null" json:"user_id"`
	UserName  string     `gorm:"size:150" json:"user_name"`
	Type      string     `gorm:"size:10;not null;default:text" json:"type"`
	Content   string     `gorm:"type:text" json:"content"`
	FileURL   string     `gorm:"size:500" json:"file_url,omitempty"`
	FileName  string     `gorm:"size:255" json:"file_name,omitempty"`
	FileSize  *int64     `json:"file_size,omitempty"`
	IsEdited  bool       `gorm:"not null;default:false" json:"is_edited"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	ParentID  *uint      `gorm:"index" json:"parent_id,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

// MessageReaction holds at most one reaction per (message, user); setting a
// second reaction replaces the symbol rather than adding a row.
type MessageReaction struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	MessageID  uint         `gorm:"not null;uniqueIndex:idx_message_user" json:"message_id"`
	Message    *ChatMessage `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID     string       `gorm:"size:64;not null;uniqueIndex:idx_message_user" json:"user_id"`
	Symbol     string       `gorm:"size:20;not null" json:"symbol"`
	CustomText string       `gorm:"size:20" json:"custom_text,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ReadReceipt records that a user has seen a message. Append-only.
type ReadReceipt struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	MessageID uint         `gorm:"not null;uniqueIndex:idx_receipt_message_user" json:"message_id"`
	Message   *ChatMessage `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    string       `gorm:"size:64;not null;uniqueIndex:idx_receipt_message_user" json:"user_id"`
	ReadAt    time.Time    `json:"read_at"`
}

// ReactionAnalytics is a per (symbol, room) rollup maintained alongside the
// reaction ledger. It is a cache of the ledger, not the source of truth.
type ReactionAnalytics struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Symbol   string    `gorm:"size:20;not null;uniqueIndex:idx_symbol_room" json:"symbol"`
	RoomID   uint      `gorm:"not null;uniqueIndex:idx_symbol_room" json:"room_id"`
	Count    int64     `gorm:"not null;default:0" json:"count"`
	LastUsed time.Time `json:"last_used"`
}
