package dto

// Realtime event type tags exchanged over the room channel.
const (
	EventChatMessage     = "chat_message"
	EventTyping          = "typing"
	EventTypingIndicator = "typing_indicator"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventError           = "error"
)

// RealtimeInbound is a client frame on the room channel. The Type tag
// discriminates the payload; unknown tags yield an inline error event.
type RealtimeInbound struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	ParentID *uint  `json:"parent_id,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// RealtimeEvent is a server frame pushed to room subscribers. Exactly the
// fields relevant to Type are populated.
type RealtimeEvent struct {
	Type     string           `json:"type"`
	Message  *MessageResponse `json:"message,omitempty"`
	User     string           `json:"user,omitempty"`
	UserID   string           `json:"user_id,omitempty"`
	IsTyping *bool            `json:"is_typing,omitempty"`
	Error    string           `json:"error,omitempty"`
}
