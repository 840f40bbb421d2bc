package service

import "errors"

// Error taxonomy surfaced by the live-session services. Handlers map these to
// HTTP statuses; NotFound and PermissionDenied stay distinct so clients can
// tell "doesn't exist" from "exists but denied".
var (
	ErrNotFound         = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRoomFull         = errors.New("room is full")
	ErrNotParticipant   = errors.New("caller has no open participant record in the room")
	ErrEmptyContent     = errors.New("message content empty after sanitization")
	ErrInvalidReaction  = errors.New("reaction symbol not in the accepted set")
	ErrInvalidTokenKind = errors.New("token kind must be rtc or rtm")
)

// Identity is the authenticated caller attached by the identity provider.
type Identity struct {
	ID   string
	Name string
	Role string
}

// IsTeacher reports whether the identity carries the teacher role.
func (i Identity) IsTeacher() bool {
	return i.Role == "teacher"
}
