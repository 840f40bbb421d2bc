package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/models"
)

func newTestChatService(rooms *stubRoomRepo, messages *stubMessageRepo, oracle *stubOracle, broadcast *stubBroadcaster) ChatService {
	return NewChatService(messages, rooms, oracle, broadcast, nil, 10, newTestValidator(), zerolog.Nop())
}

func TestChatServicePostSanitizesAndBroadcasts(t *testing.T) {
	rooms := newStubRoomRepo()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(room.ID, "student-1", models.RoleParticipant)
	messages := newStubMessageRepo()
	broadcast := &stubBroadcaster{}
	svc := newTestChatService(rooms, messages, newStubOracle(), broadcast)

	author := Identity{ID: "student-1", Name: "Alice"}
	message, err := svc.Post(context.Background(), room.ID, author, dto.MessageCreateRequest{
		Content: "<script>alert(1)</script>hello there",
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", message.Content)
	require.Equal(t, models.MessageTypeText, message.Type)
	require.Equal(t, "Alice", message.UserName)

	require.Len(t, broadcast.messages, 1)
	require.Equal(t, room.ID, broadcast.rooms[0])
	require.Equal(t, message.ID, broadcast.messages[0].ID)
}

func TestChatServicePostRequiresOpenParticipant(t *testing.T) {
	rooms := newStubRoomRepo()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	svc := newTestChatService(rooms, newStubMessageRepo(), newStubOracle(), &stubBroadcaster{})

	_, err := svc.Post(context.Background(), room.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestChatServicePostRejectsEmptyAfterSanitization(t *testing.T) {
	rooms := newStubRoomRepo()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(room.ID, "student-1", models.RoleParticipant)
	svc := newTestChatService(rooms, newStubMessageRepo(), newStubOracle(), &stubBroadcaster{})

	_, err := svc.Post(context.Background(), room.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{
		Content: "<script>alert(1)</script>",
	})
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestChatServicePostValidatesParentRoom(t *testing.T) {
	rooms := newStubRoomRepo()
	first := rooms.addRoom(models.Room{RoomID: "darsy_aaaa1111", CourseID: 7, HostID: "teacher-1"})
	second := rooms.addRoom(models.Room{RoomID: "darsy_bbbb2222", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(first.ID, "student-1", models.RoleParticipant)
	rooms.addOpenParticipant(second.ID, "student-1", models.RoleParticipant)
	messages := newStubMessageRepo()
	svc := newTestChatService(rooms, messages, newStubOracle(), &stubBroadcaster{})

	parent, err := svc.Post(context.Background(), second.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{Content: "parent"})
	require.NoError(t, err)

	// A reply must live in the same room as its parent.
	_, err = svc.Post(context.Background(), first.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{
		Content:  "reply",
		ParentID: &parent.ID,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChatServiceEditIsAuthorOnly(t *testing.T) {
	rooms := newStubRoomRepo()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(room.ID, "student-1", models.RoleParticipant)
	messages := newStubMessageRepo()
	svc := newTestChatService(rooms, messages, newStubOracle(), &stubBroadcaster{})

	posted, err := svc.Post(context.Background(), room.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{Content: "original"})
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), posted.ID, Identity{ID: "student-2"}, dto.MessageEditRequest{Content: "hijacked"})
	require.ErrorIs(t, err, ErrPermissionDenied)

	edited, err := svc.Edit(context.Background(), posted.ID, Identity{ID: "student-1"}, dto.MessageEditRequest{Content: "updated"})
	require.NoError(t, err)
	require.Equal(t, "updated", edited.Content)
	require.True(t, edited.IsEdited)
	require.NotNil(t, edited.EditedAt)
}

func TestChatServiceDeleteAllowsAuthorAndHost(t *testing.T) {
	rooms := newStubRoomRepo()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(room.ID, "student-1", models.RoleParticipant)
	messages := newStubMessageRepo()
	svc := newTestChatService(rooms, messages, newStubOracle(), &stubBroadcaster{})

	posted, err := svc.Post(context.Background(), room.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{Content: "first"})
	require.NoError(t, err)

	// Attach the room so the host check can resolve.
	stored := messages.messages[posted.ID]
	stored.Room = &room
	messages.messages[posted.ID] = stored

	err = svc.Delete(context.Background(), posted.ID, Identity{ID: "student-2"})
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, svc.Delete(context.Background(), posted.ID, Identity{ID: "teacher-1"}))
}

func TestChatServiceListIsSilentlyEmptyForOutsiders(t *testing.T) {
	rooms := newStubRoomRepo()
	oracle := newStubOracle()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(room.ID, "student-1", models.RoleParticipant)
	messages := newStubMessageRepo()
	svc := newTestChatService(rooms, messages, oracle, &stubBroadcaster{})

	_, err := svc.Post(context.Background(), room.ID, Identity{ID: "student-1"}, dto.MessageCreateRequest{Content: "hello"})
	require.NoError(t, err)

	outsider, err := svc.List(context.Background(), room.ID, Identity{ID: "student-9"}, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Empty(t, outsider)

	oracle.enrolled[oracleKey("student-9", 7)] = true
	visible, err := svc.List(context.Background(), room.ID, Identity{ID: "student-9"}, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
}
