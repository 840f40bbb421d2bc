package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/models"
	"github.com/darsy-app/darsy-live-api/internal/repository"
)

func newTestReactionService(rooms *stubRoomRepo, messages *stubMessageRepo, reactions *stubReactionRepo, oracle *stubOracle) ReactionService {
	return NewReactionService(reactions, messages, rooms, oracle, newTestValidator(), zerolog.Nop())
}

func seedRoomWithMessage(t *testing.T, rooms *stubRoomRepo, messages *stubMessageRepo) (models.Room, dto.MessageResponse) {
	t.Helper()
	room := rooms.addRoom(models.Room{RoomID: "darsy_ab12cd34", CourseID: 7, HostID: "teacher-1"})
	rooms.addOpenParticipant(room.ID, "student-1", models.RoleParticipant)

	message := models.ChatMessage{RoomID: room.ID, UserID: "teacher-1", Type: models.MessageTypeText, Content: "question"}
	require.NoError(t, messages.Save(context.Background(), &message))

	return room, dto.NewMessageResponse(message)
}

func TestReactionServiceSetRejectsUnknownSymbols(t *testing.T) {
	rooms := newStubRoomRepo()
	messages := newStubMessageRepo()
	_, message := seedRoomWithMessage(t, rooms, messages)
	svc := newTestReactionService(rooms, messages, newStubReactionRepo(), newStubOracle())

	_, err := svc.Set(context.Background(), message.ID, Identity{ID: "student-1"}, dto.ReactionSetRequest{Symbol: "🤖"})
	require.ErrorIs(t, err, ErrInvalidReaction)
}

func TestReactionServiceSetCustomRequiresText(t *testing.T) {
	rooms := newStubRoomRepo()
	messages := newStubMessageRepo()
	_, message := seedRoomWithMessage(t, rooms, messages)
	svc := newTestReactionService(rooms, messages, newStubReactionRepo(), newStubOracle())

	_, err := svc.Set(context.Background(), message.ID, Identity{ID: "student-1"}, dto.ReactionSetRequest{Symbol: "custom"})
	require.ErrorIs(t, err, ErrInvalidReaction)

	reaction, err := svc.Set(context.Background(), message.ID, Identity{ID: "student-1"}, dto.ReactionSetRequest{Symbol: "custom", CustomText: "bravo"})
	require.NoError(t, err)
	require.Equal(t, "custom", reaction.Symbol)
	require.Equal(t, "bravo", reaction.CustomText)
}

func TestReactionServiceSetDropsCustomTextForEmoji(t *testing.T) {
	rooms := newStubRoomRepo()
	messages := newStubMessageRepo()
	_, message := seedRoomWithMessage(t, rooms, messages)
	svc := newTestReactionService(rooms, messages, newStubReactionRepo(), newStubOracle())

	reaction, err := svc.Set(context.Background(), message.ID, Identity{ID: "student-1"}, dto.ReactionSetRequest{Symbol: "👍", CustomText: "ignored"})
	require.NoError(t, err)
	require.Equal(t, "👍", reaction.Symbol)
	require.Empty(t, reaction.CustomText)
}

func TestReactionServiceSetRequiresOpenParticipant(t *testing.T) {
	rooms := newStubRoomRepo()
	messages := newStubMessageRepo()
	_, message := seedRoomWithMessage(t, rooms, messages)
	svc := newTestReactionService(rooms, messages, newStubReactionRepo(), newStubOracle())

	_, err := svc.Set(context.Background(), message.ID, Identity{ID: "student-9"}, dto.ReactionSetRequest{Symbol: "👍"})
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestReactionServiceAnalyticsIsHostOnly(t *testing.T) {
	rooms := newStubRoomRepo()
	messages := newStubMessageRepo()
	reactions := newStubReactionRepo()
	room, _ := seedRoomWithMessage(t, rooms, messages)
	reactions.aggregate = repository.ReactionAggregate{
		Total:          3,
		CountsBySymbol: map[string]int64{"👍": 2, "😂": 1},
		CountsByUser:   map[string]int64{"student-1": 3},
	}
	svc := newTestReactionService(rooms, messages, reactions, newStubOracle())

	_, err := svc.Analytics(context.Background(), room.ID, Identity{ID: "student-1"})
	require.ErrorIs(t, err, ErrPermissionDenied)

	analytics, err := svc.Analytics(context.Background(), room.ID, Identity{ID: "teacher-1"})
	require.NoError(t, err)
	require.Equal(t, int64(3), analytics.Total)
	require.Equal(t, int64(2), analytics.CountsBySymbol["👍"])
}

func TestReactionServiceMarkRead(t *testing.T) {
	rooms := newStubRoomRepo()
	messages := newStubMessageRepo()
	reactions := newStubReactionRepo()
	_, message := seedRoomWithMessage(t, rooms, messages)
	svc := newTestReactionService(rooms, messages, reactions, newStubOracle())

	require.NoError(t, svc.MarkRead(context.Background(), message.ID, Identity{ID: "student-1"}))
	require.NoError(t, svc.MarkRead(context.Background(), message.ID, Identity{ID: "student-1"}))
	require.Len(t, reactions.receipts, 1)

	err := svc.MarkRead(context.Background(), message.ID, Identity{ID: "student-9"})
	require.ErrorIs(t, err, ErrNotParticipant)
}
