package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

func TestMessageRepositoryListByRoomOrdersAscending(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewMessageRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		message := models.ChatMessage{
			RoomID:    room.ID,
			UserID:    "student-1",
			Type:      models.MessageTypeText,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&message).Error)
	}

	messages, err := repo.ListByRoom(context.Background(), room.ID, MessageFilter{})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "message 0", messages[0].Content)
	require.Equal(t, "message 2", messages[2].Content)
}

func TestMessageRepositoryListByRoomHonoursBeforeCursor(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewMessageRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		message := models.ChatMessage{
			RoomID:    room.ID,
			UserID:    "student-1",
			Type:      models.MessageTypeText,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&message).Error)
	}

	cursor := base.Add(2 * time.Minute)
	messages, err := repo.ListByRoom(context.Background(), room.ID, MessageFilter{Before: cursor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "message 1", messages[1].Content)
}

func TestMessageRepositoryDeleteCascades(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewMessageRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	parent := models.ChatMessage{RoomID: room.ID, UserID: "student-1", Type: models.MessageTypeText, Content: "parent"}
	require.NoError(t, db.Create(&parent).Error)

	reply := models.ChatMessage{RoomID: room.ID, UserID: "student-2", Type: models.MessageTypeText, Content: "reply", ParentID: &parent.ID}
	require.NoError(t, db.Create(&reply).Error)

	reaction := models.MessageReaction{MessageID: parent.ID, UserID: "student-2", Symbol: "👍"}
	require.NoError(t, db.Create(&reaction).Error)

	receipt := models.ReadReceipt{MessageID: parent.ID, UserID: "student-2", ReadAt: time.Now()}
	require.NoError(t, db.Create(&receipt).Error)

	require.NoError(t, repo.Delete(context.Background(), parent.ID))

	var reactionCount, receiptCount int64
	require.NoError(t, db.Model(&models.MessageReaction{}).Where("message_id = ?", parent.ID).Count(&reactionCount).Error)
	require.NoError(t, db.Model(&models.ReadReceipt{}).Where("message_id = ?", parent.ID).Count(&receiptCount).Error)
	require.Zero(t, reactionCount)
	require.Zero(t, receiptCount)

	// The reply survives as a top-level message.
	var orphan models.ChatMessage
	require.NoError(t, db.First(&orphan, reply.ID).Error)
	require.Nil(t, orphan.ParentID)
}

func TestMessageRepositoryDeleteSettlesReactionRollup(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewMessageRepository(db)
	reactions := NewReactionRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)
	message := createTestMessage(t, db, room.ID, "student-1")
	other := createTestMessage(t, db, room.ID, "student-2")

	for _, userID := range []string{"student-2", "student-3"} {
		reaction := models.MessageReaction{MessageID: message.ID, UserID: userID, Symbol: "👍", CreatedAt: time.Now()}
		require.NoError(t, reactions.Set(context.Background(), room.ID, &reaction))
	}
	unrelated := models.MessageReaction{MessageID: other.ID, UserID: "student-4", Symbol: "👍", CreatedAt: time.Now()}
	require.NoError(t, reactions.Set(context.Background(), room.ID, &unrelated))

	require.NoError(t, repo.Delete(context.Background(), message.ID))

	// Only the deleted message's reactions leave the rollup.
	var rollup models.ReactionAnalytics
	require.NoError(t, db.Where("room_id = ? AND symbol = ?", room.ID, "👍").First(&rollup).Error)
	require.Equal(t, int64(1), rollup.Count)
}

func TestMessageRepositoryListThread(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewMessageRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	parent := models.ChatMessage{RoomID: room.ID, UserID: "student-1", Type: models.MessageTypeText, Content: "parent"}
	require.NoError(t, db.Create(&parent).Error)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 2; i++ {
		reply := models.ChatMessage{
			RoomID:    room.ID,
			UserID:    "student-2",
			Type:      models.MessageTypeText,
			Content:   fmt.Sprintf("reply %d", i),
			ParentID:  &parent.ID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&reply).Error)
	}

	replies, err := repo.ListThread(context.Background(), parent.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, "reply 0", replies[0].Content)
}
