package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

func setupLiveTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Room{},
		&models.RoomParticipant{},
		&models.RoomToken{},
		&models.ChatMessage{},
		&models.MessageReaction{},
		&models.ReadReceipt{},
		&models.ReactionAnalytics{},
	))
	return db
}

func createTestRoom(t *testing.T, db *gorm.DB, hostID string, max int) models.Room {
	t.Helper()
	room := models.Room{
		RoomID:          "darsy_ab12cd34",
		CourseID:        1,
		HostID:          hostID,
		Title:           "Algebra live session",
		MaxParticipants: max,
	}
	require.NoError(t, db.Create(&room).Error)
	return room
}

func TestRoomRepositoryJoinCreatesSingleOpenRow(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	first, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	require.Nil(t, first.LeftAt)

	// A second join while the first is still open reuses the row.
	second, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", room.ID, "student-1").
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRoomRepositoryRejoinReopensClosedRow(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	first, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)

	_, err = repo.Leave(context.Background(), room.ID, "student-1")
	require.NoError(t, err)

	var closed models.RoomParticipant
	require.NoError(t, db.First(&closed, first.ID).Error)
	require.NotNil(t, closed.LeftAt)

	reopened, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, reopened.ID)
	require.Nil(t, reopened.LeftAt)
	require.True(t, reopened.JoinedAt.After(first.JoinedAt) || reopened.JoinedAt.Equal(first.JoinedAt))
}

func TestRoomRepositoryHostJoinActivatesRoom(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	require.False(t, room.IsActive)

	_, err := repo.Join(context.Background(), room.ID, "teacher-1")
	require.NoError(t, err)

	var stored models.Room
	require.NoError(t, db.First(&stored, room.ID).Error)
	require.True(t, stored.IsActive)
	require.NotNil(t, stored.StartedAt)
	require.Nil(t, stored.EndedAt)
}

func TestRoomRepositoryHostLeaveClosesRoomAndCascades(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	_, err := repo.Join(context.Background(), room.ID, "teacher-1")
	require.NoError(t, err)
	_, err = repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	_, err = repo.Join(context.Background(), room.ID, "student-2")
	require.NoError(t, err)

	hostLeft, err := repo.Leave(context.Background(), room.ID, "teacher-1")
	require.NoError(t, err)
	require.True(t, hostLeft)

	var stored models.Room
	require.NoError(t, db.First(&stored, room.ID).Error)
	require.False(t, stored.IsActive)
	require.NotNil(t, stored.EndedAt)

	var open int64
	require.NoError(t, db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND left_at IS NULL", room.ID).
		Count(&open).Error)
	require.Equal(t, int64(0), open, "host leave must close every open participant")
}

func TestRoomRepositoryJoinRejectsWhenFull(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 2)

	_, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	_, err = repo.Join(context.Background(), room.ID, "student-2")
	require.NoError(t, err)

	_, err = repo.Join(context.Background(), room.ID, "student-3")
	require.ErrorIs(t, err, ErrRoomFull)

	// Capacity counts open rows only, so a departure frees the seat.
	_, err = repo.Leave(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	_, err = repo.Join(context.Background(), room.ID, "student-3")
	require.NoError(t, err)
}

func TestRoomRepositoryJoinStillAllowedForOpenParticipantWhenFull(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 1)

	_, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)

	// The open participant's idempotent re-join never trips the capacity check.
	_, err = repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
}

func TestRoomRepositoryUpdateMediaState(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)
	room := createTestRoom(t, db, "teacher-1", 10)

	participant, err := repo.Join(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	require.True(t, participant.IsVideoOn)

	require.NoError(t, repo.UpdateMediaState(context.Background(), participant.ID, map[string]interface{}{
		"is_video_on":       false,
		"is_screen_sharing": true,
	}))

	updated, err := repo.OpenParticipant(context.Background(), room.ID, "student-1")
	require.NoError(t, err)
	require.False(t, updated.IsVideoOn)
	require.True(t, updated.IsAudioOn)
	require.True(t, updated.IsScreenSharing)
}

func TestRoomRepositoryListByCourses(t *testing.T) {
	db := setupLiveTestDB(t)
	repo := NewRoomRepository(db)

	mathRoom := models.Room{RoomID: "darsy_math01", CourseID: 1, HostID: "teacher-1", Title: "Math"}
	bioRoom := models.Room{RoomID: "darsy_bio001", CourseID: 2, HostID: "teacher-2", Title: "Biology"}
	require.NoError(t, db.Create(&mathRoom).Error)
	require.NoError(t, db.Create(&bioRoom).Error)

	rooms, err := repo.ListByCourses(context.Background(), []uint{1})
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, "Math", rooms[0].Title)

	rooms, err = repo.ListByCourses(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, rooms)
}
