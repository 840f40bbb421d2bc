package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// ErrRoomFull indicates a join was rejected because the room reached its
// configured capacity. Surfaced from inside the join transaction so the
// capacity check and the insert are a single atomic step.
var ErrRoomFull = errors.New("room capacity reached")

// RoomRepository persists rooms and participant lifecycle records.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, id uint) (models.Room, error)
	GetByPublicID(ctx context.Context, roomID string) (models.Room, error)
	ListByHost(ctx context.Context, hostID string) ([]models.Room, error)
	ListByCourses(ctx context.Context, courseIDs []uint) ([]models.Room, error)
	Join(ctx context.Context, roomID uint, userID string) (models.RoomParticipant, error)
	Leave(ctx context.Context, roomID uint, userID string) (bool, error)
	Close(ctx context.Context, roomID uint) error
	OpenParticipant(ctx context.Context, roomID uint, userID string) (models.RoomParticipant, error)
	UpdateMediaState(ctx context.Context, participantID uint, updates map[string]interface{}) error
	CountOpen(ctx context.Context, roomID uint) (int64, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) Get(ctx context.Context, id uint) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Preload("Participants").First(&room, id).Error
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) GetByPublicID(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Preload("Participants").Where("room_id = ?", roomID).First(&room).Error
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) ListByHost(ctx context.Context, hostID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).Preload("Participants").
		Where("host_id = ?", hostID).
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) ListByCourses(ctx context.Context, courseIDs []uint) ([]models.Room, error) {
	if len(courseIDs) == 0 {
		return []models.Room{}, nil
	}

	var rooms []models.Room
	err := r.db.WithContext(ctx).Preload("Participants").
		Where("course_id IN ?", courseIDs).
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// Join reopens or creates the (room, user) participant record inside a single
// transaction. The room row is locked on postgres so concurrent joins at the
// capacity boundary serialize; sqlite serializes writers on its own.
func (r *roomRepository) Join(ctx context.Context, roomID uint, userID string) (models.RoomParticipant, error) {
	var participant models.RoomParticipant

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roomQuery := tx
		if tx.Dialector.Name() == "postgres" {
			roomQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var room models.Room
		if err := roomQuery.First(&room, roomID).Error; err != nil {
			return err
		}

		now := time.Now().UTC()

		var existing models.RoomParticipant
		err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).First(&existing).Error
		switch {
		case err == nil && existing.LeftAt == nil:
			// Already open; joining again is a no-op.
			participant = existing
		case err == nil:
			if err := r.checkCapacity(tx, room); err != nil {
				return err
			}
			existing.LeftAt = nil
			existing.JoinedAt = now
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			participant = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := r.checkCapacity(tx, room); err != nil {
				return err
			}
			role := models.RoleParticipant
			if userID == room.HostID {
				role = models.RoleHost
			}
			participant = models.RoomParticipant{
				RoomID:    roomID,
				UserID:    userID,
				Role:      role,
				JoinedAt:  now,
				IsVideoOn: true,
				IsAudioOn: true,
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		default:
			return err
		}

		// Host presence is the sole activation trigger.
		if userID == room.HostID && !room.IsActive {
			updates := map[string]interface{}{
				"is_active":  true,
				"started_at": now,
				"ended_at":   nil,
			}
			if err := tx.Model(&models.Room{}).Where("id = ?", roomID).Updates(updates).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return models.RoomParticipant{}, err
	}

	return participant, nil
}

func (r *roomRepository) checkCapacity(tx *gorm.DB, room models.Room) error {
	var open int64
	err := tx.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND left_at IS NULL", room.ID).
		Count(&open).Error
	if err != nil {
		return err
	}
	if open >= int64(room.MaxParticipants) {
		return ErrRoomFull
	}
	return nil
}

// Leave closes the caller's open participant record. When the host leaves the
// room is deactivated and every other open record is force-closed in the same
// transaction. Returns whether the leaving user was the host.
func (r *roomRepository) Leave(ctx context.Context, roomID uint, userID string) (bool, error) {
	hostLeft := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.First(&room, roomID).Error; err != nil {
			return err
		}

		var participant models.RoomParticipant
		err := tx.Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
			First(&participant).Error
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		participant.LeftAt = &now
		if err := tx.Save(&participant).Error; err != nil {
			return err
		}

		if userID == room.HostID {
			hostLeft = true
			return closeRoomTx(tx, room, now)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return hostLeft, nil
}

// Close deactivates the room and force-closes every open participant.
// Idempotent: closing an already-closed room changes nothing.
func (r *roomRepository) Close(ctx context.Context, roomID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.First(&room, roomID).Error; err != nil {
			return err
		}
		return closeRoomTx(tx, room, time.Now().UTC())
	})
}

func closeRoomTx(tx *gorm.DB, room models.Room, now time.Time) error {
	updates := map[string]interface{}{"is_active": false}
	if room.EndedAt == nil {
		updates["ended_at"] = now
	}
	if err := tx.Model(&models.Room{}).Where("id = ?", room.ID).Updates(updates).Error; err != nil {
		return err
	}

	return tx.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND left_at IS NULL", room.ID).
		Update("left_at", now).Error
}

func (r *roomRepository) OpenParticipant(ctx context.Context, roomID uint, userID string) (models.RoomParticipant, error) {
	var participant models.RoomParticipant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		First(&participant).Error
	if err != nil {
		return models.RoomParticipant{}, err
	}
	return participant, nil
}

func (r *roomRepository) UpdateMediaState(ctx context.Context, participantID uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.RoomParticipant{}).
		Where("id = ?", participantID).
		Updates(updates).Error
}

func (r *roomRepository) CountOpen(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomParticipant{}).
		Where("room_id = ? AND left_at IS NULL", roomID).
		Count(&count).Error
	return count, err
}
