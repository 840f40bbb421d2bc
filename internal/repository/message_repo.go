package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// MessageFilter narrows a room's message listing.
type MessageFilter struct {
	ParentID *uint
	Before   time.Time
	Limit    int
}

// MessageRepository persists chat messages scoped to rooms.
type MessageRepository interface {
	Save(ctx context.Context, message *models.ChatMessage) error
	Get(ctx context.Context, id uint) (models.ChatMessage, error)
	Update(ctx context.Context, message *models.ChatMessage) error
	Delete(ctx context.Context, id uint) error
	ListByRoom(ctx context.Context, roomID uint, filter MessageFilter) ([]models.ChatMessage, error)
	ListThread(ctx context.Context, parentID uint) ([]models.ChatMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) Get(ctx context.Context, id uint) (models.ChatMessage, error) {
	var message models.ChatMessage
	err := r.db.WithContext(ctx).Preload("Room").First(&message, id).Error
	if err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

func (r *messageRepository) Update(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Save(message).Error
}

// Delete removes the message and its dependents. Reactions and read receipts
// go with it; replies survive with their parent reference cleared. Explicit
// statements rather than FK cascades keep sqlite-backed tests honest. The
// reaction rollup is settled in the same transaction so analytics stay in
// step with the ledger.
func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message models.ChatMessage
		if err := tx.First(&message, id).Error; err != nil {
			return err
		}

		var rollups []struct {
			Symbol string
			Total  int64
		}
		if err := tx.Model(&models.MessageReaction{}).
			Select("symbol, COUNT(*) AS total").
			Where("message_id = ?", id).
			Group("symbol").
			Scan(&rollups).Error; err != nil {
			return err
		}
		for _, rollup := range rollups {
			if err := decrementRollupBy(tx, message.RoomID, rollup.Symbol, rollup.Total); err != nil {
				return err
			}
		}

		if err := tx.Where("message_id = ?", id).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ChatMessage{}).Where("parent_id = ?", id).
			Update("parent_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ChatMessage{}, id).Error
	})
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID uint, filter MessageFilter) ([]models.ChatMessage, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if !filter.Before.IsZero() {
		query = query.Where("created_at < ?", filter.Before)
	}

	var messages []models.ChatMessage
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) ListThread(ctx context.Context, parentID uint) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
