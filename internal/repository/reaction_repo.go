package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// ReactionAggregate is the read-time rollup of a room's reaction ledger.
type ReactionAggregate struct {
	Total          int64
	CountsBySymbol map[string]int64
	CountsByUser   map[string]int64
}

// ReactionRepository persists per-message reactions, read receipts and the
// per-room analytics rollup.
type ReactionRepository interface {
	Set(ctx context.Context, roomID uint, reaction *models.MessageReaction) error
	Remove(ctx context.Context, roomID uint, messageID uint, userID string) error
	ListByMessage(ctx context.Context, messageID uint) ([]models.MessageReaction, error)
	AggregateRoom(ctx context.Context, roomID uint) (ReactionAggregate, error)
	MarkRead(ctx context.Context, receipt *models.ReadReceipt) error
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository constructs a reaction repository backed by GORM.
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

// Set upserts the caller's reaction keyed by (message, user). A repeated call
// replaces the symbol; the analytics rollup is adjusted in the same
// transaction so the cache cannot drift from the ledger.
func (r *reactionRepository) Set(ctx context.Context, roomID uint, reaction *models.MessageReaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous models.MessageReaction
		err := tx.Where("message_id = ? AND user_id = ?", reaction.MessageID, reaction.UserID).
			First(&previous).Error
		hadPrevious := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"symbol", "custom_text", "created_at"}),
		}).Create(reaction).Error; err != nil {
			return err
		}

		// Reload so the caller sees the surviving row's identity after a replace.
		if err := tx.Where("message_id = ? AND user_id = ?", reaction.MessageID, reaction.UserID).
			First(reaction).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if hadPrevious {
			if previous.Symbol == reaction.Symbol {
				return nil
			}
			if err := decrementRollup(tx, roomID, previous.Symbol); err != nil {
				return err
			}
		}

		return incrementRollup(tx, roomID, reaction.Symbol, now)
	})
}

func (r *reactionRepository) Remove(ctx context.Context, roomID uint, messageID uint, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reaction models.MessageReaction
		err := tx.Where("message_id = ? AND user_id = ?", messageID, userID).First(&reaction).Error
		if err != nil {
			return err
		}

		if err := tx.Delete(&reaction).Error; err != nil {
			return err
		}

		return decrementRollup(tx, roomID, reaction.Symbol)
	})
}

func (r *reactionRepository) ListByMessage(ctx context.Context, messageID uint) ([]models.MessageReaction, error) {
	var reactions []models.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

// AggregateRoom computes the analytics from the live ledger, not the rollup,
// so reads stay correct even if the rollup lags.
func (r *reactionRepository) AggregateRoom(ctx context.Context, roomID uint) (ReactionAggregate, error) {
	aggregate := ReactionAggregate{
		CountsBySymbol: make(map[string]int64),
		CountsByUser:   make(map[string]int64),
	}

	type bucket struct {
		Key   string
		Total int64
	}

	var bySymbol []bucket
	err := r.db.WithContext(ctx).
		Model(&models.MessageReaction{}).
		Select("message_reactions.symbol AS key, COUNT(*) AS total").
		Joins("JOIN chat_messages ON chat_messages.id = message_reactions.message_id").
		Where("chat_messages.room_id = ?", roomID).
		Group("message_reactions.symbol").
		Scan(&bySymbol).Error
	if err != nil {
		return ReactionAggregate{}, err
	}

	var byUser []bucket
	err = r.db.WithContext(ctx).
		Model(&models.MessageReaction{}).
		Select("message_reactions.user_id AS key, COUNT(*) AS total").
		Joins("JOIN chat_messages ON chat_messages.id = message_reactions.message_id").
		Where("chat_messages.room_id = ?", roomID).
		Group("message_reactions.user_id").
		Scan(&byUser).Error
	if err != nil {
		return ReactionAggregate{}, err
	}

	for _, row := range bySymbol {
		aggregate.CountsBySymbol[row.Key] = row.Total
		aggregate.Total += row.Total
	}
	for _, row := range byUser {
		aggregate.CountsByUser[row.Key] = row.Total
	}

	return aggregate, nil
}

// MarkRead records a read receipt once per (message, user); replays are ignored.
func (r *reactionRepository) MarkRead(ctx context.Context, receipt *models.ReadReceipt) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(receipt).Error
}

func incrementRollup(tx *gorm.DB, roomID uint, symbol string, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "room_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":     gorm.Expr("count + 1"),
			"last_used": now,
		}),
	}).Create(&models.ReactionAnalytics{
		Symbol:   symbol,
		RoomID:   roomID,
		Count:    1,
		LastUsed: now,
	}).Error
}

func decrementRollup(tx *gorm.DB, roomID uint, symbol string) error {
	return decrementRollupBy(tx, roomID, symbol, 1)
}

func decrementRollupBy(tx *gorm.DB, roomID uint, symbol string, n int64) error {
	return tx.Model(&models.ReactionAnalytics{}).
		Where("symbol = ? AND room_id = ? AND count > 0", symbol, roomID).
		Update("count", gorm.Expr("CASE WHEN count >= ? THEN count - ? ELSE 0 END", n, n)).Error
}
