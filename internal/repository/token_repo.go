package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// TokenRepository caches minted RTC/RTM credentials per (room, user, kind).
type TokenRepository interface {
	Upsert(ctx context.Context, token *models.RoomToken) error
	Get(ctx context.Context, roomID uint, userID, kind string) (models.RoomToken, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository constructs a token repository backed by GORM.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Upsert(ctx context.Context, token *models.RoomToken) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "channel_name", "uid", "expires_at"}),
	}).Create(token).Error
}

func (r *tokenRepository) Get(ctx context.Context, roomID uint, userID, kind string) (models.RoomToken, error) {
	var token models.RoomToken
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND kind = ?", roomID, userID, kind).
		First(&token).Error
	if err != nil {
		return models.RoomToken{}, err
	}
	return token, nil
}
