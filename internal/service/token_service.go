package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/models"
	"github.com/darsy-app/darsy-live-api/internal/observability"
	"github.com/darsy-app/darsy-live-api/internal/repository"
	"github.com/darsy-app/darsy-live-api/pkg/agora"
)

// Tokens minted with less than this remaining get re-minted instead of served
// from cache, so clients never receive a credential about to expire mid-call.
const tokenRefreshMargin = 5 * time.Minute

// TokenService mints and caches A/V transport credentials for room members.
type TokenService interface {
	Mint(ctx context.Context, roomID uint, actor Identity, payload dto.TokenMintRequest) (dto.TokenResponse, error)
}

type tokenService struct {
	tokens  repository.TokenRepository
	rooms   repository.RoomRepository
	builder agora.Builder
	cache   *redis.Client
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewTokenService constructs a token service. cache may be nil; minting then
// always consults the database.
func NewTokenService(
	tokens repository.TokenRepository,
	rooms repository.RoomRepository,
	builder agora.Builder,
	cache *redis.Client,
	ttl time.Duration,
	logger zerolog.Logger,
) TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tokenService{
		tokens:  tokens,
		rooms:   rooms,
		builder: builder,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With().Str("component", "token_service").Logger(),
	}
}

// Mint returns a channel-scoped credential for the caller. Only open
// participants can mint; a cached token is reused until it nears expiry.
func (s *tokenService) Mint(ctx context.Context, roomID uint, actor Identity, payload dto.TokenMintRequest) (dto.TokenResponse, error) {
	kind := payload.Kind
	if kind == "" {
		kind = agora.KindRTC
	}
	if kind != agora.KindRTC && kind != agora.KindRTM {
		return dto.TokenResponse{}, ErrInvalidTokenKind
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return dto.TokenResponse{}, mapNotFound(err)
	}

	if _, err := s.rooms.OpenParticipant(ctx, roomID, actor.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TokenResponse{}, ErrNotParticipant
		}
		return dto.TokenResponse{}, err
	}

	if cached, ok := s.fromCache(ctx, roomID, actor.ID, kind); ok {
		return cached, nil
	}

	existing, err := s.tokens.Get(ctx, roomID, actor.ID, kind)
	if err == nil && time.Until(existing.ExpiresAt) > tokenRefreshMargin {
		response := dto.NewTokenResponse(existing)
		s.toCache(ctx, roomID, actor.ID, response)
		return response, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.TokenResponse{}, err
	}

	uid := deriveUID(actor.ID)
	token, expiresAt, err := s.builder.Build(room.RoomID, uid, kind, s.ttl)
	if err != nil {
		return dto.TokenResponse{}, err
	}

	record := models.RoomToken{
		RoomID:      roomID,
		UserID:      actor.ID,
		Kind:        kind,
		Token:       token,
		ChannelName: room.RoomID,
		UID:         uid,
		ExpiresAt:   expiresAt,
	}
	if err := s.tokens.Upsert(ctx, &record); err != nil {
		return dto.TokenResponse{}, err
	}

	response := dto.NewTokenResponse(record)
	s.toCache(ctx, roomID, actor.ID, response)
	observability.TokensMinted().WithLabelValues(kind).Inc()

	s.logger.Debug().
		Uint("room_id", roomID).
		Str("user_id", actor.ID).
		Str("kind", kind).
		Time("expires_at", expiresAt).
		Msg("token minted")

	return response, nil
}

func (s *tokenService) fromCache(ctx context.Context, roomID uint, userID, kind string) (dto.TokenResponse, bool) {
	if s.cache == nil {
		return dto.TokenResponse{}, false
	}

	raw, err := s.cache.Get(ctx, tokenCacheKey(roomID, userID, kind)).Result()
	if err != nil {
		return dto.TokenResponse{}, false
	}

	var response dto.TokenResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return dto.TokenResponse{}, false
	}
	if time.Until(response.ExpiresAt) <= tokenRefreshMargin {
		return dto.TokenResponse{}, false
	}
	return response, true
}

func (s *tokenService) toCache(ctx context.Context, roomID uint, userID string, response dto.TokenResponse) {
	if s.cache == nil {
		return
	}

	ttl := time.Until(response.ExpiresAt) - tokenRefreshMargin
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, tokenCacheKey(roomID, userID, response.Kind), raw, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("token cache write failed")
	}
}

func tokenCacheKey(roomID uint, userID, kind string) string {
	return fmt.Sprintf("darsy:token:%d:%s:%s", roomID, userID, kind)
}

// deriveUID maps a string user identifier onto the numeric uid space the A/V
// provider requires. FNV keeps it stable across mints; the high bit is cleared
// so the value fits signed 32-bit client SDKs.
func deriveUID(userID string) uint {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return uint(h.Sum32() & 0x7fffffff)
}
