package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/dto"
)

const roomSendBufferSize = 32

// roomHub tracks the websocket clients attached to each room on this node.
type roomHub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*roomClient]struct{}
	log   zerolog.Logger
}

// busEvent is the cross-node relay envelope. Source carries the publishing
// node's identity so a node can skip events it already fanned out locally.
type busEvent struct {
	Source        string            `json:"source"`
	RoomID        uint              `json:"room_id"`
	Event         dto.RealtimeEvent `json:"event"`
	ExcludeUserID string            `json:"exclude_user_id,omitempty"`
	SentAt        time.Time         `json:"sent_at"`
}

// RoomBus fans realtime events out to every subscriber of a room, on this
// node and, through redis pub/sub and NATS, on every other node. It is the
// single delivery path for chat messages, presence and typing indicators.
type RoomBus struct {
	hub         *roomHub
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	natsQueue   string
	nodeID      string
	logger      zerolog.Logger
}

// NewRoomBus constructs the fan-out bus. redisClient and natsConn may each be
// nil; delivery then stays node-local for the missing transport.
func NewRoomBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) *RoomBus {
	streamChannel := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":events"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &RoomBus{
		hub: &roomHub{
			rooms: make(map[uint]map[*roomClient]struct{}),
			log:   logger.With().Str("component", "room_hub").Logger(),
		},
		redis:       redisClient,
		redisStream: streamChannel,
		nats:        natsConn,
		natsSubject: natsSubject,
		natsQueue:   "darsy-live",
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "room_bus").Logger(),
	}
}

// Start launches the cross-node consumers. They stop when ctx is cancelled.
func (b *RoomBus) Start(ctx context.Context) {
	if b.redis != nil && b.redisStream != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		go b.consumeNATS(ctx)
	}
}

// BroadcastChatMessage satisfies MessageBroadcaster: a persisted message is
// pushed to the room's subscribers everywhere.
func (b *RoomBus) BroadcastChatMessage(ctx context.Context, roomID uint, message dto.MessageResponse) {
	event := dto.RealtimeEvent{
		Type:    dto.EventChatMessage,
		Message: &message,
		UserID:  message.UserID,
		User:    message.UserName,
	}
	b.Broadcast(ctx, roomID, event, "")
}

// Broadcast delivers event to every subscriber of roomID except
// excludeUserID (empty means no exclusion), then relays it to other nodes.
func (b *RoomBus) Broadcast(ctx context.Context, roomID uint, event dto.RealtimeEvent, excludeUserID string) {
	b.hub.broadcast(roomID, event, excludeUserID)
	if err := b.publish(ctx, roomID, event, excludeUserID); err != nil {
		b.logger.Warn().Err(err).Uint("room_id", roomID).Msg("failed to publish realtime event")
	}
}

func (b *RoomBus) publish(ctx context.Context, roomID uint, event dto.RealtimeEvent, excludeUserID string) error {
	if (b.redis == nil || b.redisStream == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(busEvent{
		Source:        b.nodeID,
		RoomID:        roomID,
		Event:         event,
		ExcludeUserID: excludeUserID,
		SentAt:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if b.redis != nil && b.redisStream != "" {
		if err := b.redis.Publish(ctx, b.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (b *RoomBus) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		b.handleEvent([]byte(msg.Payload))
	}
}

func (b *RoomBus) consumeNATS(ctx context.Context) {
	sub, err := b.nats.QueueSubscribe(b.natsSubject, b.natsQueue, func(msg *nats.Msg) {
		b.handleEvent(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (b *RoomBus) handleEvent(data []byte) {
	var event busEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid realtime event")
		return
	}

	if event.Source == b.nodeID {
		return
	}

	b.hub.broadcast(event.RoomID, event.Event, event.ExcludeUserID)
}

func (h *roomHub) register(client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.roomID
	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[*roomClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.log.Debug().Uint("room_id", room).Str("user_id", client.identity.ID).Msg("realtime client connected")
}

func (h *roomHub) unregister(client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[client.roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, client.roomID)
		}
	}
	h.log.Debug().Uint("room_id", client.roomID).Str("user_id", client.identity.ID).Msg("realtime client disconnected")
}

func (h *roomHub) broadcast(roomID uint, event dto.RealtimeEvent, excludeUserID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		if excludeUserID != "" && client.identity.ID == excludeUserID {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.log.Warn().Uint("room_id", roomID).Str("user_id", client.identity.ID).Msg("dropping realtime event for slow client")
		}
	}
}
