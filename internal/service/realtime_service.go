package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/observability"
)

// RealtimeConnectionOptions wraps metadata extracted during the HTTP upgrade.
type RealtimeConnectionOptions struct {
	RoomID        uint
	Identity      Identity
	CorrelationID string
	Context       context.Context
}

// RealtimeService owns the websocket side of a room: presence announcements,
// typing indicators and inbound chat frames.
type RealtimeService interface {
	ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions)
}

type realtimeService struct {
	bus       *RoomBus
	chat      ChatService
	validator *validator.Validate
	logger    zerolog.Logger
}

type roomClient struct {
	conn     *websocket.Conn
	send     chan dto.RealtimeEvent
	roomID   uint
	identity Identity
	service  *realtimeService
	closed   chan struct{}
	once     sync.Once
	baseCtx  context.Context
}

// NewRealtimeService constructs the websocket service on top of the bus.
func NewRealtimeService(bus *RoomBus, chat ChatService, validate *validator.Validate, logger zerolog.Logger) RealtimeService {
	return &realtimeService{
		bus:       bus,
		chat:      chat,
		validator: validate,
		logger:    logger.With().Str("component", "realtime_service").Logger(),
	}
}

// ServeConnection runs the client's session until the socket closes. The
// joined announcement goes out on attach and the left announcement is
// guaranteed on every exit path, clean or not.
func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &roomClient{
		conn:     conn,
		send:     make(chan dto.RealtimeEvent, roomSendBufferSize),
		roomID:   opts.RoomID,
		identity: opts.Identity,
		service:  s,
		closed:   make(chan struct{}),
		baseCtx:  baseCtx,
	}

	s.bus.hub.register(client)
	observability.WsConnections().Inc()

	s.bus.Broadcast(baseCtx, opts.RoomID, dto.RealtimeEvent{
		Type:   dto.EventUserJoined,
		User:   opts.Identity.Name,
		UserID: opts.Identity.ID,
	}, opts.Identity.ID)

	go client.writer()
	client.reader()
}

func (s *realtimeService) processInbound(ctx context.Context, client *roomClient, inbound dto.RealtimeInbound) {
	switch inbound.Type {
	case dto.EventChatMessage:
		payload := dto.MessageCreateRequest{
			Content:  inbound.Message,
			ParentID: inbound.ParentID,
		}
		if _, err := s.chat.Post(ctx, client.roomID, client.identity, payload); err != nil {
			client.sendError(inboundErrorText(err))
		}
	case dto.EventTyping:
		typing := inbound.IsTyping
		s.bus.Broadcast(ctx, client.roomID, dto.RealtimeEvent{
			Type:     dto.EventTypingIndicator,
			User:     client.identity.Name,
			UserID:   client.identity.ID,
			IsTyping: &typing,
		}, client.identity.ID)
	default:
		client.sendError("unknown event type")
	}
}

// inboundErrorText maps service errors onto the short strings carried in
// inline error frames. Unexpected failures stay generic.
func inboundErrorText(err error) string {
	switch {
	case errors.Is(err, ErrNotParticipant):
		return "not a participant of this room"
	case errors.Is(err, ErrEmptyContent):
		return "message content empty"
	case errors.Is(err, ErrNotFound):
		return "parent message not found"
	default:
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return "invalid message payload"
		}
		return "failed to process message"
	}
}

func (c *roomClient) reader() {
	defer c.close()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.service.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		var inbound dto.RealtimeInbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			c.sendError("malformed frame")
			continue
		}

		c.service.processInbound(c.baseCtx, c, inbound)
	}
}

func (c *roomClient) writer() {
	defer c.close()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-keepalive.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *roomClient) sendError(text string) {
	event := dto.RealtimeEvent{Type: dto.EventError, Error: text}
	select {
	case c.send <- event:
	default:
		c.service.logger.Warn().Str("user_id", c.identity.ID).Msg("dropping error frame for slow client")
	}
}

func (c *roomClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.bus.hub.unregister(c)
		observability.WsConnections().Dec()

		c.service.bus.Broadcast(c.baseCtx, c.roomID, dto.RealtimeEvent{
			Type:   dto.EventUserLeft,
			User:   c.identity.Name,
			UserID: c.identity.ID,
		}, c.identity.ID)

		_ = c.conn.Close()
	})
}
