package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/dto"
	"github.com/darsy-app/darsy-live-api/internal/models"
	"github.com/darsy-app/darsy-live-api/internal/repository"
)

type stubRoomRepo struct {
	rooms        map[uint]models.Room
	participants map[string]models.RoomParticipant
	joinErr      error
	nextID       uint
}

func newStubRoomRepo() *stubRoomRepo {
	return &stubRoomRepo{
		rooms:        make(map[uint]models.Room),
		participants: make(map[string]models.RoomParticipant),
		nextID:       1,
	}
}

func participantKey(roomID uint, userID string) string {
	return fmt.Sprintf("%d:%s", roomID, userID)
}

func (s *stubRoomRepo) addRoom(room models.Room) models.Room {
	if room.ID == 0 {
		room.ID = s.nextID
		s.nextID++
	}
	s.rooms[room.ID] = room
	return room
}

func (s *stubRoomRepo) addOpenParticipant(roomID uint, userID, role string) {
	s.participants[participantKey(roomID, userID)] = models.RoomParticipant{
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	}
}

func (s *stubRoomRepo) Create(ctx context.Context, room *models.Room) error {
	*room = s.addRoom(*room)
	return nil
}

func (s *stubRoomRepo) Get(ctx context.Context, id uint) (models.Room, error) {
	room, ok := s.rooms[id]
	if !ok {
		return models.Room{}, gorm.ErrRecordNotFound
	}
	return room, nil
}

func (s *stubRoomRepo) GetByPublicID(ctx context.Context, roomID string) (models.Room, error) {
	for _, room := range s.rooms {
		if room.RoomID == roomID {
			return room, nil
		}
	}
	return models.Room{}, gorm.ErrRecordNotFound
}

func (s *stubRoomRepo) ListByHost(ctx context.Context, hostID string) ([]models.Room, error) {
	var out []models.Room
	for _, room := range s.rooms {
		if room.HostID == hostID {
			out = append(out, room)
		}
	}
	return out, nil
}

func (s *stubRoomRepo) ListByCourses(ctx context.Context, courseIDs []uint) ([]models.Room, error) {
	var out []models.Room
	for _, room := range s.rooms {
		for _, id := range courseIDs {
			if room.CourseID == id {
				out = append(out, room)
			}
		}
	}
	return out, nil
}

func (s *stubRoomRepo) Join(ctx context.Context, roomID uint, userID string) (models.RoomParticipant, error) {
	if s.joinErr != nil {
		return models.RoomParticipant{}, s.joinErr
	}
	participant := models.RoomParticipant{RoomID: roomID, UserID: userID, Role: models.RoleParticipant, JoinedAt: time.Now()}
	s.participants[participantKey(roomID, userID)] = participant
	return participant, nil
}

func (s *stubRoomRepo) Leave(ctx context.Context, roomID uint, userID string) (bool, error) {
	key := participantKey(roomID, userID)
	if _, ok := s.participants[key]; !ok {
		return false, gorm.ErrRecordNotFound
	}
	delete(s.participants, key)
	room := s.rooms[roomID]
	return room.HostID == userID, nil
}

func (s *stubRoomRepo) Close(ctx context.Context, roomID uint) error {
	room, ok := s.rooms[roomID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	room.IsActive = false
	s.rooms[roomID] = room
	return nil
}

func (s *stubRoomRepo) OpenParticipant(ctx context.Context, roomID uint, userID string) (models.RoomParticipant, error) {
	participant, ok := s.participants[participantKey(roomID, userID)]
	if !ok {
		return models.RoomParticipant{}, gorm.ErrRecordNotFound
	}
	return participant, nil
}

func (s *stubRoomRepo) UpdateMediaState(ctx context.Context, participantID uint, updates map[string]interface{}) error {
	return nil
}

func (s *stubRoomRepo) CountOpen(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	for _, participant := range s.participants {
		if participant.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

type stubMessageRepo struct {
	messages map[uint]models.ChatMessage
	nextID   uint
	saveErr  error
}

func newStubMessageRepo() *stubMessageRepo {
	return &stubMessageRepo{messages: make(map[uint]models.ChatMessage), nextID: 1}
}

func (s *stubMessageRepo) Save(ctx context.Context, message *models.ChatMessage) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	message.ID = s.nextID
	message.CreatedAt = time.Now()
	s.nextID++
	s.messages[message.ID] = *message
	return nil
}

func (s *stubMessageRepo) Get(ctx context.Context, id uint) (models.ChatMessage, error) {
	message, ok := s.messages[id]
	if !ok {
		return models.ChatMessage{}, gorm.ErrRecordNotFound
	}
	return message, nil
}

func (s *stubMessageRepo) Update(ctx context.Context, message *models.ChatMessage) error {
	s.messages[message.ID] = *message
	return nil
}

func (s *stubMessageRepo) Delete(ctx context.Context, id uint) error {
	delete(s.messages, id)
	return nil
}

func (s *stubMessageRepo) ListByRoom(ctx context.Context, roomID uint, filter repository.MessageFilter) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, message := range s.messages {
		if message.RoomID == roomID {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *stubMessageRepo) ListThread(ctx context.Context, parentID uint) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, message := range s.messages {
		if message.ParentID != nil && *message.ParentID == parentID {
			out = append(out, message)
		}
	}
	return out, nil
}

type stubReactionRepo struct {
	reactions map[string]models.MessageReaction
	receipts  map[string]models.ReadReceipt
	aggregate repository.ReactionAggregate
}

func newStubReactionRepo() *stubReactionRepo {
	return &stubReactionRepo{
		reactions: make(map[string]models.MessageReaction),
		receipts:  make(map[string]models.ReadReceipt),
	}
}

func reactionKey(messageID uint, userID string) string {
	return fmt.Sprintf("%d:%s", messageID, userID)
}

func (s *stubReactionRepo) Set(ctx context.Context, roomID uint, reaction *models.MessageReaction) error {
	reaction.ID = uint(len(s.reactions) + 1)
	s.reactions[reactionKey(reaction.MessageID, reaction.UserID)] = *reaction
	return nil
}

func (s *stubReactionRepo) Remove(ctx context.Context, roomID uint, messageID uint, userID string) error {
	key := reactionKey(messageID, userID)
	if _, ok := s.reactions[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.reactions, key)
	return nil
}

func (s *stubReactionRepo) ListByMessage(ctx context.Context, messageID uint) ([]models.MessageReaction, error) {
	var out []models.MessageReaction
	for _, reaction := range s.reactions {
		if reaction.MessageID == messageID {
			out = append(out, reaction)
		}
	}
	return out, nil
}

func (s *stubReactionRepo) AggregateRoom(ctx context.Context, roomID uint) (repository.ReactionAggregate, error) {
	return s.aggregate, nil
}

func (s *stubReactionRepo) MarkRead(ctx context.Context, receipt *models.ReadReceipt) error {
	key := reactionKey(receipt.MessageID, receipt.UserID)
	if _, ok := s.receipts[key]; ok {
		return nil
	}
	s.receipts[key] = *receipt
	return nil
}

type stubTokenRepo struct {
	tokens map[string]models.RoomToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[string]models.RoomToken)}
}

func (s *stubTokenRepo) Upsert(ctx context.Context, token *models.RoomToken) error {
	s.tokens[token.UserID+":"+token.Kind] = *token
	return nil
}

func (s *stubTokenRepo) Get(ctx context.Context, roomID uint, userID, kind string) (models.RoomToken, error) {
	token, ok := s.tokens[userID+":"+kind]
	if !ok {
		return models.RoomToken{}, gorm.ErrRecordNotFound
	}
	return token, nil
}

type stubOracle struct {
	enrolled map[string]bool
	teaches  map[string]bool
	courses  map[string][]uint
}

func newStubOracle() *stubOracle {
	return &stubOracle{
		enrolled: make(map[string]bool),
		teaches:  make(map[string]bool),
		courses:  make(map[string][]uint),
	}
}

func oracleKey(userID string, courseID uint) string {
	return fmt.Sprintf("%s:%d", userID, courseID)
}

func (s *stubOracle) IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error) {
	return s.enrolled[oracleKey(userID, courseID)], nil
}

func (s *stubOracle) IsTeacherOf(ctx context.Context, userID string, courseID uint) (bool, error) {
	return s.teaches[oracleKey(userID, courseID)], nil
}

func (s *stubOracle) ActiveCourseIDs(ctx context.Context, userID string) ([]uint, error) {
	return s.courses[userID], nil
}

type stubBroadcaster struct {
	messages []dto.MessageResponse
	rooms    []uint
}

func (s *stubBroadcaster) BroadcastChatMessage(ctx context.Context, roomID uint, message dto.MessageResponse) {
	s.rooms = append(s.rooms, roomID)
	s.messages = append(s.messages, message)
}

type stubStorage struct {
	uploads []string
	url     string
	err     error
}

func (s *stubStorage) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploads = append(s.uploads, name)
	if s.url == "" {
		return "https://cdn.example.com/" + name, nil
	}
	return s.url, nil
}
