// Package memrepo holds in-process implementations of the repository
// interfaces. They back STORAGE=memory runs and the usecase and delivery
// tests, and follow the same ordering and uniqueness rules as the Mongo stores.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"linguaconnect/internal/entity"
	"linguaconnect/internal/repository"

	"github.com/google/uuid"
)

type chatRepository struct {
	mu     sync.RWMutex
	chats  map[string]entity.Chat
	byPair map[string]string
}

func NewChatRepository() repository.ChatRepository {
	return &chatRepository{
		chats:  make(map[string]entity.Chat),
		byPair: make(map[string]string),
	}
}

func (r *chatRepository) Index(ctx context.Context, userId string) ([]entity.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chats := []entity.Chat{}
	for _, chat := range r.chats {
		if chat.HasParticipant(userId) {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].LastMessageAt.Equal(chats[j].LastMessageAt) {
			return chats[i].LastMessageAt.After(chats[j].LastMessageAt)
		}
		return chats[i].Id < chats[j].Id
	})

	return chats, nil
}

func (r *chatRepository) Get(ctx context.Context, chatId string) (entity.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[chatId]
	if !ok {
		return entity.Chat{}, repository.ErrChatNotFound
	}
	return chat, nil
}

func (r *chatRepository) GetByPair(ctx context.Context, userA, userB string) (entity.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chatId, ok := r.byPair[entity.PairKey(userA, userB)]
	if !ok {
		return entity.Chat{}, repository.ErrChatNotFound
	}
	return r.chats[chatId], nil
}

func (r *chatRepository) Create(ctx context.Context, chat entity.Chat) (entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat.PairKey = entity.PairKey(chat.User1, chat.User2)
	if _, exists := r.byPair[chat.PairKey]; exists {
		return entity.Chat{}, repository.ErrChatExists
	}
	if chat.Id == "" {
		chat.Id = uuid.New().String()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if chat.LastMessageAt.IsZero() {
		chat.LastMessageAt = chat.CreatedAt
	}

	r.chats[chat.Id] = chat
	r.byPair[chat.PairKey] = chat.Id
	return chat, nil
}

func (r *chatRepository) TouchLastMessage(ctx context.Context, chatId string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatId]
	if !ok {
		return nil
	}
	if chat.LastMessageAt.Before(at) {
		chat.LastMessageAt = at
		r.chats[chatId] = chat
	}
	return nil
}

func (r *chatRepository) Delete(ctx context.Context, chatId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatId]
	if !ok {
		return repository.ErrChatNotFound
	}
	delete(r.chats, chatId)
	delete(r.byPair, chat.PairKey)
	return nil
}

type messageRepository struct {
	mu     sync.RWMutex
	byChat map[string][]*entity.Message
	byId   map[string]*entity.Message
}

func NewMessageRepository() repository.MessageRepository {
	return &messageRepository{
		byChat: make(map[string][]*entity.Message),
		byId:   make(map[string]*entity.Message),
	}
}

func (r *messageRepository) Create(ctx context.Context, message entity.Message) (entity.Message, error) {
	if message.Id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return entity.Message{}, err
		}
		message.Id = id.String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := message
	r.byChat[message.ChatId] = append(r.byChat[message.ChatId], &stored)
	r.byId[message.Id] = &stored
	return message, nil
}

func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.byId[messageId]
	if !ok {
		return entity.Message{}, repository.ErrMessageNotFound
	}
	return *message, nil
}

func (r *messageRepository) GetByChatId(ctx context.Context, chatId string) ([]entity.Message, error) {
	return r.collect(chatId, func(*entity.Message) bool { return true }), nil
}

func (r *messageRepository) GetUnread(ctx context.Context, chatId, readerId string) ([]entity.Message, error) {
	return r.collect(chatId, unreadBy(readerId)), nil
}

func (r *messageRepository) CountUnread(ctx context.Context, chatId, readerId string) (int64, error) {
	return int64(len(r.collect(chatId, unreadBy(readerId)))), nil
}

func (r *messageRepository) MarkRead(ctx context.Context, chatId, readerId string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modified int64
	match := unreadBy(readerId)
	for _, message := range r.byChat[chatId] {
		if match(message) {
			readAt := at
			message.Read = &readAt
			modified++
		}
	}
	return modified, nil
}

func (r *messageRepository) MarkDelivered(ctx context.Context, messageId string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.byId[messageId]
	if ok && message.Delivered == nil {
		deliveredAt := at
		message.Delivered = &deliveredAt
	}
	return nil
}

func (r *messageRepository) DeleteByChatId(ctx context.Context, chatId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, message := range r.byChat[chatId] {
		delete(r.byId, message.Id)
	}
	delete(r.byChat, chatId)
	return nil
}

// collect copies matching messages out in createdAt order; the stable sort
// keeps insertion order for equal timestamps.
func (r *messageRepository) collect(chatId string, match func(*entity.Message) bool) []entity.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := []entity.Message{}
	for _, message := range r.byChat[chatId] {
		if match(message) {
			messages = append(messages, *message)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}

func unreadBy(readerId string) func(*entity.Message) bool {
	return func(message *entity.Message) bool {
		return message.SenderId != readerId && message.Read == nil
	}
}

type userRepository struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

func NewUserRepository(users ...entity.User) repository.UserRepository {
	r := &userRepository{users: make(map[string]entity.User)}
	for _, user := range users {
		r.users[user.Id] = user
	}
	return r
}

func (r *userRepository) Get(ctx context.Context, userId string) (entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userId]
	if !ok {
		return entity.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepository) Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := []entity.User{}
	for _, id := range filter.Ids {
		if user, ok := r.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *userRepository) Create(ctx context.Context, user entity.User) (entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.Id == "" {
		user.Id = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.Id] = user
	return user, nil
}

func (r *userRepository) SetActive(ctx context.Context, userId string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userId]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	r.users[userId] = user
	return nil
}

func (r *userRepository) ResetActive(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, user := range r.users {
		user.IsActive = false
		r.users[id] = user
	}
	return nil
}
