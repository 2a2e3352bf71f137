package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linguaconnect/internal/entity"
	"linguaconnect/internal/repository"
)

type ChatUsecase interface {
	Index(ctx context.Context, userId string) ([]entity.ChatSummary, error)
	Get(ctx context.Context, chatId string) (entity.Chat, error)
	Create(ctx context.Context, userA, userB string) (entity.Chat, error)
	FindOrCreate(ctx context.Context, userA, userB string) (entity.Chat, bool, error)
	Delete(ctx context.Context, chatId string, userId string) error
}

type chatUsecase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
}

func NewChatUsecase(chatRepo repository.ChatRepository, userRepo repository.UserRepository, messageRepo repository.MessageRepository) ChatUsecase {
	return &chatUsecase{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
	}
}

// Index returns the user's chats, most recently active first, with the
// number of messages they have not read yet
func (c *chatUsecase) Index(ctx context.Context, userId string) ([]entity.ChatSummary, error) {
	chats, err := c.chatRepo.Index(ctx, userId)
	if err != nil {
		return nil, err
	}

	summaries := make([]entity.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		unread, err := c.messageRepo.CountUnread(ctx, chat.Id, userId)
		if err != nil {
			return nil, fmt.Errorf("count unread for chat %s: %w", chat.Id, err)
		}
		summaries = append(summaries, entity.ChatSummary{
			Chat:        chat,
			Partner:     chat.Partner(userId),
			UnreadCount: unread,
		})
	}

	return summaries, nil
}

func (c *chatUsecase) Get(ctx context.Context, chatId string) (entity.Chat, error) {
	chat, err := c.chatRepo.Get(ctx, chatId)
	if err != nil {
		return entity.Chat{}, translateError(err)
	}
	return chat, nil
}

// Create starts a chat between two distinct existing users. It fails with
// ErrChatExists when the pair already has one.
func (c *chatUsecase) Create(ctx context.Context, userA, userB string) (entity.Chat, error) {
	if err := c.validatePair(ctx, userA, userB); err != nil {
		return entity.Chat{}, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	chat, err := c.chatRepo.Create(ctx, entity.Chat{
		User1:         userA,
		User2:         userB,
		CreatedAt:     now,
		LastMessageAt: now,
	})
	if err != nil {
		return entity.Chat{}, translateError(err)
	}

	return chat, nil
}

// FindOrCreate returns the pair's chat, creating it on first contact. The
// boolean reports whether this call created it.
func (c *chatUsecase) FindOrCreate(ctx context.Context, userA, userB string) (entity.Chat, bool, error) {
	chat, err := c.chatRepo.GetByPair(ctx, userA, userB)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, repository.ErrChatNotFound) {
		return entity.Chat{}, false, err
	}

	chat, err = c.Create(ctx, userA, userB)
	if errors.Is(err, ErrChatExists) {
		// another request created the chat between our lookup and insert
		chat, err = c.chatRepo.GetByPair(ctx, userA, userB)
		if err != nil {
			return entity.Chat{}, false, translateError(err)
		}
		return chat, false, nil
	}
	if err != nil {
		return entity.Chat{}, false, err
	}

	return chat, true, nil
}

// Delete removes a chat and its history. Only participants may delete.
func (c *chatUsecase) Delete(ctx context.Context, chatId string, userId string) error {
	chat, err := c.Get(ctx, chatId)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userId) {
		return ErrNotParticipant
	}

	if err := c.messageRepo.DeleteByChatId(ctx, chatId); err != nil {
		return fmt.Errorf("delete messages of chat %s: %w", chatId, err)
	}

	return translateError(c.chatRepo.Delete(ctx, chatId))
}

func (c *chatUsecase) validatePair(ctx context.Context, userA, userB string) error {
	if userA == "" || userB == "" {
		return fmt.Errorf("%w: both participants are required", ErrUserNotFound)
	}
	if userA == userB {
		return ErrSameUser
	}

	users, err := c.userRepo.Index(ctx, entity.UserIndexFilter{Ids: []string{userA, userB}})
	if err != nil {
		return err
	}
	if len(users) != 2 {
		return ErrUserNotFound
	}

	return nil
}
