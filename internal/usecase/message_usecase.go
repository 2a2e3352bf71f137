package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"linguaconnect/internal/entity"
	"linguaconnect/internal/repository"
)

const (
	MaxContentBytes = 4096
	MaxContentChars = 2000
)

// PersistedMessage is a message that has been written to the message store.
// Only Send can produce one, so anything that pushes a message to clients
// has to go through persistence first.
type PersistedMessage struct {
	message entity.Message
	chat    entity.Chat
}

func (p PersistedMessage) Message() entity.Message { return p.message }

func (p PersistedMessage) Chat() entity.Chat { return p.chat }

// Recipient is the participant who did not send the message.
func (p PersistedMessage) Recipient() string {
	return p.chat.Partner(p.message.SenderId)
}

// ReadResult is the outcome of marking a chat read: the receipt and the
// participant whose messages were read.
type ReadResult struct {
	Receipt   entity.ReadReceipt
	Recipient string
}

type MessageUsecase interface {
	Send(ctx context.Context, req entity.SendMessageRequest) (PersistedMessage, error)
	MarkDelivered(ctx context.Context, msg PersistedMessage) (PersistedMessage, error)
	MarkRead(ctx context.Context, chatId string, readerId string) (ReadResult, error)
	List(ctx context.Context, chatId string, userId string) ([]entity.Message, error)
	Unread(ctx context.Context, chatId string, readerId string) ([]entity.Message, error)
}

type messageUsecase struct {
	messageRepo repository.MessageRepository
	chatRepo    repository.ChatRepository
}

func NewMessageUseCase(messageRepo repository.MessageRepository, chatRepo repository.ChatRepository) MessageUsecase {
	return &messageUsecase{
		messageRepo: messageRepo,
		chatRepo:    chatRepo,
	}
}

// Send validates and stores a message, then bumps the chat's lastMessageAt.
func (m *messageUsecase) Send(ctx context.Context, req entity.SendMessageRequest) (PersistedMessage, error) {
	if err := ValidateMessageBody(req.Content, req.ImageRef); err != nil {
		return PersistedMessage{}, err
	}

	chat, err := m.participantChat(ctx, req.ChatId, req.SenderId)
	if err != nil {
		return PersistedMessage{}, err
	}

	message, err := m.messageRepo.Create(ctx, entity.Message{
		ChatId:    chat.Id,
		SenderId:  req.SenderId,
		Content:   req.Content,
		ImageRef:  req.ImageRef,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return PersistedMessage{}, fmt.Errorf("store message: %w", err)
	}

	if err := m.chatRepo.TouchLastMessage(ctx, chat.Id, message.CreatedAt); err != nil {
		log.Printf("TouchLastMessage chat=%s error: %v", chat.Id, err)
	} else if message.CreatedAt.After(chat.LastMessageAt) {
		chat.LastMessageAt = message.CreatedAt
	}

	return PersistedMessage{message: message, chat: chat}, nil
}

func (m *messageUsecase) MarkDelivered(ctx context.Context, msg PersistedMessage) (PersistedMessage, error) {
	if msg.message.Delivered != nil {
		return msg, nil
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := m.messageRepo.MarkDelivered(ctx, msg.message.Id, at); err != nil {
		return msg, err
	}

	msg.message.Delivered = &at
	return msg, nil
}

// MarkRead stamps every unread message in the chat that readerId did not
// send. Calling it again is a no-op with a zero count.
func (m *messageUsecase) MarkRead(ctx context.Context, chatId string, readerId string) (ReadResult, error) {
	chat, err := m.participantChat(ctx, chatId, readerId)
	if err != nil {
		return ReadResult{}, err
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	count, err := m.messageRepo.MarkRead(ctx, chatId, readerId, at)
	if err != nil {
		return ReadResult{}, err
	}

	return ReadResult{
		Receipt: entity.ReadReceipt{
			ChatId: chatId,
			UserId: readerId,
			ReadAt: at,
			Count:  count,
		},
		Recipient: chat.Partner(readerId),
	}, nil
}

// List returns the chat history oldest first. An empty userId skips the
// participant check.
func (m *messageUsecase) List(ctx context.Context, chatId string, userId string) ([]entity.Message, error) {
	if _, err := m.chatFor(ctx, chatId, userId); err != nil {
		return nil, err
	}
	return m.messageRepo.GetByChatId(ctx, chatId)
}

func (m *messageUsecase) Unread(ctx context.Context, chatId string, readerId string) ([]entity.Message, error) {
	if _, err := m.participantChat(ctx, chatId, readerId); err != nil {
		return nil, err
	}
	return m.messageRepo.GetUnread(ctx, chatId, readerId)
}

func (m *messageUsecase) chatFor(ctx context.Context, chatId string, userId string) (entity.Chat, error) {
	chat, err := m.chatRepo.Get(ctx, chatId)
	if err != nil {
		return entity.Chat{}, translateError(err)
	}
	if userId != "" && !chat.HasParticipant(userId) {
		return entity.Chat{}, ErrNotParticipant
	}
	return chat, nil
}

func (m *messageUsecase) participantChat(ctx context.Context, chatId string, userId string) (entity.Chat, error) {
	if userId == "" {
		return entity.Chat{}, ErrNotParticipant
	}
	return m.chatFor(ctx, chatId, userId)
}

// ValidateMessageBody requires exactly one of text content or an image
// reference. Whitespace-only text counts as missing.
func ValidateMessageBody(content, imageRef string) error {
	hasText := strings.TrimSpace(content) != ""
	hasImage := strings.TrimSpace(imageRef) != ""

	switch {
	case !hasText && !hasImage:
		return fmt.Errorf("%w: message needs text content or an image", ErrInvalidMessage)
	case hasText && hasImage:
		return fmt.Errorf("%w: message carries either text content or an image, not both", ErrInvalidMessage)
	case hasImage:
		return nil
	}

	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: content exceeds %d byte limit", ErrInvalidMessage, MaxContentBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content contains invalid UTF-8", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("%w: content exceeds %d character limit", ErrInvalidMessage, MaxContentChars)
	}
	return nil
}
