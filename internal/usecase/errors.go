package usecase

import (
	"errors"

	"linguaconnect/internal/repository"
)

var (
	ErrChatNotFound   = errors.New("chat not found")
	ErrChatExists     = errors.New("chat with this user already exists")
	ErrNotParticipant = errors.New("you are not a participant of this chat")
	ErrSameUser       = errors.New("cannot start a chat with yourself")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidMessage = errors.New("invalid message")
)

// translateError maps store sentinels onto the errors callers switch on.
func translateError(err error) error {
	switch {
	case errors.Is(err, repository.ErrChatNotFound):
		return ErrChatNotFound
	case errors.Is(err, repository.ErrChatExists):
		return ErrChatExists
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	}
	return err
}
