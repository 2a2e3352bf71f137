package usecase

import (
	"context"

	"linguaconnect/internal/entity"
	"linguaconnect/internal/repository"
)

type UserUsecase interface {
	Get(ctx context.Context, userId string) (entity.User, error)
	Index(ctx context.Context, userIds []string) ([]entity.User, error)
	SetActive(ctx context.Context, userId string, active bool) error
	ResetPresence(ctx context.Context) error
}

type userUsecase struct {
	userRepo repository.UserRepository
}

func NewUserUseCase(userRepo repository.UserRepository) UserUsecase {
	return &userUsecase{
		userRepo: userRepo,
	}
}

func (u *userUsecase) Get(ctx context.Context, userId string) (entity.User, error) {
	user, err := u.userRepo.Get(ctx, userId)
	if err != nil {
		return entity.User{}, translateError(err)
	}

	return user, nil
}

func (u *userUsecase) Index(ctx context.Context, userIds []string) ([]entity.User, error) {
	if len(userIds) == 0 {
		return []entity.User{}, nil
	}
	return u.userRepo.Index(ctx, entity.UserIndexFilter{Ids: userIds})
}

// SetActive persists the presence flag. It is the durable side of the
// presence registry and is called from its writer goroutine only.
func (u *userUsecase) SetActive(ctx context.Context, userId string, active bool) error {
	return translateError(u.userRepo.SetActive(ctx, userId, active))
}

// ResetPresence clears every active flag at boot, before any connection
// is accepted.
func (u *userUsecase) ResetPresence(ctx context.Context) error {
	return u.userRepo.ResetActive(ctx)
}
