package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/securelogin/apiserver/internal/store"
	"github.com/securelogin/apiserver/types"
)

// UserService encapsulates user administration use-cases. Authorization has
// already happened by the time these run.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// UpdateProfile changes name and/or phone. Empty name keeps the current one.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (types.User, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if name == "" {
		name = current.Name
	}
	if phone == "" {
		phone = current.Phone
	}
	updated, err := s.repo.UpdateProfile(ctx, id, name, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
