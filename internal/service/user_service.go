package service

import (
	"context"
	"errors"
	"fmt"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) Get(ctx context.Context, id int) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("UserService.Get: %w", err)
	}
	user.Password = ""
	return user, nil
}

func (s *UserService) List(ctx context.Context, q domain.PageQuery) (domain.Page[domain.User], error) {
	users, total, err := s.userRepo.List(ctx, q.Skip, q.Limit)
	if err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("UserService.List: %w", err)
	}
	for i := range users {
		users[i].Password = ""
	}
	return domain.NewPage(users, total, q), nil
}
