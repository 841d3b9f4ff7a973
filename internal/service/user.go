package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	Search(ctx context.Context, fragment string, limit int) ([]*domain.Principal, error)
}

type userService struct {
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log logger.Logger) UserService {
	return &userService{userRepo: userRepo, log: log}
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) Search(ctx context.Context, fragment string, limit int) ([]*domain.Principal, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, apperrors.ErrValidationFailed
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	return s.userRepo.Search(ctx, fragment, limit)
}
