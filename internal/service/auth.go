package service

import (
	"context"

	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/jwt"
	"messenger/pkg/logger"
)

// AuthService проверяет access токены, выданные identity-подсистемой.
// Выдача токенов и сессии не входят в этот сервис.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.Principal, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.Principal, error) {
	if tokenString == "" {
		return nil, apperrors.ErrUnauthorized
	}

	claims, err := jwt.ParseAccessToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		switch err {
		case jwt.ErrTokenExpired:
			return nil, apperrors.ErrTokenExpired
		default:
			return nil, apperrors.ErrInvalidToken
		}
	}

	// Principal должен существовать: токен мог пережить удаление учетки
	principal, err := s.userRepo.GetByID(ctx, claims.PrincipalID)
	if err != nil {
		s.log.Warn("Token for unknown principal", "principal_id", claims.PrincipalID)
		return nil, apperrors.ErrInvalidToken
	}

	return principal, nil
}
