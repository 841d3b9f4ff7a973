package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

// PresenceService поддерживает Redis-зеркало онлайн-состояния.
// Истина живет в реестре соединений диспетчера; сюда он репортит переходы.
type PresenceService interface {
	MarkOnline(ctx context.Context, principalID uuid.UUID) error
	MarkOffline(ctx context.Context, principalID uuid.UUID) error
	Heartbeat(ctx context.Context, principalID uuid.UUID) error
	IsOnline(ctx context.Context, principalID uuid.UUID) (bool, error)
}

type presenceService struct {
	cacheRepo repository.PresenceCacheRepository
	ttl       time.Duration
	log       logger.Logger
}

func NewPresenceService(cacheRepo repository.PresenceCacheRepository, ttl time.Duration, log logger.Logger) PresenceService {
	return &presenceService{
		cacheRepo: cacheRepo,
		ttl:       ttl,
		log:       log,
	}
}

func (s *presenceService) MarkOnline(ctx context.Context, principalID uuid.UUID) error {
	return s.cacheRepo.SetOnline(ctx, principalID, s.ttl)
}

func (s *presenceService) MarkOffline(ctx context.Context, principalID uuid.UUID) error {
	return s.cacheRepo.SetOffline(ctx, principalID)
}

func (s *presenceService) Heartbeat(ctx context.Context, principalID uuid.UUID) error {
	return s.cacheRepo.Heartbeat(ctx, principalID, s.ttl)
}

func (s *presenceService) IsOnline(ctx context.Context, principalID uuid.UUID) (bool, error) {
	return s.cacheRepo.IsOnline(ctx, principalID)
}
