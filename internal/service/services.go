package service

import (
	"messenger/internal/config"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

type Services struct {
	Auth      AuthService
	User      UserService
	Chat      ChatService
	Presence  PresenceService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		User:      NewUserService(repos.User, log),
		Chat:      NewChatService(repos.Conversation, repos.Message, log),
		Presence:  NewPresenceService(repos.PresenceCache, cfg.Realtime.PresenceTTL, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
