package handler

import (
	"messenger/internal/config"
	"messenger/internal/realtime"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Conversation *ConversationHandler
	User         *UserHandler
	Upload       *UploadHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, dispatcher *realtime.Dispatcher, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(),
		Conversation: NewConversationHandler(services.Chat, log),
		User:         NewUserHandler(services.User, services.Presence, log),
		Upload:       NewUploadHandler(cfg.Upload, log),
		WebSocket:    NewWebSocketHandler(dispatcher, services.Auth, log),
	}
}
