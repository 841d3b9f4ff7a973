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

type SendMessageInput struct {
	ReceiverID uuid.UUID
	Type       string
	Content    string
	File       *domain.FileMeta
}

type ChatService interface {
	// SendMessage: find-or-create диалога, запись сообщения, инкремент
	// unread получателя. Возвращает сообщение и обновленный срез диалога.
	SendMessage(ctx context.Context, senderID uuid.UUID, in *SendMessageInput) (*domain.Message, *domain.ConversationSummary, error)
	// MarkRead обнуляет unread счетчик principal в диалоге и помечает
	// адресованные ему сообщения прочитанными
	MarkRead(ctx context.Context, principalID, conversationID uuid.UUID) (*domain.ConversationSummary, error)
	StartConversation(ctx context.Context, principalID, otherID uuid.UUID) (*domain.ConversationSummary, error)
	ListConversations(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*domain.ConversationSummary, error)
	GetMessages(ctx context.Context, principalID, conversationID uuid.UUID, beforeID int64, limit int) ([]*domain.Message, error)
}

type chatService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	log      logger.Logger
}

func NewChatService(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, log logger.Logger) ChatService {
	return &chatService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		log:      log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, senderID uuid.UUID, in *SendMessageInput) (*domain.Message, *domain.ConversationSummary, error) {
	if err := validateSend(senderID, in); err != nil {
		return nil, nil, err
	}

	conv, created, err := s.convRepo.FindOrCreate(ctx, senderID, in.ReceiverID)
	if err != nil {
		return nil, nil, err
	}
	if created {
		s.log.Debug("Conversation created", "conversation_id", conv.ID, "sender_id", senderID, "receiver_id", in.ReceiverID)
	}

	message := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     in.ReceiverID,
		Type:           in.Type,
		Content:        in.Content,
		File:           in.File,
		Read:           false,
	}

	if err := s.msgRepo.Create(ctx, message); err != nil {
		return nil, nil, err
	}

	conv, err = s.convRepo.ApplyMessage(ctx, conv.ID, message)
	if err != nil {
		return nil, nil, err
	}

	return message, conv.Summary(), nil
}

func (s *chatService) MarkRead(ctx context.Context, principalID, conversationID uuid.UUID) (*domain.ConversationSummary, error) {
	conv, err := s.convRepo.ResetUnread(ctx, conversationID, principalID)
	if err != nil {
		return nil, err
	}

	if _, err := s.msgRepo.MarkRead(ctx, conversationID, principalID); err != nil {
		// Счетчик уже обнулен; расхождение флага read на строках не критично
		s.log.Warn("Failed to mark messages read", "error", err, "conversation_id", conversationID)
	}

	return conv.Summary(), nil
}

func (s *chatService) StartConversation(ctx context.Context, principalID, otherID uuid.UUID) (*domain.ConversationSummary, error) {
	if otherID == uuid.Nil {
		return nil, apperrors.ErrValidationFailed
	}

	conv, _, err := s.convRepo.FindOrCreate(ctx, principalID, otherID)
	if err != nil {
		return nil, err
	}

	return conv.Summary(), nil
}

func (s *chatService) ListConversations(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*domain.ConversationSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	conversations, err := s.convRepo.ListForPrincipal(ctx, principalID, limit, offset)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summaries = append(summaries, conv.Summary())
	}
	return summaries, nil
}

func (s *chatService) GetMessages(ctx context.Context, principalID, conversationID uuid.UUID, beforeID int64, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(principalID) {
		return nil, apperrors.ErrNotParticipant
	}

	return s.msgRepo.ListBefore(ctx, conversationID, beforeID, limit)
}

func validateSend(senderID uuid.UUID, in *SendMessageInput) error {
	if in.ReceiverID == uuid.Nil {
		return apperrors.ErrValidationFailed
	}
	if in.ReceiverID == senderID {
		return apperrors.ErrSelfConversation
	}
	if !domain.ValidMessageType(in.Type) {
		return apperrors.ErrValidationFailed
	}
	switch in.Type {
	case domain.MessageTypeText, domain.MessageTypeGif:
		if strings.TrimSpace(in.Content) == "" {
			return apperrors.ErrValidationFailed
		}
	case domain.MessageTypeFile:
		if in.File == nil || in.File.URL == "" {
			return apperrors.ErrValidationFailed
		}
	}
	return nil
}
