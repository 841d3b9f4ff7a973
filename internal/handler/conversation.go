package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"messenger/internal/middleware"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type ConversationHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewConversationHandler(chatService service.ChatService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		chatService: chatService,
		log:         log,
	}
}

// List отдает диалоги вызывающего, свежие по updated_at первыми
func (h *ConversationHandler) List(c *gin.Context) {
	principalID := c.MustGet(middleware.ContextPrincipalID).(uuid.UUID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, err := h.chatService.ListConversations(c.Request.Context(), principalID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

type startConversationRequest struct {
	ParticipantID uuid.UUID `json:"participant_id" binding:"required"`
}

// Create явно стартует диалог: find-or-create с нулевыми unread
func (h *ConversationHandler) Create(c *gin.Context) {
	principalID := c.MustGet(middleware.ContextPrincipalID).(uuid.UUID)

	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}

	summary, err := h.chatService.StartConversation(c.Request.Context(), principalID, req.ParticipantID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": summary})
}

// Messages отдает страницу сообщений старше курсора before, новые первыми.
// Клиент разворачивает страницу в хронологический порядок сам.
func (h *ConversationHandler) Messages(c *gin.Context) {
	principalID := c.MustGet(middleware.ContextPrincipalID).(uuid.UUID)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	beforeID, err := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)
	if err != nil || beforeID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.chatService.GetMessages(c.Request.Context(), principalID, conversationID, beforeID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Read дублирует read-событие для REST
func (h *ConversationHandler) Read(c *gin.Context) {
	principalID := c.MustGet(middleware.ContextPrincipalID).(uuid.UUID)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	summary, err := h.chatService.MarkRead(c.Request.Context(), principalID, conversationID)
	if err != nil {
		if err == apperrors.ErrNotParticipant {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": summary})
}
