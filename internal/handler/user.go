package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

type UserHandler struct {
	userService     service.UserService
	presenceService service.PresenceService
	log             logger.Logger
}

func NewUserHandler(userService service.UserService, presenceService service.PresenceService, log logger.Logger) *UserHandler {
	return &UserHandler{
		userService:     userService,
		presenceService: presenceService,
		log:             log,
	}
}

// Search ищет principal по фрагменту username / display_name
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	principals, err := h.userService.Search(c.Request.Context(), q, 20)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"principals": principals})
}

// Online отвечает на "онлайн ли X" через Redis-зеркало присутствия
func (h *UserHandler) Online(c *gin.Context) {
	principalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid principal ID"})
		return
	}

	online, err := h.presenceService.IsOnline(c.Request.Context(), principalID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"principal_id": principalID, "online": online})
}
