package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"messenger/internal/realtime"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

type WebSocketHandler struct {
	dispatcher  *realtime.Dispatcher
	authService service.AuthService
	log         logger.Logger
}

func NewWebSocketHandler(dispatcher *realtime.Dispatcher, authService service.AuthService, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		dispatcher:  dispatcher,
		authService: authService,
		log:         log,
	}
}

// HandleChat принимает входящее соединение. Identity проверяется на handshake,
// до upgrade: без валидного токена соединение не доходит до Open.
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	principal, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		h.log.Warn("Handshake rejected", "error", err, "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "handshake rejected"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	h.dispatcher.Serve(c.Request.Context(), principal, conn)
}
