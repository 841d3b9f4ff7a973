package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"messenger/pkg/logger"
)

// Client представляет одно живое соединение principal (одну вкладку). Исходящий буфер
// принадлежит только этому соединению; пишет в сокет единственный writePump.
type Client struct {
	principalID uuid.UUID

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce sync.Once
	log       logger.Logger
}

func NewClient(principalID uuid.UUID, conn *websocket.Conn, bufferSize int, writeTimeout, pingInterval time.Duration, log logger.Logger) *Client {
	return &Client{
		principalID:  principalID,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		log:          log,
	}
}

func (c *Client) PrincipalID() uuid.UUID {
	return c.principalID
}

// Enqueue кладет событие в исходящий буфер. Если буфер переполнен, соединение
// считается мертвым и закрывается: пропуск события нарушил бы порядок доставки.
func (c *Client) Enqueue(event string, data any) bool {
	frame, err := NewEnvelope(event, data)
	if err != nil {
		c.log.Error("Failed to encode event", "error", err, "event", event)
		return false
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn("Send buffer full, closing connection", "principal_id", c.principalID)
		c.Close()
		return false
	}
}

// WritePump единственный пишет в сокет; гоняет буфер и ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
