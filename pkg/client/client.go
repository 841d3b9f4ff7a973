package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"messenger/internal/domain"
	"messenger/internal/realtime"
	"messenger/pkg/logger"
)

// Client реализует клиентскую сторону мессенджера: локальное,
// eventually-consistent зеркало диалогов и активной ленты. Отправка
// оптимистичная, сверка с подтверждениями сервера идет по корреляционному id.
type Client struct {
	baseURL     string
	wsURL       string
	token       string
	principalID uuid.UUID

	httpc *http.Client
	log   logger.Logger

	reconnect      bool
	reconnectDelay time.Duration

	// OnUpdate дергается после каждого изменения локального состояния (для UI)
	OnUpdate func()

	mu            sync.RWMutex
	conversations []domain.ConversationSummary
	currentID     *uuid.UUID
	messages      []MessageEntry
	online        map[uuid.UUID]struct{}

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

type Options struct {
	// BaseURL сервера, например http://localhost:8080
	BaseURL     string
	Token       string
	PrincipalID uuid.UUID

	HTTPClient     *http.Client
	Log            logger.Logger
	Reconnect      bool
	ReconnectDelay time.Duration
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if opts.PrincipalID == uuid.Nil {
		return nil, fmt.Errorf("principal ID is required")
	}

	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	wsURL := strings.Replace(opts.BaseURL, "http", "ws", 1) + "/ws/chat?token=" + opts.Token

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		wsURL:          wsURL,
		token:          opts.Token,
		principalID:    opts.PrincipalID,
		httpc:          httpc,
		log:            log,
		reconnect:      opts.Reconnect,
		reconnectDelay: delay,
		online:         make(map[uuid.UUID]struct{}),
		closed:         make(chan struct{}),
	}, nil
}

// Connect устанавливает соединение и запускает цикл чтения.
// Бутстрап онлайн-списка приходит первым событием от сервера.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Избыточное подтверждение identity из handshake
	c.sendEvent(realtime.EventJoin, realtime.JoinPayload{PrincipalID: c.principalID})

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.log.Warn("Connection lost", "error", err)
			if c.reconnect {
				c.redial()
			}
			return
		}
		c.handleFrame(raw)
	}
}

// redial переподключается с нуля: сервер заново пришлет полный онлайн-список,
// дельты с прошлого соединения не додумываются
func (c *Client) redial() {
	for {
		select {
		case <-c.closed:
			return
		case <-time.After(c.reconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			c.log.Info("Reconnected")
			return
		}
		c.log.Warn("Reconnect failed", "error", err)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var envelope realtime.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Warn("Dropping malformed frame", "error", err)
		return
	}

	switch envelope.Event {
	case realtime.EventOnlineUsers:
		var payload realtime.OnlineUsersPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		c.mu.Lock()
		c.online = make(map[uuid.UUID]struct{}, len(payload.PrincipalIDs))
		for _, id := range payload.PrincipalIDs {
			c.online[id] = struct{}{}
		}
		c.mu.Unlock()

	case realtime.EventUserOnline, realtime.EventUserOffline:
		var payload realtime.PresencePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		c.mu.Lock()
		if envelope.Event == realtime.EventUserOnline {
			c.online[payload.PrincipalID] = struct{}{}
		} else {
			delete(c.online, payload.PrincipalID)
		}
		c.mu.Unlock()

	case realtime.EventMessage:
		var payload realtime.MessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		c.mu.Lock()
		if c.currentID != nil && *c.currentID == payload.ConversationID {
			c.messages = mergeConfirmed(c.messages, payload)
		} else if c.currentID == nil && payload.SenderID == c.principalID {
			// Подтверждение первой отправки могло прийти до того, как мы
			// узнали id нового диалога: заглушка еще лежит в ленте без
			// conversation id. Если открыт другой диалог, событие в ленту
			// не попадает, состояние диалога обновит conversation-событие.
			c.messages = mergeConfirmed(c.messages, payload)
			id := payload.ConversationID
			c.currentID = &id
		}
		c.mu.Unlock()

	case realtime.EventConversation:
		var summary domain.ConversationSummary
		if err := json.Unmarshal(envelope.Data, &summary); err != nil {
			return
		}
		c.mu.Lock()
		c.conversations = upsertSummary(c.conversations, summary)
		c.mu.Unlock()

	default:
		c.log.Debug("Ignoring unknown event", "event", envelope.Event)
		return
	}

	c.notify()
}

func (c *Client) notify() {
	if c.OnUpdate != nil {
		c.OnUpdate()
	}
}

// SendMessage отправляет оптимистично: заглушка появляется в ленте сразу,
// сервер вернет подтверждение с этим же корреляционным id
func (c *Client) SendMessage(receiverID uuid.UUID, msgType, content string, file *domain.FileMeta) (string, error) {
	correlationID := uuid.New().String()

	c.mu.Lock()
	c.messages = append(c.messages, MessageEntry{
		CorrelationID: correlationID,
		Pending:       true,
		Message: domain.Message{
			SenderID:   c.principalID,
			ReceiverID: receiverID,
			Type:       msgType,
			Content:    content,
			File:       file,
			CreatedAt:  time.Now(),
		},
	})
	c.mu.Unlock()
	c.notify()

	err := c.sendEvent(realtime.EventMessage, realtime.InboundMessage{
		ReceiverID:      receiverID,
		Type:            msgType,
		Content:         content,
		File:            file,
		ClientMessageID: correlationID,
	})
	if err != nil {
		return correlationID, err
	}
	return correlationID, nil
}

// MarkRead обнуляет свой unread на сервере и локально
func (c *Client) MarkRead(conversationID uuid.UUID) error {
	c.mu.Lock()
	for i := range c.conversations {
		if c.conversations[i].ID == conversationID {
			// Срез с провода мог прийти без unread_counts
			if c.conversations[i].UnreadCounts == nil {
				c.conversations[i].UnreadCounts = make(map[string]int)
			}
			c.conversations[i].UnreadCounts[c.principalID.String()] = 0
			break
		}
	}
	c.mu.Unlock()
	c.notify()

	return c.sendEvent(realtime.EventRead, realtime.InboundRead{ConversationID: conversationID})
}

func (c *Client) sendEvent(event string, data any) error {
	frame, err := realtime.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// RefreshConversations перечитывает список диалогов с сервера
func (c *Client) RefreshConversations(ctx context.Context, limit, offset int) error {
	var resp struct {
		Conversations []domain.ConversationSummary `json:"conversations"`
	}
	path := fmt.Sprintf("/api/v1/conversations?limit=%d&offset=%d", limit, offset)
	if err := c.get(ctx, path, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.conversations = resp.Conversations
	c.mu.Unlock()
	c.notify()
	return nil
}

// OpenConversation делает диалог активным и загружает свежую страницу ленты
func (c *Client) OpenConversation(ctx context.Context, conversationID uuid.UUID) error {
	page, err := c.fetchMessages(ctx, conversationID, 0)
	if err != nil {
		return err
	}

	c.mu.Lock()
	id := conversationID
	c.currentID = &id
	c.messages = prependOlder(nil, page)
	c.mu.Unlock()
	c.notify()
	return nil
}

// LoadOlder подгружает страницу старше самого раннего сообщения ленты.
// Возвращает количество добавленных сообщений; 0 значит история исчерпана.
func (c *Client) LoadOlder(ctx context.Context) (int, error) {
	c.mu.RLock()
	current := c.currentID
	before := earliestID(c.messages)
	c.mu.RUnlock()

	if current == nil {
		return 0, fmt.Errorf("no conversation is open")
	}

	page, err := c.fetchMessages(ctx, *current, before)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	was := len(c.messages)
	c.messages = prependOlder(c.messages, page)
	added := len(c.messages) - was
	c.mu.Unlock()

	if added > 0 {
		c.notify()
	}
	return added, nil
}

func (c *Client) fetchMessages(ctx context.Context, conversationID uuid.UUID, beforeID int64) ([]domain.Message, error) {
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	path := fmt.Sprintf("/api/v1/conversations/%s/messages?before=%d&limit=50", conversationID, beforeID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SearchPrincipals ищет собеседника по фрагменту имени
func (c *Client) SearchPrincipals(ctx context.Context, fragment string) ([]domain.Principal, error) {
	var resp struct {
		Principals []domain.Principal `json:"principals"`
	}
	if err := c.get(ctx, "/api/v1/users/search?q="+fragment, &resp); err != nil {
		return nil, err
	}
	return resp.Principals, nil
}

// StartConversation явно создает (или находит) диалог с собеседником
func (c *Client) StartConversation(ctx context.Context, otherID uuid.UUID) (*domain.ConversationSummary, error) {
	var resp struct {
		Conversation domain.ConversationSummary `json:"conversation"`
	}
	body := map[string]string{"participant_id": otherID.String()}
	if err := c.post(ctx, "/api/v1/conversations", body, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conversations = upsertSummary(c.conversations, resp.Conversation)
	c.mu.Unlock()
	c.notify()
	return &resp.Conversation, nil
}

// Upload загружает файл и возвращает метаданные для file-сообщения
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*domain.FileMeta, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/uploads", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		File domain.FileMeta `json:"file"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp.File, nil
}

// UnreadBadge возвращает сумму unread по всем диалогам, пересчет от списка
func (c *Client) UnreadBadge() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return unreadTotal(c.conversations, c.principalID)
}

func (c *Client) Conversations() []domain.ConversationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ConversationSummary, len(c.conversations))
	copy(out, c.conversations)
	return out
}

func (c *Client) Messages() []MessageEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MessageEntry, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Client) IsOnline(principalID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.online[principalID]
	return ok
}

func (c *Client) OnlineIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(c.online))
	for id := range c.online {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
