package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/internal/service"
	"messenger/pkg/logger"
)

const maxFrameSize = 64 * 1024

// Dispatcher обслуживает протокол одного соединения: регистрация в реестре,
// разбор входящих событий, запись в стор и fan-out подтверждений.
type Dispatcher struct {
	registry *Registry
	chat     service.ChatService
	presence service.PresenceService
	cfg      config.RealtimeConfig
	log      logger.Logger

	// Один мьютекс на нормализованную пару участников: persist и fan-out
	// сообщения выполняются как единая секция, чтобы порядок доставки
	// в каждое соединение совпадал с порядком записи.
	pairMu    sync.Mutex
	pairLocks map[string]*sync.Mutex
}

func NewDispatcher(registry *Registry, chat service.ChatService, presence service.PresenceService, cfg config.RealtimeConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		chat:      chat,
		presence:  presence,
		cfg:       cfg,
		pairLocks: make(map[string]*sync.Mutex),
		log:       log,
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Serve ведет соединение от регистрации до teardown. Блокируется до разрыва.
// Principal уже аутентифицирован хендлером на этапе handshake.
func (d *Dispatcher) Serve(ctx context.Context, principal *domain.Principal, conn *websocket.Conn) {
	client := NewClient(principal.ID, conn, d.cfg.SendBufferSize, d.cfg.WriteTimeout, d.cfg.PingInterval, d.log)

	wentOnline := d.registry.Register(client)
	defer d.teardown(ctx, client)

	if wentOnline {
		if err := d.presence.MarkOnline(ctx, principal.ID); err != nil {
			d.log.Warn("Failed to mirror online state", "error", err, "principal_id", principal.ID)
		}
		d.broadcastPresence(EventUserOnline, principal.ID)
	}

	// Бутстрап полного онлайн-списка уходит только этому соединению
	client.Enqueue(EventOnlineUsers, OnlineUsersPayload{PrincipalIDs: d.registry.OnlineIDs()})

	go client.WritePump()

	d.readLoop(ctx, client)
}

func (d *Dispatcher) teardown(ctx context.Context, client *Client) {
	wentOffline := d.registry.Unregister(client)
	client.Close()

	if wentOffline {
		if err := d.presence.MarkOffline(ctx, client.principalID); err != nil {
			d.log.Warn("Failed to mirror offline state", "error", err, "principal_id", client.principalID)
		}
		d.broadcastPresence(EventUserOffline, client.principalID)
	}
}

func (d *Dispatcher) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(d.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(d.cfg.PongTimeout))
		if err := d.presence.Heartbeat(ctx, client.principalID); err != nil {
			d.log.Debug("Presence heartbeat failed", "error", err)
		}
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.log.Debug("Connection closed unexpectedly", "error", err, "principal_id", client.principalID)
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			d.log.Warn("Dropping malformed frame", "error", err, "principal_id", client.principalID)
			continue
		}

		// Ошибки обработки не роняют соединение: событие отбрасывается с логом
		switch envelope.Event {
		case EventJoin:
			d.handleJoin(client, envelope.Data)
		case EventMessage:
			d.handleMessage(ctx, client, envelope.Data)
		case EventRead:
			d.handleRead(ctx, client, envelope.Data)
		default:
			d.log.Warn("Dropping unknown event", "event", envelope.Event, "principal_id", client.principalID)
		}
	}
}

// handleJoin идемпотентно подтверждает identity из handshake
func (d *Dispatcher) handleJoin(client *Client, data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		d.log.Warn("Dropping malformed join", "error", err, "principal_id", client.principalID)
		return
	}
	if payload.PrincipalID != uuid.Nil && payload.PrincipalID != client.principalID {
		d.log.Warn("Join id does not match handshake identity",
			"principal_id", client.principalID, "claimed_id", payload.PrincipalID)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, client *Client, data json.RawMessage) {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		d.log.Warn("Dropping malformed message event", "error", err, "principal_id", client.principalID)
		return
	}

	senderID := client.principalID

	unlock := d.lockPair(senderID, in.ReceiverID)
	defer unlock()

	message, summary, err := d.chat.SendMessage(ctx, senderID, &service.SendMessageInput{
		ReceiverID: in.ReceiverID,
		Type:       in.Type,
		Content:    in.Content,
		File:       in.File,
	})
	if err != nil {
		// Fire-and-forget: клиент подтверждения не получит,
		// его оптимистичная заглушка останется несверенной
		d.log.Warn("Dropping message event", "error", err, "principal_id", senderID)
		return
	}

	payload := MessagePayload{Message: *message, ClientMessageID: in.ClientMessageID}

	targets := d.registry.ConnectionsFor(senderID)
	targets = append(targets, d.registry.ConnectionsFor(in.ReceiverID)...)
	for _, c := range targets {
		c.Enqueue(EventMessage, payload)
		c.Enqueue(EventConversation, summary)
	}
}

func (d *Dispatcher) handleRead(ctx context.Context, client *Client, data json.RawMessage) {
	var in InboundRead
	if err := json.Unmarshal(data, &in); err != nil {
		d.log.Warn("Dropping malformed read event", "error", err, "principal_id", client.principalID)
		return
	}

	summary, err := d.chat.MarkRead(ctx, client.principalID, in.ConversationID)
	if err != nil {
		// Не участник или неизвестный диалог: молча игнорируем
		d.log.Debug("Dropping read event", "error", err, "principal_id", client.principalID)
		return
	}

	// Остальным вкладкам читателя уходит обновленный срез, чтобы их бейджи сошлись
	for _, c := range d.registry.ConnectionsFor(client.principalID) {
		c.Enqueue(EventConversation, summary)
	}
}

func (d *Dispatcher) broadcastPresence(event string, principalID uuid.UUID) {
	payload := PresencePayload{PrincipalID: principalID}
	for _, c := range d.registry.SnapshotExcept(principalID) {
		c.Enqueue(event, payload)
	}
}

// lockPair выдает мьютекс нормализованной пары. Мьютексы не освобождаются:
// карта растет по одному на пару, которой процесс хоть раз писал, и живет
// до его рестарта. TODO: шардированный пул фиксированного размера, если
// профиль памяти на больших инсталляциях это покажет.
func (d *Dispatcher) lockPair(x, y uuid.UUID) func() {
	a, b := domain.NormalizePair(x, y)
	key := a.String() + ":" + b.String()

	d.pairMu.Lock()
	mu, ok := d.pairLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		d.pairLocks[key] = mu
	}
	d.pairMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
