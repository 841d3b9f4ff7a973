package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
	"messenger/internal/domain"
)

// События протокола. Каждый кадр упакован в JSON-конверт {event, data}.
const (
	// клиент -> сервер
	EventJoin    = "join"
	EventMessage = "message"
	EventRead    = "read"

	// сервер -> клиент
	EventOnlineUsers  = "online-users"
	EventUserOnline   = "user-online"
	EventUserOffline  = "user-offline"
	EventConversation = "conversation"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type JoinPayload struct {
	PrincipalID uuid.UUID `json:"principal_id"`
}

type InboundMessage struct {
	ReceiverID      uuid.UUID        `json:"receiver_id"`
	Type            string           `json:"type"`
	Content         string           `json:"content"`
	File            *domain.FileMeta `json:"file,omitempty"`
	ClientMessageID string           `json:"client_message_id,omitempty"`
}

type InboundRead struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// MessagePayload несет подтвержденное сообщение плюс корреляционный id отправителя.
// Получатель его игнорирует, отправитель сверяет с оптимистичной заглушкой.
type MessagePayload struct {
	domain.Message
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type PresencePayload struct {
	PrincipalID uuid.UUID `json:"principal_id"`
}

type OnlineUsersPayload struct {
	PrincipalIDs []uuid.UUID `json:"principal_ids"`
}
