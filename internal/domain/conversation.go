package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation описывает диалог ровно двух principal. Пара хранится нормализованной
// (ParticipantA < ParticipantB по строковому сравнению uuid), уникальность пары
// обеспечивает индекс в БД.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	ParticipantA uuid.UUID `json:"participant_a"`
	ParticipantB uuid.UUID `json:"participant_b"`
	UnreadA      int       `json:"-"`
	UnreadB      int       `json:"-"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizePair приводит пару участников к каноническому порядку
func NormalizePair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if y.String() < x.String() {
		return y, x
	}
	return x, y
}

func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return c.ParticipantA == id || c.ParticipantB == id
}

func (c *Conversation) OtherParticipant(id uuid.UUID) uuid.UUID {
	if c.ParticipantA == id {
		return c.ParticipantB
	}
	return c.ParticipantA
}

func (c *Conversation) UnreadFor(id uuid.UUID) int {
	switch id {
	case c.ParticipantA:
		return c.UnreadA
	case c.ParticipantB:
		return c.UnreadB
	}
	return 0
}

// Summary собирает представление диалога для клиента
func (c *Conversation) Summary() *ConversationSummary {
	return &ConversationSummary{
		ID:           c.ID,
		Participants: [2]uuid.UUID{c.ParticipantA, c.ParticipantB},
		LastMessage:  c.LastMessage,
		UnreadCounts: map[string]int{
			c.ParticipantA.String(): c.UnreadA,
			c.ParticipantB.String(): c.UnreadB,
		},
		UpdatedAt: c.UpdatedAt,
	}
}

// ConversationSummary это срез состояния диалога, который сервер пушит клиентам
// вместе с каждым message-событием и отдает в REST-списке.
type ConversationSummary struct {
	ID           uuid.UUID      `json:"id"`
	Participants [2]uuid.UUID   `json:"participants"`
	LastMessage  *Message       `json:"last_message,omitempty"`
	UnreadCounts map[string]int `json:"unread_counts"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *ConversationSummary) UnreadFor(id uuid.UUID) int {
	return s.UnreadCounts[id.String()]
}

func (s *ConversationSummary) HasParticipant(id uuid.UUID) bool {
	return s.Participants[0] == id || s.Participants[1] == id
}
