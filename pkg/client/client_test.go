package client

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"messenger/internal/domain"
	"messenger/internal/realtime"
)

func newTestClient(t *testing.T, principalID uuid.UUID) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:     "http://localhost:8080",
		Token:       "token",
		PrincipalID: principalID,
	})
	require.NoError(t, err)
	return c
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := realtime.NewEnvelope(event, data)
	require.NoError(t, err)
	return raw
}

func TestHandleFrame_ForeignConversationMessageIgnored(t *testing.T) {
	me := uuid.New()
	c := newTestClient(t, me)

	open := uuid.New()
	other := uuid.New()
	c.currentID = &open
	c.messages = []MessageEntry{{Message: domain.Message{ID: 1, ConversationID: open}}}

	// Подтверждение из другого диалога (вторая вкладка того же отправителя)
	c.handleFrame(frame(t, realtime.EventMessage, realtime.MessagePayload{
		Message: domain.Message{
			ID:             2,
			ConversationID: other,
			SenderID:       me,
			Type:           domain.MessageTypeText,
			Content:        "elsewhere",
			CreatedAt:      time.Now(),
		},
	}))

	// Лента хранит только открытый диалог, он не переключился
	require.NotNil(t, c.currentID)
	assert.Equal(t, open, *c.currentID)
	require.Len(t, c.messages, 1)
	assert.Equal(t, int64(1), c.messages[0].Message.ID)
}

func TestHandleFrame_FirstSendAdoptsConversation(t *testing.T) {
	me := uuid.New()
	c := newTestClient(t, me)

	// Первая отправка: диалог еще не открыт, в ленте одна заглушка
	c.messages = []MessageEntry{{
		CorrelationID: "c1",
		Pending:       true,
		Message:       domain.Message{SenderID: me, Content: "hi"},
	}}

	created := uuid.New()
	c.handleFrame(frame(t, realtime.EventMessage, realtime.MessagePayload{
		Message: domain.Message{
			ID:             7,
			ConversationID: created,
			SenderID:       me,
			Type:           domain.MessageTypeText,
			Content:        "hi",
			CreatedAt:      time.Now(),
		},
		ClientMessageID: "c1",
	}))

	require.NotNil(t, c.currentID)
	assert.Equal(t, created, *c.currentID)
	require.Len(t, c.messages, 1)
	assert.False(t, c.messages[0].Pending)
	assert.Equal(t, int64(7), c.messages[0].Message.ID)
}

func TestHandleFrame_ReceiverMessageForOpenConversation(t *testing.T) {
	me := uuid.New()
	c := newTestClient(t, me)

	open := uuid.New()
	c.currentID = &open

	c.handleFrame(frame(t, realtime.EventMessage, realtime.MessagePayload{
		Message: domain.Message{
			ID:             3,
			ConversationID: open,
			SenderID:       uuid.New(),
			ReceiverID:     me,
			Type:           domain.MessageTypeText,
			Content:        "hello",
			CreatedAt:      time.Now(),
		},
	}))

	require.Len(t, c.messages, 1)
	assert.Equal(t, int64(3), c.messages[0].Message.ID)
}

func TestMarkRead_SummaryWithoutUnreadCounts(t *testing.T) {
	me := uuid.New()
	c := newTestClient(t, me)

	convID := uuid.New()
	c.conversations = []domain.ConversationSummary{{
		ID:        convID,
		UpdatedAt: time.Now(),
	}}

	// Срез без unread_counts не должен ронять клиента; событие не уходит,
	// соединения нет
	err := c.MarkRead(convID)
	assert.Error(t, err)

	assert.Equal(t, 0, c.conversations[0].UnreadCounts[me.String()])
	assert.Equal(t, 0, c.UnreadBadge())
}
