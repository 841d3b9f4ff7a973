package client

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"messenger/internal/domain"
	"messenger/internal/realtime"
)

func confirmed(id int64, correlationID string) realtime.MessagePayload {
	return realtime.MessagePayload{
		Message: domain.Message{
			ID:        id,
			Type:      domain.MessageTypeText,
			Content:   "hi",
			CreatedAt: time.Now(),
		},
		ClientMessageID: correlationID,
	}
}

func TestMergeConfirmed_ReplacesPlaceholderInPlace(t *testing.T) {
	entries := []MessageEntry{
		{Message: domain.Message{ID: 1}},
		{CorrelationID: "c1", Pending: true, Message: domain.Message{Content: "hi"}},
		{Message: domain.Message{ID: 2}},
	}

	entries = mergeConfirmed(entries, confirmed(3, "c1"))

	assert.Len(t, entries, 3)
	// Заглушка заменена на той же позиции
	assert.False(t, entries[1].Pending)
	assert.Equal(t, int64(3), entries[1].Message.ID)
}

func TestMergeConfirmed_AppendsForReceiver(t *testing.T) {
	entries := []MessageEntry{
		{Message: domain.Message{ID: 1}},
	}

	// У получателя нет заглушки, корреляционный id чужой
	entries = mergeConfirmed(entries, confirmed(2, "c-sender"))

	assert.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[1].Message.ID)
}

func TestMergeConfirmed_Idempotent(t *testing.T) {
	entries := []MessageEntry{
		{CorrelationID: "c1", Pending: true},
	}

	payload := confirmed(5, "c1")
	entries = mergeConfirmed(entries, payload)
	// Повторная доставка того же события ничего не меняет
	entries = mergeConfirmed(entries, payload)

	assert.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].Message.ID)
}

func TestMergeConfirmed_DedupByDurableID(t *testing.T) {
	entries := []MessageEntry{
		{Message: domain.Message{ID: 7}},
	}

	entries = mergeConfirmed(entries, confirmed(7, ""))

	assert.Len(t, entries, 1)
}

func summaryAt(id uuid.UUID, updatedAt time.Time, unread map[string]int) domain.ConversationSummary {
	return domain.ConversationSummary{
		ID:           id,
		UnreadCounts: unread,
		UpdatedAt:    updatedAt,
	}
}

func TestUpsertSummary_InsertAndReorder(t *testing.T) {
	now := time.Now()
	first := uuid.New()
	second := uuid.New()

	list := upsertSummary(nil, summaryAt(first, now.Add(-time.Hour), nil))
	list = upsertSummary(list, summaryAt(second, now, nil))

	assert.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)

	// Апдейт старого диалога поднимает его наверх
	list = upsertSummary(list, summaryAt(first, now.Add(time.Minute), nil))
	assert.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
}

func TestUnreadTotal_RecomputedFromList(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	now := time.Now()

	list := []domain.ConversationSummary{
		summaryAt(uuid.New(), now, map[string]int{me.String(): 2, other.String(): 0}),
		summaryAt(uuid.New(), now, map[string]int{me.String(): 3}),
		summaryAt(uuid.New(), now, map[string]int{other.String(): 9}),
	}

	assert.Equal(t, 5, unreadTotal(list, me))
	assert.Equal(t, 0, unreadTotal(nil, me))
}

func TestPrependOlder_ChronologicalAndDeduped(t *testing.T) {
	entries := []MessageEntry{
		{Message: domain.Message{ID: 10}},
		{Message: domain.Message{ID: 11}},
	}

	// Страница с провода, новые первыми; id 10 уже известен
	page := []domain.Message{
		{ID: 9},
		{ID: 8},
		{ID: 10},
	}

	entries = prependOlder(entries, page)

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Message.ID)
	}
	assert.Equal(t, []int64{8, 9, 10, 11}, ids)
}

func TestEarliestID(t *testing.T) {
	assert.Equal(t, int64(0), earliestID(nil))

	entries := []MessageEntry{
		{CorrelationID: "c1", Pending: true},
		{Message: domain.Message{ID: 4}},
		{Message: domain.Message{ID: 5}},
	}
	// Заглушки без durable id курсором не считаются
	assert.Equal(t, int64(4), earliestID(entries))
}
