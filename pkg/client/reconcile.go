package client

import (
	"sort"

	"github.com/google/uuid"
	"messenger/internal/domain"
	"messenger/internal/realtime"
)

// MessageEntry это элемент локальной ленты: либо оптимистичная заглушка
// (Pending, узнается по CorrelationID), либо подтвержденное сообщение
// с durable id.
type MessageEntry struct {
	CorrelationID string
	Pending       bool
	Message       domain.Message
}

// mergeConfirmed вливает подтвержденное сообщение в ленту.
// Порядок сверки: сначала по корреляционному id (заглушка отправителя
// заменяется на месте), затем дедупликация по durable id, иначе append.
// Повторная доставка того же события ленту не меняет.
func mergeConfirmed(entries []MessageEntry, p realtime.MessagePayload) []MessageEntry {
	if p.ClientMessageID != "" {
		for i := range entries {
			if entries[i].Pending && entries[i].CorrelationID == p.ClientMessageID {
				entries[i] = MessageEntry{
					CorrelationID: p.ClientMessageID,
					Pending:       false,
					Message:       p.Message,
				}
				return entries
			}
		}
	}

	for i := range entries {
		if !entries[i].Pending && entries[i].Message.ID == p.Message.ID {
			return entries
		}
	}

	return append(entries, MessageEntry{
		CorrelationID: p.ClientMessageID,
		Message:       p.Message,
	})
}

// upsertSummary заменяет срез диалога по id или вставляет новый,
// затем восстанавливает порядок по updated_at (свежие первыми)
func upsertSummary(list []domain.ConversationSummary, s domain.ConversationSummary) []domain.ConversationSummary {
	replaced := false
	for i := range list {
		if list[i].ID == s.ID {
			list[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		list = append([]domain.ConversationSummary{s}, list...)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

// unreadTotal считает бейдж: сумму unread по всем диалогам. Пересчитывается
// от списка целиком, отдельный счетчик не ведется, чтобы не расходился.
func unreadTotal(list []domain.ConversationSummary, principalID uuid.UUID) int {
	total := 0
	for i := range list {
		total += list[i].UnreadFor(principalID)
	}
	return total
}

// prependOlder вставляет страницу более старых сообщений (с провода, новые
// первыми) в начало ленты в хронологическом порядке, пропуская уже известные id
func prependOlder(entries []MessageEntry, page []domain.Message) []MessageEntry {
	known := make(map[int64]struct{}, len(entries))
	for i := range entries {
		if !entries[i].Pending {
			known[entries[i].Message.ID] = struct{}{}
		}
	}

	older := make([]MessageEntry, 0, len(page))
	// Страница перевернута: идем с конца, чтобы получить хронологию
	for i := len(page) - 1; i >= 0; i-- {
		if _, ok := known[page[i].ID]; ok {
			continue
		}
		older = append(older, MessageEntry{Message: page[i]})
	}

	return append(older, entries...)
}

// earliestID возвращает durable id самого старого подтвержденного сообщения
// ленты, курсор для следующей страницы назад; 0 если подтвержденных нет
func earliestID(entries []MessageEntry) int64 {
	for i := range entries {
		if !entries[i].Pending {
			return entries[i].Message.ID
		}
	}
	return 0
}
