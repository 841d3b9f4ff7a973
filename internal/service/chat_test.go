package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

// fakeConversationRepo хранит диалоги в памяти, имитируя уникальность пары
type fakeConversationRepo struct {
	byPair  map[string]*domain.Conversation
	creates int
	failAll bool
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{byPair: make(map[string]*domain.Conversation)}
}

func pairKey(x, y uuid.UUID) string {
	a, b := domain.NormalizePair(x, y)
	return a.String() + ":" + b.String()
}

func (f *fakeConversationRepo) FindOrCreate(_ context.Context, x, y uuid.UUID) (*domain.Conversation, bool, error) {
	if f.failAll {
		return nil, false, errors.New("store unavailable")
	}
	if x == y {
		return nil, false, apperrors.ErrSelfConversation
	}
	key := pairKey(x, y)
	if conv, ok := f.byPair[key]; ok {
		return conv, false, nil
	}
	a, b := domain.NormalizePair(x, y)
	conv := &domain.Conversation{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.byPair[key] = conv
	f.creates++
	return conv, true, nil
}

func (f *fakeConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	for _, conv := range f.byPair {
		if conv.ID == id {
			return conv, nil
		}
	}
	return nil, apperrors.ErrConversationNotFound
}

func (f *fakeConversationRepo) ListForPrincipal(_ context.Context, principalID uuid.UUID, _, _ int) ([]*domain.Conversation, error) {
	var out []*domain.Conversation
	for _, conv := range f.byPair {
		if conv.HasParticipant(principalID) {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) ApplyMessage(_ context.Context, conversationID uuid.UUID, msg *domain.Message) (*domain.Conversation, error) {
	conv, err := f.GetByID(context.Background(), conversationID)
	if err != nil {
		return nil, err
	}
	if conv.ParticipantA == msg.ReceiverID {
		conv.UnreadA++
	} else {
		conv.UnreadB++
	}
	conv.LastMessage = msg
	conv.UpdatedAt = msg.CreatedAt
	return conv, nil
}

func (f *fakeConversationRepo) ResetUnread(_ context.Context, conversationID, principalID uuid.UUID) (*domain.Conversation, error) {
	conv, err := f.GetByID(context.Background(), conversationID)
	if err != nil {
		return nil, apperrors.ErrNotParticipant
	}
	if !conv.HasParticipant(principalID) {
		return nil, apperrors.ErrNotParticipant
	}
	if conv.ParticipantA == principalID {
		conv.UnreadA = 0
	} else {
		conv.UnreadB = 0
	}
	return conv, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*domain.Message
	nextID   int64
	failAll  bool
}

func (f *fakeMessageRepo) Create(_ context.Context, message *domain.Message) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	message.ID = f.nextID
	message.CreatedAt = time.Now()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeMessageRepo) ListBefore(_ context.Context, conversationID uuid.UUID, beforeID int64, limit int) ([]*domain.Message, error) {
	var out []*domain.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := f.messages[i]
		if m.ConversationID != conversationID {
			continue
		}
		if beforeID != 0 && m.ID >= beforeID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMessageRepo) MarkRead(_ context.Context, conversationID, receiverID uuid.UUID) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func newTestChatService() (ChatService, *fakeConversationRepo, *fakeMessageRepo) {
	convRepo := newFakeConversationRepo()
	msgRepo := &fakeMessageRepo{}
	return NewChatService(convRepo, msgRepo, logger.NewNop()), convRepo, msgRepo
}

func TestChatService_SendMessage_FirstContact(t *testing.T) {
	svc, convRepo, msgRepo := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	msg, summary, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
		ReceiverID: bob,
		Type:       domain.MessageTypeText,
		Content:    "hi",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, convRepo.creates)
	assert.Len(t, msgRepo.messages, 1)
	assert.Equal(t, alice, msg.SenderID)
	assert.False(t, msg.Read)

	// Unread инкрементится только у получателя
	assert.Equal(t, 1, summary.UnreadFor(bob))
	assert.Equal(t, 0, summary.UnreadFor(alice))
	require.NotNil(t, summary.LastMessage)
	assert.Equal(t, msg.ID, summary.LastMessage.ID)
}

func TestChatService_SendMessage_ReusesConversation(t *testing.T) {
	svc, convRepo, _ := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	_, _, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
		ReceiverID: bob, Type: domain.MessageTypeText, Content: "one",
	})
	require.NoError(t, err)

	// Ответ в обратную сторону не создает второй диалог той же пары
	_, summary, err := svc.SendMessage(context.Background(), bob, &SendMessageInput{
		ReceiverID: alice, Type: domain.MessageTypeText, Content: "two",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, convRepo.creates)
	assert.Equal(t, 1, summary.UnreadFor(alice))
	assert.Equal(t, 1, summary.UnreadFor(bob))
}

func TestChatService_SendMessage_Validation(t *testing.T) {
	svc, _, msgRepo := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	tests := []struct {
		name    string
		in      *SendMessageInput
		wantErr error
	}{
		{
			name:    "missing receiver",
			in:      &SendMessageInput{Type: domain.MessageTypeText, Content: "hi"},
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			name:    "empty text after trim",
			in:      &SendMessageInput{ReceiverID: bob, Type: domain.MessageTypeText, Content: "   "},
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			name:    "unknown type",
			in:      &SendMessageInput{ReceiverID: bob, Type: "sticker", Content: "hi"},
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			name:    "file without meta",
			in:      &SendMessageInput{ReceiverID: bob, Type: domain.MessageTypeFile},
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			name:    "message to self",
			in:      &SendMessageInput{ReceiverID: alice, Type: domain.MessageTypeText, Content: "hi"},
			wantErr: apperrors.ErrSelfConversation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SendMessage(context.Background(), alice, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Отклоненные события ничего не пишут
	assert.Empty(t, msgRepo.messages)
}

func TestChatService_SendMessage_PersistenceFailure(t *testing.T) {
	svc, _, msgRepo := newTestChatService()
	msgRepo.failAll = true

	_, _, err := svc.SendMessage(context.Background(), uuid.New(), &SendMessageInput{
		ReceiverID: uuid.New(), Type: domain.MessageTypeText, Content: "hi",
	})

	assert.Error(t, err)
}

func TestChatService_MarkRead(t *testing.T) {
	svc, _, msgRepo := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	_, summary, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
		ReceiverID: bob, Type: domain.MessageTypeText, Content: "hi",
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.UnreadFor(bob))

	summary, err = svc.MarkRead(context.Background(), bob, summary.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.UnreadFor(bob))
	assert.Equal(t, 0, summary.UnreadFor(alice))
	assert.True(t, msgRepo.messages[0].Read)
}

func TestChatService_MarkRead_NotParticipant(t *testing.T) {
	svc, _, _ := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	_, summary, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
		ReceiverID: bob, Type: domain.MessageTypeText, Content: "hi",
	})
	require.NoError(t, err)

	_, err = svc.MarkRead(context.Background(), uuid.New(), summary.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestChatService_GetMessages_ParticipantOnly(t *testing.T) {
	svc, _, _ := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	_, summary, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
		ReceiverID: bob, Type: domain.MessageTypeText, Content: "hi",
	})
	require.NoError(t, err)

	messages, err := svc.GetMessages(context.Background(), bob, summary.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	_, err = svc.GetMessages(context.Background(), uuid.New(), summary.ID, 0, 10)
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestChatService_GetMessages_BeforeCursor(t *testing.T) {
	svc, _, _ := newTestChatService()
	alice := uuid.New()
	bob := uuid.New()

	var convID uuid.UUID
	for i := 0; i < 5; i++ {
		_, summary, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
			ReceiverID: bob, Type: domain.MessageTypeText, Content: "msg",
		})
		require.NoError(t, err)
		convID = summary.ID
	}

	// Страница старше id=4: сообщения 3, 2, 1, новые первыми
	messages, err := svc.GetMessages(context.Background(), alice, convID, 4, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(3), messages[0].ID)
	assert.Equal(t, int64(2), messages[1].ID)
}

// racingConversationRepo воспроизводит гонку двух одновременных первых
// сообщений: барьер держит обе горутины после промаха select, так что обе
// доходят до insert; проигравший получает конфликт уникального индекса
// и перечитывает строку победителя.
type racingConversationRepo struct {
	mu      sync.Mutex
	byPair  map[string]*domain.Conversation
	creates int
	barrier *sync.WaitGroup
}

func (f *racingConversationRepo) FindOrCreate(_ context.Context, x, y uuid.UUID) (*domain.Conversation, bool, error) {
	key := pairKey(x, y)

	f.mu.Lock()
	if conv, ok := f.byPair[key]; ok {
		f.mu.Unlock()
		return conv, false, nil
	}
	f.mu.Unlock()

	// Обе горутины промахнулись мимо select до чьего-либо insert
	f.barrier.Done()
	f.barrier.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.byPair[key]; ok {
		// Проигравший insert: конфликт пары, перечитываем
		return conv, false, nil
	}

	a, b := domain.NormalizePair(x, y)
	conv := &domain.Conversation{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.byPair[key] = conv
	f.creates++
	return conv, true, nil
}

func (f *racingConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.byPair {
		if conv.ID == id {
			return conv, nil
		}
	}
	return nil, apperrors.ErrConversationNotFound
}

func (f *racingConversationRepo) ListForPrincipal(_ context.Context, _ uuid.UUID, _, _ int) ([]*domain.Conversation, error) {
	return nil, nil
}

func (f *racingConversationRepo) ApplyMessage(_ context.Context, conversationID uuid.UUID, msg *domain.Message) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.byPair {
		if conv.ID != conversationID {
			continue
		}
		if conv.ParticipantA == msg.ReceiverID {
			conv.UnreadA++
		} else {
			conv.UnreadB++
		}
		conv.LastMessage = msg
		conv.UpdatedAt = msg.CreatedAt
		return conv, nil
	}
	return nil, apperrors.ErrConversationNotFound
}

func (f *racingConversationRepo) ResetUnread(_ context.Context, conversationID, principalID uuid.UUID) (*domain.Conversation, error) {
	return nil, apperrors.ErrNotParticipant
}

func TestChatService_SendMessage_ConcurrentFirstContact(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)

	convRepo := &racingConversationRepo{
		byPair:  make(map[string]*domain.Conversation),
		barrier: &barrier,
	}
	msgRepo := &fakeMessageRepo{}
	svc := NewChatService(convRepo, msgRepo, logger.NewNop())

	alice := uuid.New()
	bob := uuid.New()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, summary, err := svc.SendMessage(context.Background(), alice, &SendMessageInput{
			ReceiverID: bob, Type: domain.MessageTypeText, Content: "first",
		})
		errs[0] = err
		if err == nil {
			ids[0] = summary.ID
		}
	}()
	go func() {
		defer wg.Done()
		_, summary, err := svc.SendMessage(context.Background(), bob, &SendMessageInput{
			ReceiverID: alice, Type: domain.MessageTypeText, Content: "second",
		})
		errs[1] = err
		if err == nil {
			ids[1] = summary.ID
		}
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Гонка сошлась на одном диалоге: одна строка, оба сообщения в ней
	assert.Equal(t, 1, convRepo.creates)
	assert.Equal(t, ids[0], ids[1])
	assert.Len(t, msgRepo.messages, 2)
}
