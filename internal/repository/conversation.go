package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type ConversationRepository interface {
	// FindOrCreate возвращает диалог пары, создавая его при отсутствии.
	// Гонка двух одновременных первых сообщений разрешается уникальным
	// индексом на нормализованную пару: проигравший insert перечитывает строку.
	FindOrCreate(ctx context.Context, x, y uuid.UUID) (*domain.Conversation, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	ListForPrincipal(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*domain.Conversation, error)
	// ApplyMessage атомарно инкрементит unread получателя, проставляет
	// last_message и updated_at; возвращает обновленный диалог.
	ApplyMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) (*domain.Conversation, error)
	ResetUnread(ctx context.Context, conversationID, principalID uuid.UUID) (*domain.Conversation, error)
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

const conversationColumns = `
	c.id, c.participant_a, c.participant_b, c.unread_a, c.unread_b, c.created_at, c.updated_at,
	m.id, m.conversation_id, m.sender_id, m.receiver_id, m.message_type, m.content,
	m.file_url, m.file_name, m.file_mime, m.file_size, m.read, m.created_at
`

func (r *conversationRepository) FindOrCreate(ctx context.Context, x, y uuid.UUID) (*domain.Conversation, bool, error) {
	if x == y {
		return nil, false, apperrors.ErrSelfConversation
	}
	a, b := domain.NormalizePair(x, y)

	// Сначала ищем существующий диалог
	conv, err := r.getByPair(ctx, a, b)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	insert := `
		INSERT INTO conversations (id, participant_a, participant_b, unread_a, unread_b, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, NOW(), NOW())
		RETURNING id, participant_a, participant_b, unread_a, unread_b, created_at, updated_at
	`

	conv = &domain.Conversation{}
	err = r.db.QueryRow(ctx, insert, uuid.New(), a, b).Scan(
		&conv.ID, &conv.ParticipantA, &conv.ParticipantB,
		&conv.UnreadA, &conv.UnreadB, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == nil {
		return conv, true, nil
	}

	// 23505 = unique_violation: параллельный insert этой же пары успел раньше
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		conv, err = r.getByPair(ctx, a, b)
		if err != nil {
			r.log.Error("Failed to re-read conversation after conflict", "error", err)
			return nil, false, err
		}
		return conv, false, nil
	}

	r.log.Error("Failed to create conversation", "error", err)
	return nil, false, err
}

func (r *conversationRepository) getByPair(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM conversations c
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.participant_a = $1 AND c.participant_b = $2
	`, conversationColumns)

	return scanConversation(r.db.QueryRow(ctx, query, a, b))
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM conversations c
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.id = $1
	`, conversationColumns)

	conv, err := scanConversation(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		r.log.Error("Failed to get conversation", "error", err, "conversation_id", id)
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) ListForPrincipal(ctx context.Context, principalID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM conversations c
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.participant_a = $1 OR c.participant_b = $1
		ORDER BY c.updated_at DESC
		LIMIT $2 OFFSET $3
	`, conversationColumns)

	rows, err := r.db.Query(ctx, query, principalID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

func (r *conversationRepository) ApplyMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) (*domain.Conversation, error) {
	query := `
		UPDATE conversations
		SET last_message_id = $2,
		    updated_at = $3,
		    unread_a = unread_a + CASE WHEN participant_a = $4 THEN 1 ELSE 0 END,
		    unread_b = unread_b + CASE WHEN participant_b = $4 THEN 1 ELSE 0 END
		WHERE id = $1
		RETURNING id, participant_a, participant_b, unread_a, unread_b, created_at, updated_at
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, conversationID, msg.ID, msg.CreatedAt, msg.ReceiverID).Scan(
		&conv.ID, &conv.ParticipantA, &conv.ParticipantB,
		&conv.UnreadA, &conv.UnreadB, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to apply message to conversation", "error", err, "conversation_id", conversationID)
		return nil, err
	}

	conv.LastMessage = msg
	return conv, nil
}

func (r *conversationRepository) ResetUnread(ctx context.Context, conversationID, principalID uuid.UUID) (*domain.Conversation, error) {
	query := `
		UPDATE conversations
		SET unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
		    unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1 AND (participant_a = $2 OR participant_b = $2)
		RETURNING id, participant_a, participant_b, unread_a, unread_b, created_at, updated_at
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, conversationID, principalID).Scan(
		&conv.ID, &conv.ParticipantA, &conv.ParticipantB,
		&conv.UnreadA, &conv.UnreadB, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotParticipant
	}
	if err != nil {
		r.log.Error("Failed to reset unread count", "error", err, "conversation_id", conversationID)
		return nil, err
	}

	return conv, nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	msg := &domain.Message{}
	var (
		msgID       *int64
		msgConvID   *uuid.UUID
		msgSender   *uuid.UUID
		msgReceiver *uuid.UUID
		msgType     *string
		msgContent  *string
		fileURL     *string
		fileName    *string
		fileMime    *string
		fileSize    *int64
		msgRead     *bool
		msgCreated  *time.Time
	)

	err := row.Scan(
		&conv.ID, &conv.ParticipantA, &conv.ParticipantB,
		&conv.UnreadA, &conv.UnreadB, &conv.CreatedAt, &conv.UpdatedAt,
		&msgID, &msgConvID, &msgSender, &msgReceiver, &msgType, &msgContent,
		&fileURL, &fileName, &fileMime, &fileSize, &msgRead, &msgCreated,
	)
	if err != nil {
		return nil, err
	}

	if msgID != nil {
		msg.ID = *msgID
		msg.ConversationID = *msgConvID
		msg.SenderID = *msgSender
		msg.ReceiverID = *msgReceiver
		msg.Type = *msgType
		msg.Content = *msgContent
		msg.Read = *msgRead
		msg.CreatedAt = *msgCreated
		if fileURL != nil {
			msg.File = &domain.FileMeta{URL: *fileURL, Name: *fileName, Mime: *fileMime, Size: *fileSize}
		}
		conv.LastMessage = msg
	}

	return conv, nil
}
