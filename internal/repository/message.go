package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"messenger/internal/domain"
	"messenger/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	// ListBefore отдает страницу сообщений строго старше beforeID
	// (beforeID == 0 значит самая свежая страница), новые первыми.
	ListBefore(ctx context.Context, conversationID uuid.UUID, beforeID int64, limit int) ([]*domain.Message, error)
	// MarkRead помечает прочитанными сообщения, адресованные receiverID
	MarkRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, message_type, content,
		                      file_url, file_name, file_mime, file_size, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at
	`

	var fileURL, fileName, fileMime *string
	var fileSize *int64
	if message.File != nil {
		fileURL = &message.File.URL
		fileName = &message.File.Name
		fileMime = &message.File.Mime
		fileSize = &message.File.Size
	}

	err := r.db.QueryRow(ctx, query,
		message.ConversationID, message.SenderID, message.ReceiverID, message.Type,
		message.Content, fileURL, fileName, fileMime, fileSize, message.Read,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	return nil
}

func (r *messageRepository) ListBefore(ctx context.Context, conversationID uuid.UUID, beforeID int64, limit int) ([]*domain.Message, error) {
	// id выдается bigserial, внутри диалога порядок по id совпадает с порядком записи
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, message_type, content,
		       file_url, file_name, file_mime, file_size, read, created_at
		FROM messages
		WHERE conversation_id = $1 AND ($2 = 0 OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, beforeID, limit)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		var fileURL, fileName, fileMime *string
		var fileSize *int64

		err := rows.Scan(
			&message.ID, &message.ConversationID, &message.SenderID, &message.ReceiverID,
			&message.Type, &message.Content, &fileURL, &fileName, &fileMime, &fileSize,
			&message.Read, &message.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		if fileURL != nil {
			message.File = &domain.FileMeta{URL: *fileURL, Name: *fileName, Mime: *fileMime, Size: *fileSize}
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error) {
	query := `
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1 AND receiver_id = $2 AND read = FALSE
	`

	tag, err := r.db.Exec(ctx, query, conversationID, receiverID)
	if err != nil {
		r.log.Error("Failed to mark messages read", "error", err, "conversation_id", conversationID)
		return 0, err
	}

	return tag.RowsAffected(), nil
}
