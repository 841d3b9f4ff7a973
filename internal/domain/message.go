package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             int64     `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	ReceiverID     uuid.UUID `json:"receiver_id"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	File           *FileMeta `json:"file,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// FileMeta присутствует только у сообщений типа file
type FileMeta struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
	MessageTypeGif  = "gif"
)

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeGif:
		return true
	}
	return false
}
