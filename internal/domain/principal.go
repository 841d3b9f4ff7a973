package domain

import (
	"time"

	"github.com/google/uuid"
)

// Principal это пользователь или именованная identity. Записью владеет
// identity-подсистема, мессенджер только читает.
type Principal struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	PrincipalKindUser     = "user"
	PrincipalKindIdentity = "identity"
)
