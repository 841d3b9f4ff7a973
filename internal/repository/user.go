package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	// Search ищет principal по фрагменту username или display_name
	Search(ctx context.Context, fragment string, limit int) ([]*domain.Principal, error)
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	query := `
		SELECT id, kind, username, display_name, avatar_url, created_at
		FROM principals
		WHERE id = $1
	`

	principal := &domain.Principal{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&principal.ID, &principal.Kind, &principal.Username,
		&principal.DisplayName, &principal.AvatarURL, &principal.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrPrincipalNotFound
	}
	if err != nil {
		r.log.Error("Failed to get principal", "error", err, "principal_id", id)
		return nil, err
	}

	return principal, nil
}

func (r *userRepository) Search(ctx context.Context, fragment string, limit int) ([]*domain.Principal, error) {
	query := `
		SELECT id, kind, username, display_name, avatar_url, created_at
		FROM principals
		WHERE username ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%'
		ORDER BY username
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, fragment, limit)
	if err != nil {
		r.log.Error("Failed to search principals", "error", err)
		return nil, err
	}
	defer rows.Close()

	var principals []*domain.Principal
	for rows.Next() {
		principal := &domain.Principal{}
		err := rows.Scan(
			&principal.ID, &principal.Kind, &principal.Username,
			&principal.DisplayName, &principal.AvatarURL, &principal.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan principal", "error", err)
			return nil, err
		}
		principals = append(principals, principal)
	}

	return principals, rows.Err()
}
