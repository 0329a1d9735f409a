package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) CreateToken(ctx context.Context, token Token) (Token, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO api_tokens (name, secret_hash, actor_id, is_active)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		token.Name, token.SecretHash, token.ActorID, token.IsActive).
		Scan(&token.ID, &token.CreatedAt)
	return token, err
}

func (r *PGRepository) GetToken(ctx context.Context, id int64) (Token, error) {
	var token Token
	err := r.pool.QueryRow(ctx, `SELECT id, name, secret_hash, actor_id, is_active, created_at, last_used_at
FROM api_tokens WHERE id=$1`, id).
		Scan(&token.ID, &token.Name, &token.SecretHash, &token.ActorID, &token.IsActive, &token.CreatedAt, &token.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, err
	}
	return token, nil
}

func (r *PGRepository) TouchToken(ctx context.Context, id int64, usedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at=$2 WHERE id=$1`, id, usedAt)
	return err
}

func (r *PGRepository) RevokeToken(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE api_tokens SET is_active=false WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
