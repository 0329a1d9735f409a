package auth

import (
	"context"
	"errors"
	"time"
)

// Token is an API credential. Only the bcrypt hash of the secret half is
// stored; the plaintext is shown once at mint time.
type Token struct {
	ID         int64
	Name       string
	SecretHash string
	ActorID    int64
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

var (
	// ErrInvalidToken indicates a missing, malformed, revoked or unknown token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenNotFound indicates an unknown token id.
	ErrTokenNotFound = errors.New("auth: token not found")
)

type contextKey struct{}

// WithActor returns a context carrying the authenticated actor id.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, actorID)
}

// ActorID returns the authenticated actor id, or zero when unauthenticated.
func ActorID(ctx context.Context) int64 {
	if id, ok := ctx.Value(contextKey{}).(int64); ok {
		return id
	}
	return 0
}
