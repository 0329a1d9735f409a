package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memRepo struct {
	tokens map[int64]Token
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{tokens: make(map[int64]Token)}
}

func (m *memRepo) CreateToken(_ context.Context, token Token) (Token, error) {
	m.nextID++
	token.ID = m.nextID
	token.CreatedAt = time.Now()
	m.tokens[token.ID] = token
	return token, nil
}

func (m *memRepo) GetToken(_ context.Context, id int64) (Token, error) {
	token, ok := m.tokens[id]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

func (m *memRepo) TouchToken(_ context.Context, id int64, usedAt time.Time) error {
	token, ok := m.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	token.LastUsedAt = &usedAt
	m.tokens[id] = token
	return nil
}

func (m *memRepo) RevokeToken(_ context.Context, id int64) error {
	token, ok := m.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	token.IsActive = false
	m.tokens[id] = token
	return nil
}

func TestMintAndAuthenticate(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	plaintext, token, err := svc.Mint(context.Background(), "ci", 42)
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)
	require.True(t, token.IsActive)

	actorID, err := svc.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)
	require.Equal(t, int64(42), actorID)
	require.NotNil(t, repo.tokens[token.ID].LastUsedAt)
}

func TestAuthenticateRejectsBadSecret(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	_, token, err := svc.Mint(context.Background(), "ci", 42)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "1.deadbeef")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Authenticate(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, svc.Revoke(context.Background(), token.ID))
	_, err = svc.Authenticate(context.Background(), "1.deadbeef")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	plaintext, token, err := svc.Mint(context.Background(), "ci", 42)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), token.ID))

	_, err = svc.Authenticate(context.Background(), plaintext)
	require.ErrorIs(t, err, ErrInvalidToken)
}
