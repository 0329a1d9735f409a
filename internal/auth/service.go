package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Repository defines persistence for API tokens.
type Repository interface {
	CreateToken(ctx context.Context, token Token) (Token, error)
	GetToken(ctx context.Context, id int64) (Token, error)
	TouchToken(ctx context.Context, id int64, usedAt time.Time) error
	RevokeToken(ctx context.Context, id int64) error
}

// Service mints and verifies bearer tokens. The wire form is "<id>.<secret>"
// so verification is a single row lookup plus a bcrypt compare.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the auth service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Mint creates a token for the actor and returns its plaintext once.
func (s *Service) Mint(ctx context.Context, name string, actorID int64) (string, Token, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", Token{}, err
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", Token{}, err
	}
	token, err := s.repo.CreateToken(ctx, Token{
		Name:       name,
		SecretHash: string(hash),
		ActorID:    actorID,
		IsActive:   true,
	})
	if err != nil {
		return "", Token{}, err
	}
	return fmt.Sprintf("%d.%s", token.ID, secret), token, nil
}

// Authenticate verifies a bearer token and returns the actor id it carries.
func (s *Service) Authenticate(ctx context.Context, bearer string) (int64, error) {
	idPart, secret, ok := strings.Cut(bearer, ".")
	if !ok {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	token, err := s.repo.GetToken(ctx, id)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if !token.IsActive {
		return 0, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return 0, ErrInvalidToken
	}
	_ = s.repo.TouchToken(ctx, token.ID, s.now().UTC())
	return token.ActorID, nil
}

// Revoke deactivates a token.
func (s *Service) Revoke(ctx context.Context, id int64) error {
	return s.repo.RevokeToken(ctx, id)
}
