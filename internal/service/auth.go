package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

const apiTokenPrefix = "dhk_"

// AuthService resolves bearer tokens to principals. Tokens are held only as
// SHA-256 hashes.
type AuthService struct {
	principals map[string]domain.Principal
}

// NewAuthService builds the token table from token to role-name pairs.
func NewAuthService(tokens map[string]string) (*AuthService, error) {
	principals := make(map[string]domain.Principal, len(tokens))
	for token, roleName := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "api token cannot be empty")
		}
		role, err := domain.ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("api token %s: %w", subjectFor(hashToken(token)), err)
		}
		hash := hashToken(token)
		principals[hash] = domain.Principal{
			Subject: subjectFor(hash),
			Role:    role,
		}
	}
	return &AuthService{principals: principals}, nil
}

// Authenticate returns the principal bound to token.
func (s *AuthService) Authenticate(_ context.Context, token string) (*domain.Principal, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	p, ok := s.principals[hashToken(token)]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return &p, nil
}

// Len returns the number of configured tokens.
func (s *AuthService) Len() int {
	return len(s.principals)
}

// GenerateAPIToken returns a new random token.
func GenerateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiTokenPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// subjectFor derives a stable, non-secret caller id from a token hash.
func subjectFor(hash string) string {
	return "tok_" + hash[:12]
}
