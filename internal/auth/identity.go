// Package auth resolves who is making a request and whether they passed
// bot verification.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/samsaffron/pulse/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Identity is an authenticated user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider signs users up and in, and resolves session tokens.
type Provider struct {
	users store.Users
	ttl   time.Duration
	cost  int
	now   func() time.Time

	dummyOnce sync.Once
	dummy     []byte
}

// NewProvider creates an identity provider. Tokens live for ttl.
func NewProvider(users store.Users, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Provider{users: users, ttl: ttl, cost: bcrypt.DefaultCost, now: time.Now}
}

// TTL returns how long issued tokens stay valid.
func (p *Provider) TTL() time.Duration {
	return p.ttl
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Signup creates a user and returns a fresh session token for them.
func (p *Provider) Signup(ctx context.Context, email, password string) (*Identity, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if len(password) < 8 {
		return nil, "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	u, err := p.users.CreateUser(ctx, email, string(hash))
	if err != nil {
		return nil, "", err
	}
	token, err := p.issue(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return &Identity{ID: u.ID, Email: u.Email}, token, nil
}

// Authenticate checks a password and returns a fresh session token.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*Identity, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	u, err := p.users.UserByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if u == nil {
		// Keep timing similar to the wrong-password path.
		_ = bcrypt.CompareHashAndPassword(p.dummyHash(), []byte(password))
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := p.issue(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return &Identity{ID: u.ID, Email: u.Email}, token, nil
}

// Validate resolves a token. It returns nil for unknown or expired tokens.
func (p *Provider) Validate(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	u, err := p.users.TokenUser(ctx, digest(token), p.now())
	if err != nil || u == nil {
		return nil, err
	}
	return &Identity{ID: u.ID, Email: u.Email}, nil
}

// Revoke invalidates a token.
func (p *Provider) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return p.users.DeleteToken(ctx, digest(token))
}

// Purge removes expired tokens.
func (p *Provider) Purge(ctx context.Context) (int64, error) {
	return p.users.PurgeExpiredTokens(ctx, p.now())
}

func (p *Provider) issue(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := p.users.CreateToken(ctx, digest(token), userID, p.now().Add(p.ttl)); err != nil {
		return "", err
	}
	return token, nil
}

func (p *Provider) dummyHash() []byte {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("not a real password"), p.cost)
	})
	return p.dummy
}

// digest is what the store keeps instead of the raw token.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
