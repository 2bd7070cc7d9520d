// Package store persists users, auth tokens, site records and their chat
// transcripts.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/pulse/internal/config"
)

// ErrEmailTaken is returned when a signup reuses an existing email.
var ErrEmailTaken = errors.New("email already registered")

// Store is the record store the server writes to after a turn completes.
type Store interface {
	Create(ctx context.Context, ownerID, name, content string) (*Record, error)
	List(ctx context.Context, ownerID string) ([]RecordSummary, error)
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, u RecordUpdate) (*Record, error)
	Delete(ctx context.Context, id string) error

	SaveTranscript(ctx context.Context, recordID string, entries []TranscriptEntry) error
	Transcript(ctx context.Context, recordID string) ([]TranscriptEntry, error)

	Close() error
}

// Users backs the identity provider.
type Users interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)

	CreateToken(ctx context.Context, digest, userID string, expiresAt time.Time) error
	TokenUser(ctx context.Context, digest string, now time.Time) (*User, error)
	DeleteToken(ctx context.Context, digest string) error
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Record is a saved site: one HTML document owned by a user.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Name      string    `json:"name"`
	Content   string    `json:"html"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RecordSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordUpdate is a partial update; nil fields are left alone.
type RecordUpdate struct {
	Name    *string
	Content *string
}

func (u RecordUpdate) Empty() bool {
	return u.Name == nil && u.Content == nil
}

// TranscriptEntry is one chat message saved alongside a record.
type TranscriptEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// NewID returns a fresh identifier.
func NewID() string {
	return uuid.NewString()
}

// GetDBPath returns the default database location.
func GetDBPath() (string, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", fmt.Errorf("get data dir: %w", err)
	}
	return filepath.Join(dataDir, "pulse.db"), nil
}
