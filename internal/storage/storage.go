package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStateReused is returned when a login state nonce is presented twice.
	ErrStateReused = errors.New("state already used")
)

// UserRecord tracks admins who have signed in.
type UserRecord struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Logins    int64     `json:"logins"`
}

// CommitRecord is one configuration commit made through the service.
type CommitRecord struct {
	ID          string    `json:"id"`
	SHA         string    `json:"sha"`
	URL         string    `json:"url"`
	Message     string    `json:"message"`
	Path        string    `json:"path"`
	Branch      string    `json:"branch"`
	AuthorEmail string    `json:"author_email"`
	AuthorName  string    `json:"author_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateStore marks login states as used.
type StateStore interface {
	// ConsumeState records nonce as used until expiresAt. It returns
	// ErrStateReused if the nonce was already consumed.
	ConsumeState(ctx context.Context, nonce string, expiresAt time.Time) error
}

// UserStore keeps a login audit.
type UserStore interface {
	RecordLogin(ctx context.Context, email, name, picture string, at time.Time) error
}

// CommitStore keeps commit history.
type CommitStore interface {
	RecordCommit(ctx context.Context, rec CommitRecord) error
	// ListCommits returns up to limit records, newest first.
	ListCommits(ctx context.Context, limit int) ([]CommitRecord, error)
}

// Storage combines everything the service persists.
type Storage interface {
	StateStore
	UserStore
	CommitStore

	// CleanupExpired removes consumed states past their expiry.
	CleanupExpired(ctx context.Context) (int, error)
	Close() error
}
