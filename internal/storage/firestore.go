package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/studio-arteamo/sitecms/internal/crypto"
	"github.com/studio-arteamo/sitecms/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Storage = (*FirestoreStorage)(nil)

// FirestoreStorage persists state markers, login records and commit history
// in Google Cloud Firestore. Names and pictures are encrypted at rest.
type FirestoreStorage struct {
	client    *firestore.Client
	encryptor crypto.Encryptor
	states    string
	users     string
	commits   string
}

type stateDoc struct {
	ExpiresAt time.Time `firestore:"expires_at"`
}

type userDoc struct {
	Email     string    `firestore:"email"`
	Name      string    `firestore:"name"`    // encrypted
	Picture   string    `firestore:"picture"` // encrypted
	FirstSeen time.Time `firestore:"first_seen"`
	LastSeen  time.Time `firestore:"last_seen"`
	Logins    int64     `firestore:"logins"`
}

type commitDoc struct {
	SHA         string    `firestore:"sha"`
	URL         string    `firestore:"url"`
	Message     string    `firestore:"message"`
	Path        string    `firestore:"path"`
	Branch      string    `firestore:"branch"`
	AuthorEmail string    `firestore:"author_email"`
	AuthorName  string    `firestore:"author_name"` // encrypted
	CreatedAt   time.Time `firestore:"created_at"`
}

// NewFirestoreStorage connects to Firestore. Collections are named
// <prefix>_states, <prefix>_users and <prefix>_commits.
func NewFirestoreStorage(ctx context.Context, projectID, database, prefix string, encryptor crypto.Encryptor) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if prefix == "" {
		return nil, fmt.Errorf("collection prefix is required")
	}

	var (
		client *firestore.Client
		err    error
	)
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStorage{
		client:    client,
		encryptor: encryptor,
		states:    prefix + "_states",
		users:     prefix + "_users",
		commits:   prefix + "_commits",
	}, nil
}

// ConsumeState creates a marker document keyed by nonce. Create fails
// with AlreadyExists when the nonce was seen before.
func (s *FirestoreStorage) ConsumeState(ctx context.Context, nonce string, expiresAt time.Time) error {
	_, err := s.client.Collection(s.states).Doc(nonce).Create(ctx, stateDoc{ExpiresAt: expiresAt})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrStateReused
		}
		return fmt.Errorf("failed to record state: %w", err)
	}
	return nil
}

// RecordLogin upserts the user's record inside a transaction.
func (s *FirestoreStorage) RecordLogin(ctx context.Context, email, name, picture string, at time.Time) error {
	email = strings.ToLower(email)
	encName, err := s.encryptor.Encrypt(name)
	if err != nil {
		return fmt.Errorf("encrypting name: %w", err)
	}
	encPicture, err := s.encryptor.Encrypt(picture)
	if err != nil {
		return fmt.Errorf("encrypting picture: %w", err)
	}

	ref := s.client.Collection(s.users).Doc(email)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return tx.Create(ref, userDoc{
				Email:     email,
				Name:      encName,
				Picture:   encPicture,
				FirstSeen: at,
				LastSeen:  at,
				Logins:    1,
			})
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "name", Value: encName},
			{Path: "picture", Value: encPicture},
			{Path: "last_seen", Value: at},
			{Path: "logins", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// RecordCommit stores rec under its ID.
func (s *FirestoreStorage) RecordCommit(ctx context.Context, rec CommitRecord) error {
	if rec.ID == "" {
		return errors.New("commit record id is required")
	}
	authorName, err := s.encryptor.Encrypt(rec.AuthorName)
	if err != nil {
		return fmt.Errorf("encrypting author: %w", err)
	}

	_, err = s.client.Collection(s.commits).Doc(rec.ID).Set(ctx, commitDoc{
		SHA:         rec.SHA,
		URL:         rec.URL,
		Message:     rec.Message,
		Path:        rec.Path,
		Branch:      rec.Branch,
		AuthorEmail: rec.AuthorEmail,
		AuthorName:  authorName,
		CreatedAt:   rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record commit: %w", err)
	}
	return nil
}

// ListCommits returns up to limit commits, newest first.
func (s *FirestoreStorage) ListCommits(ctx context.Context, limit int) ([]CommitRecord, error) {
	q := s.client.Collection(s.commits).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []CommitRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list commits: %w", err)
		}

		var d commitDoc
		if err := doc.DataTo(&d); err != nil {
			log.LogErrorWithFields("storage", "Skipping unreadable commit record", map[string]any{
				"id":    doc.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		authorName, err := s.encryptor.Decrypt(d.AuthorName)
		if err != nil {
			authorName = ""
		}

		out = append(out, CommitRecord{
			ID:          doc.Ref.ID,
			SHA:         d.SHA,
			URL:         d.URL,
			Message:     d.Message,
			Path:        d.Path,
			Branch:      d.Branch,
			AuthorEmail: d.AuthorEmail,
			AuthorName:  authorName,
			CreatedAt:   d.CreatedAt,
		})
	}
	return out, nil
}

// CleanupExpired deletes state markers past their expiry.
func (s *FirestoreStorage) CleanupExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.states).Where("expires_at", "<=", time.Now()).Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("failed to query expired states: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
			return removed, fmt.Errorf("failed to delete state %s: %w", doc.Ref.ID, err)
		}
		removed++
	}
	return removed, nil
}

// Close closes the Firestore client.
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
