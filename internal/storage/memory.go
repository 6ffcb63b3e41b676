package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/studio-arteamo/sitecms/internal/log"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process. Records are lost on restart,
// which only weakens replay protection across restarts.
type MemoryStorage struct {
	statesMu sync.Mutex
	states   map[string]time.Time // nonce -> expiry

	usersMu sync.RWMutex
	users   map[string]*UserRecord

	commitsMu sync.RWMutex
	commits   []CommitRecord

	now func() time.Time
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		states: make(map[string]time.Time),
		users:  make(map[string]*UserRecord),
		now:    time.Now,
	}
}

// ConsumeState marks nonce as used.
func (s *MemoryStorage) ConsumeState(_ context.Context, nonce string, expiresAt time.Time) error {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	if exp, ok := s.states[nonce]; ok && s.now().Before(exp) {
		return ErrStateReused
	}
	s.states[nonce] = expiresAt
	return nil
}

// RecordLogin upserts the user's login record.
func (s *MemoryStorage) RecordLogin(_ context.Context, email, name, picture string, at time.Time) error {
	key := strings.ToLower(email)

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, ok := s.users[key]
	if !ok {
		u = &UserRecord{Email: key, FirstSeen: at}
		s.users[key] = u
	}
	u.Name = name
	u.Picture = picture
	u.LastSeen = at
	u.Logins++
	return nil
}

// RecordCommit appends to the commit history.
func (s *MemoryStorage) RecordCommit(_ context.Context, rec CommitRecord) error {
	s.commitsMu.Lock()
	s.commits = append(s.commits, rec)
	s.commitsMu.Unlock()
	return nil
}

// ListCommits returns the newest commits first.
func (s *MemoryStorage) ListCommits(_ context.Context, limit int) ([]CommitRecord, error) {
	s.commitsMu.RLock()
	out := make([]CommitRecord, len(s.commits))
	copy(out, s.commits)
	s.commitsMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CleanupExpired drops state markers past their expiry.
func (s *MemoryStorage) CleanupExpired(_ context.Context) (int, error) {
	now := s.now()

	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	removed := 0
	for nonce, exp := range s.states {
		if !now.Before(exp) {
			delete(s.states, nonce)
			removed++
		}
	}

	if removed > 0 {
		log.LogTraceWithFields("storage", "Removed expired state markers", map[string]any{
			"count": removed,
		})
	}
	return removed, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}
