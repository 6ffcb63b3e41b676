package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/studio-arteamo/sitecms/internal/cookie"
	"github.com/studio-arteamo/sitecms/internal/crypto"
)

const (
	// DefaultStateTTL bounds the login round trip.
	DefaultStateTTL = 10 * time.Minute
	// DefaultSessionTTL is how long a signed-in admin stays signed in.
	DefaultSessionTTL = 8 * time.Hour
)

var (
	// ErrNoSession means the request carried no session cookie.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession covers bad signatures, malformed tokens and expiry.
	ErrInvalidSession = errors.New("invalid or expired session")
)

// State binds a login attempt to its callback.
type State struct {
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// IssuedAtMillis implements crypto.Timestamped.
func (s State) IssuedAtMillis() int64 { return s.Timestamp }

// User is the identity shown to the admin UI.
type User struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Claims is the session token payload. Times are unix milliseconds.
type Claims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// ExpiresAtMillis implements crypto.Expiring.
func (c Claims) ExpiresAtMillis() int64 { return c.ExpiresAt }

// User returns the identity part of the claims.
func (c Claims) User() User {
	return User{Email: c.Email, Name: c.Name, Picture: c.Picture}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStateTTL overrides DefaultStateTTL.
func WithStateTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stateTTL = d
		}
	}
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sessionTTL = d
		}
	}
}

// WithClock overrides the time source for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager issues and verifies state and session tokens. It is the single
// place session cookies are checked.
type Manager struct {
	states     *crypto.Envelope[State]
	sessions   *crypto.Envelope[Claims]
	stateTTL   time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewManager creates a manager keyed with secret.
func NewManager(secret []byte, opts ...Option) *Manager {
	m := &Manager{
		stateTTL:   DefaultStateTTL,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.states = crypto.NewEnvelope[State](secret, crypto.WithMaxAge(m.stateTTL), crypto.WithClock(m.now))
	m.sessions = crypto.NewEnvelope[Claims](secret, crypto.WithClock(m.now))
	return m
}

// StateTTL returns the state token lifetime.
func (m *Manager) StateTTL() time.Duration { return m.stateTTL }

// SessionTTL returns the session token lifetime.
func (m *Manager) SessionTTL() time.Duration { return m.sessionTTL }

// NewState mints a fresh state and its signed token.
func (m *Manager) NewState() (State, string, error) {
	nonce, err := crypto.GenerateNonce(crypto.NonceBytes)
	if err != nil {
		return State{}, "", fmt.Errorf("generating state nonce: %w", err)
	}

	state := State{Timestamp: m.now().UnixMilli(), Nonce: nonce}
	token, err := m.states.Sign(state)
	if err != nil {
		return State{}, "", fmt.Errorf("signing state: %w", err)
	}
	return state, token, nil
}

// VerifyState checks a state token's signature and age.
func (m *Manager) VerifyState(token string) (State, error) {
	return m.states.Verify(token)
}

// StateExpiry returns when a state stops being accepted.
func (m *Manager) StateExpiry(s State) time.Time {
	return time.UnixMilli(s.Timestamp).Add(m.stateTTL)
}

// Issue mints a session for user.
func (m *Manager) Issue(user User) (Claims, string, error) {
	now := m.now()
	claims := Claims{
		Email:     user.Email,
		Name:      user.Name,
		Picture:   user.Picture,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(m.sessionTTL).UnixMilli(),
	}

	token, err := m.sessions.Sign(claims)
	if err != nil {
		return Claims{}, "", fmt.Errorf("signing session: %w", err)
	}
	return claims, token, nil
}

// Verify checks a session token. Tokens without an expiry are rejected.
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	claims, err := m.sessions.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidSession)
	}
	return &claims, nil
}

// FromRequest verifies the session cookie on r.
func (m *Manager) FromRequest(r *http.Request) (*Claims, error) {
	value, err := cookie.GetSession(r)
	if err != nil {
		return nil, ErrNoSession
	}
	return m.Verify(value)
}
