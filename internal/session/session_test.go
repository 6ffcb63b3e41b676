package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studio-arteamo/sitecms/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(t *testing.T) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	return NewManager(secret, WithClock(c.now)), c
}

func TestStateLifecycle(t *testing.T) {
	m, c := newTestManager(t)

	state, token, err := m.NewState()
	require.NoError(t, err)
	assert.Len(t, state.Nonce, 32)
	assert.Equal(t, c.t.UnixMilli(), state.Timestamp)
	assert.Equal(t, c.t.Add(10*time.Minute), m.StateExpiry(state))

	got, err := m.VerifyState(token)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	c.t = c.t.Add(10*time.Minute + time.Millisecond)
	_, err = m.VerifyState(token)
	assert.ErrorIs(t, err, crypto.ErrExpired)
}

func TestStateNotAcceptedAsSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, token, err := m.NewState()
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestIssueAndVerify(t *testing.T) {
	m, c := newTestManager(t)
	user := User{Email: "a@x.com", Name: "Ada", Picture: "https://example.com/a.png"}

	claims, token, err := m.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, c.t.UnixMilli(), claims.IssuedAt)
	assert.Equal(t, c.t.Add(8*time.Hour).UnixMilli(), claims.ExpiresAt)

	got, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user, got.User())
}

func TestVerifyExpiryBoundary(t *testing.T) {
	m, c := newTestManager(t)
	env := crypto.NewEnvelope[Claims](secret)

	past, err := env.Sign(Claims{Email: "a@x.com", ExpiresAt: c.t.UnixMilli() - 1})
	require.NoError(t, err)
	_, err = m.Verify(past)
	assert.ErrorIs(t, err, ErrInvalidSession)

	future, err := env.Sign(Claims{Email: "a@x.com", ExpiresAt: c.t.UnixMilli() + 1})
	require.NoError(t, err)
	_, err = m.Verify(future)
	assert.NoError(t, err)

	noExp, err := env.Sign(Claims{Email: "a@x.com"})
	require.NoError(t, err)
	_, err = m.Verify(noExp)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestVerifyWrongSecret(t *testing.T) {
	m, _ := newTestManager(t)
	_, token, err := NewManager([]byte("other")).Issue(User{Email: "a@x.com"})
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestFromRequest(t *testing.T) {
	m, _ := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := m.FromRequest(req)
	assert.ErrorIs(t, err, ErrNoSession)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "garbage"})
	_, err = m.FromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, token, err := m.Issue(User{Email: "a@x.com"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	claims, err := m.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
}
