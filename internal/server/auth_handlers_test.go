package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/studio-arteamo/sitecms/internal/cookie"
	"github.com/studio-arteamo/sitecms/internal/emailutil"
	"github.com/studio-arteamo/sitecms/internal/idp"
	"github.com/studio-arteamo/sitecms/internal/session"
	"github.com/studio-arteamo/sitecms/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testAdminURL = "https://site.example/admin/"
)

// mockIDPProvider stands in for Google.
type mockIDPProvider struct {
	exchangeErr error
	userInfo    *idp.UserInfo
	userInfoErr error
	panicOn     string
	codes       []string
}

func (m *mockIDPProvider) Type() string {
	return "mock"
}

func (m *mockIDPProvider) AuthURL(state string) string {
	return "https://auth.example.com/authorize?state=" + url.QueryEscape(state)
}

func (m *mockIDPProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if m.panicOn == "exchange" {
		panic("exchange exploded")
	}
	m.codes = append(m.codes, code)
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &oauth2.Token{AccessToken: "access-" + code}, nil
}

func (m *mockIDPProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*idp.UserInfo, error) {
	if m.userInfoErr != nil {
		return nil, m.userInfoErr
	}
	if m.userInfo != nil {
		return m.userInfo, nil
	}
	return &idp.UserInfo{
		Subject: "123",
		Email:   "Admin@Example.com",
		Name:    "Site Admin",
		Picture: "https://example.com/a.png",
	}, nil
}

// testClock is a settable clock anchored at the current time, so memory
// storage expiries computed from it stay in the future.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.UnixMilli(time.Now().UnixMilli())}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type authFixture struct {
	handlers *AuthHandlers
	provider *mockIDPProvider
	sessions *session.Manager
	store    *storage.MemoryStorage
	clock    *testClock
}

func newAuthFixture(t *testing.T, allowed ...string) *authFixture {
	t.Helper()
	t.Setenv("SITECMS_ENV", "")

	clock := newTestClock()
	provider := &mockIDPProvider{}
	sessions := session.NewManager([]byte(testSecret), session.WithClock(clock.Now))
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	handlers := NewAuthHandlers(AuthConfig{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		SiteURL:          "https://site.example",
		AdminURL:         testAdminURL,
		AllowList:        emailutil.NewAllowList(allowed),
		ReplayProtection: true,
	}, provider, sessions, store)

	return &authFixture{
		handlers: handlers,
		provider: provider,
		sessions: sessions,
		store:    store,
		clock:    clock,
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *authFixture) login(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handlers.Login(rec, httptest.NewRequest(http.MethodGet, "/.netlify/functions/auth-login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	c := findCookie(rec.Result(), cookie.StateCookie)
	require.NotNil(t, c)
	return c.Value
}

func (f *authFixture) callback(query url.Values, stateCookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/.netlify/functions/auth-callback?"+query.Encode(), nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: cookie.StateCookie, Value: stateCookie})
	}
	rec := httptest.NewRecorder()
	f.handlers.Callback(rec, req)
	return rec
}

func assertErrorRedirect(t *testing.T, rec *httptest.ResponseRecorder, code string) {
	t.Helper()
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testAdminURL+"?error="+url.QueryEscape(code), rec.Header().Get("Location"))
	assert.Equal(t, noCache, rec.Header().Get("Cache-Control"))
	assert.Nil(t, findCookie(rec.Result(), cookie.SessionCookie))

	cleared := findCookie(rec.Result(), cookie.StateCookie)
	require.NotNil(t, cleared, "state cookie should be cleared")
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)

	rec := httptest.NewRecorder()
	f.handlers.Login(rec, httptest.NewRequest(http.MethodGet, "/.netlify/functions/auth-login", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, noCache, rec.Header().Get("Cache-Control"))

	c := findCookie(rec.Result(), cookie.StateCookie)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 600, c.MaxAge)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, c.Value, location.Query().Get("state"))

	state, err := f.sessions.VerifyState(c.Value)
	require.NoError(t, err)
	assert.Len(t, state.Nonce, 32)
	assert.Equal(t, f.clock.Now().UnixMilli(), state.Timestamp)
}

func TestLogin_FreshStatePerRequest(t *testing.T) {
	f := newAuthFixture(t)
	assert.NotEqual(t, f.login(t), f.login(t))
}

func TestLogin_MissingConfig(t *testing.T) {
	handlers := NewAuthHandlers(AuthConfig{ClientID: "client-id"}, &mockIDPProvider{}, nil, nil)

	rec := httptest.NewRecorder()
	handlers.Login(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server configuration error"}`, rec.Body.String())
	assert.Nil(t, findCookie(rec.Result(), cookie.StateCookie))
}

func TestCallback_Success(t *testing.T) {
	f := newAuthFixture(t, "admin@example.com")
	state := f.login(t)

	rec := f.callback(url.Values{"code": {"abc"}, "state": {state}}, state)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testAdminURL, rec.Header().Get("Location"))
	assert.Equal(t, noCache, rec.Header().Get("Cache-Control"))
	assert.Equal(t, []string{"abc"}, f.provider.codes)

	sc := findCookie(rec.Result(), cookie.SessionCookie)
	require.NotNil(t, sc)
	assert.Equal(t, 28800, sc.MaxAge)
	assert.True(t, sc.HttpOnly)

	claims, err := f.sessions.Verify(sc.Value)
	require.NoError(t, err)
	assert.Equal(t, "Admin@Example.com", claims.Email)
	assert.Equal(t, "Site Admin", claims.Name)
	assert.Equal(t, "https://example.com/a.png", claims.Picture)
	assert.Equal(t, claims.IssuedAt+8*time.Hour.Milliseconds(), claims.ExpiresAt)

	cleared := findCookie(rec.Result(), cookie.StateCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestCallback_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *authFixture)
		query   func(state string) url.Values
		cookie  func(state string) string
		allowed []string
		want    string
	}{
		{
			name:  "provider error is passed through",
			query: func(string) url.Values { return url.Values{"error": {"access_denied"}} },
			want:  "access_denied",
		},
		{
			name:  "provider error is escaped",
			query: func(string) url.Values { return url.Values{"error": {"a b&c"}} },
			want:  "a b&c",
		},
		{
			name:  "missing code",
			query: func(s string) url.Values { return url.Values{"state": {s}} },
			want:  ErrCodeMissingParams,
		},
		{
			name:  "missing state",
			query: func(string) url.Values { return url.Values{"code": {"abc"}} },
			want:  ErrCodeMissingParams,
		},
		{
			name:   "no state cookie",
			cookie: func(string) string { return "" },
			want:   ErrCodeInvalidState,
		},
		{
			name:   "state cookie differs from query",
			cookie: func(s string) string { return s + "x" },
			want:   ErrCodeInvalidState,
		},
		{
			name:   "forged state",
			query:  func(string) url.Values { return url.Values{"code": {"abc"}, "state": {"e30.Zm9yZ2Vk"}} },
			cookie: func(string) string { return "e30.Zm9yZ2Vk" },
			want:   ErrCodeInvalidState,
		},
		{
			name:  "state older than ten minutes",
			setup: func(f *authFixture) { f.clock.Advance(10*time.Minute + time.Millisecond) },
			want:  ErrCodeInvalidState,
		},
		{
			name:  "token exchange fails",
			setup: func(f *authFixture) { f.provider.exchangeErr = errors.New("bad code") },
			want:  ErrCodeTokenExchangeFailed,
		},
		{
			name:  "user info fails",
			setup: func(f *authFixture) { f.provider.userInfoErr = errors.New("boom") },
			want:  ErrCodeUserInfoFailed,
		},
		{
			name:  "user info without email",
			setup: func(f *authFixture) { f.provider.userInfo = &idp.UserInfo{Name: "No Email"} },
			want:  ErrCodeUserInfoFailed,
		},
		{
			name:    "email not allowed",
			allowed: []string{"someone@example.com"},
			want:    ErrCodeAccessDenied,
		},
		{
			name:  "panic becomes server error",
			setup: func(f *authFixture) { f.provider.panicOn = "exchange" },
			want:  ErrCodeServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, tt.allowed...)
			state := f.login(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			query := url.Values{"code": {"abc"}, "state": {state}}
			if tt.query != nil {
				query = tt.query(state)
			}
			stateCookie := state
			if tt.cookie != nil {
				stateCookie = tt.cookie(state)
			}

			assertErrorRedirect(t, f.callback(query, stateCookie), tt.want)
		})
	}
}

func TestCallback_AllowListIgnoresCase(t *testing.T) {
	f := newAuthFixture(t, " ADMIN@example.COM ")
	state := f.login(t)

	rec := f.callback(url.Values{"code": {"abc"}, "state": {state}}, state)

	assert.Equal(t, testAdminURL, rec.Header().Get("Location"))
	assert.NotNil(t, findCookie(rec.Result(), cookie.SessionCookie))
}

func TestCallback_StateReplay(t *testing.T) {
	f := newAuthFixture(t)
	state := f.login(t)
	query := url.Values{"code": {"abc"}, "state": {state}}

	first := f.callback(query, state)
	require.Equal(t, testAdminURL, first.Header().Get("Location"))

	second := f.callback(query, state)
	assertErrorRedirect(t, second, ErrCodeInvalidState)
	assert.Len(t, f.provider.codes, 1, "replayed state must not reach the provider")
}

func TestCallback_ReplayAllowedWhenDisabled(t *testing.T) {
	f := newAuthFixture(t)
	f.handlers.cfg.ReplayProtection = false
	state := f.login(t)
	query := url.Values{"code": {"abc"}, "state": {state}}

	f.callback(query, state)
	rec := f.callback(query, state)

	assert.Equal(t, testAdminURL, rec.Header().Get("Location"))
}

func TestCallback_MissingConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthConfig
		mgr  bool
	}{
		{"no client secret", AuthConfig{ClientID: "id", SiteURL: "https://site.example"}, true},
		{"no client id", AuthConfig{ClientSecret: "s", SiteURL: "https://site.example"}, true},
		{"no site url", AuthConfig{ClientID: "id", ClientSecret: "s"}, true},
		{"no signing secret", AuthConfig{ClientID: "id", ClientSecret: "s", SiteURL: "https://site.example"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mgr *session.Manager
			if tt.mgr {
				mgr = session.NewManager([]byte(testSecret))
			}
			handlers := NewAuthHandlers(tt.cfg, &mockIDPProvider{}, mgr, nil)

			rec := httptest.NewRecorder()
			handlers.Callback(rec, httptest.NewRequest(http.MethodGet, "/?code=a&state=b", nil))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Server configuration error"}`, rec.Body.String())
			assert.Equal(t, noCache, rec.Header().Get("Cache-Control"))
		})
	}
}

func verifyRequest(sessionToken string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/.netlify/functions/auth-verify", nil)
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: sessionToken})
	}
	return req
}

func TestVerify(t *testing.T) {
	f := newAuthFixture(t)
	claims, token, err := f.sessions.Issue(session.User{Email: "a@x.com", Name: "A", Picture: "p"})
	require.NoError(t, err)

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handlers.Verify(rec, verifyRequest(""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"No session","authenticated":false}`, rec.Body.String())
	})

	t.Run("tampered cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handlers.Verify(rec, verifyRequest(token+"x"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid or expired session","authenticated":false}`, rec.Body.String())
	})

	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handlers.Verify(rec, verifyRequest(token))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, noCache, rec.Header().Get("Cache-Control"))

		var body struct {
			Authenticated bool         `json:"authenticated"`
			User          session.User `json:"user"`
			ExpiresAt     int64        `json:"expiresAt"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Authenticated)
		assert.Equal(t, session.User{Email: "a@x.com", Name: "A", Picture: "p"}, body.User)
		assert.Equal(t, claims.ExpiresAt, body.ExpiresAt)
	})
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	f := newAuthFixture(t)
	_, token, err := f.sessions.Issue(session.User{Email: "a@x.com"})
	require.NoError(t, err)

	f.clock.Advance(8 * time.Hour)
	rec := httptest.NewRecorder()
	f.handlers.Verify(rec, verifyRequest(token))
	assert.Equal(t, http.StatusOK, rec.Code, "valid up to and including exp")

	f.clock.Advance(time.Millisecond)
	rec = httptest.NewRecorder()
	f.handlers.Verify(rec, verifyRequest(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired session","authenticated":false}`, rec.Body.String())
}

func TestVerify_MissingSecret(t *testing.T) {
	handlers := NewAuthHandlers(AuthConfig{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	handlers.Verify(rec, verifyRequest("anything"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server configuration error"}`, rec.Body.String())
}

func TestLogout(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			handlers := NewAuthHandlers(AuthConfig{}, nil, nil, nil)

			req := httptest.NewRequest(method, "/.netlify/functions/auth-logout", nil)
			req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "whatever"})
			rec := httptest.NewRecorder()
			handlers.Logout(rec, req)

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/admin/", rec.Header().Get("Location"))
			c := findCookie(rec.Result(), cookie.SessionCookie)
			require.NotNil(t, c)
			assert.Empty(t, c.Value)
			assert.Less(t, c.MaxAge, 0)
		})
	}
}
