package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/studio-arteamo/sitecms/internal/cookie"
	"github.com/studio-arteamo/sitecms/internal/emailutil"
	"github.com/studio-arteamo/sitecms/internal/idp"
	jsonwriter "github.com/studio-arteamo/sitecms/internal/json"
	"github.com/studio-arteamo/sitecms/internal/log"
	"github.com/studio-arteamo/sitecms/internal/session"
	"github.com/studio-arteamo/sitecms/internal/storage"
)

// Error codes passed to the admin panel as ?error=.
const (
	ErrCodeMissingParams       = "missing_params"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeTokenExchangeFailed = "token_exchange_failed"
	ErrCodeUserInfoFailed      = "user_info_failed"
	ErrCodeAccessDenied        = "access_denied"
	ErrCodeServerError         = "server_error"
)

const noCache = "no-cache, no-store, must-revalidate"

// callbackTimeout bounds the Google round trips made by the callback.
const callbackTimeout = 30 * time.Second

// AuthConfig carries what the sign-in endpoints need. Empty values make
// the affected endpoints answer with a configuration error.
type AuthConfig struct {
	ClientID         string
	ClientSecret     string
	SiteURL          string
	AdminURL         string
	AllowList        emailutil.AllowList
	ReplayProtection bool
}

// AuthHandlers serves login, callback, verify and logout.
type AuthHandlers struct {
	cfg      AuthConfig
	provider idp.Provider
	sessions *session.Manager
	store    storage.Storage
}

// NewAuthHandlers creates the auth handlers. sessions is nil when no
// signing secret is configured.
func NewAuthHandlers(cfg AuthConfig, provider idp.Provider, sessions *session.Manager, store storage.Storage) *AuthHandlers {
	if cfg.AdminURL == "" {
		cfg.AdminURL = "/admin/"
	}
	return &AuthHandlers{
		cfg:      cfg,
		provider: provider,
		sessions: sessions,
		store:    store,
	}
}

func (h *AuthHandlers) canLogin() bool {
	return h.cfg.ClientID != "" && h.sessions != nil && h.cfg.SiteURL != "" && h.provider != nil
}

func (h *AuthHandlers) canComplete() bool {
	return h.canLogin() && h.cfg.ClientSecret != ""
}

// Login starts the Google sign-in round trip.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", noCache)

	if !h.canLogin() {
		log.LogError("Login requested but Google client id, JWT secret or site URL is missing")
		jsonwriter.WriteConfigError(w, "")
		return
	}

	state, token, err := h.sessions.NewState()
	if err != nil {
		log.LogError("Failed to create login state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	cookie.SetState(w, token, h.sessions.StateTTL())

	log.LogDebugWithFields("auth", "Redirecting to identity provider", map[string]any{
		"provider": h.provider.Type(),
		"nonce":    state.Nonce,
	})
	http.Redirect(w, r, h.provider.AuthURL(token), http.StatusFound)
}

// Callback completes sign-in. Every outcome other than a configuration
// error is a redirect to the admin panel.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", noCache)

	if !h.canComplete() {
		log.LogError("OAuth callback received but Google credentials, JWT secret or site URL is missing")
		jsonwriter.WriteConfigError(w, "")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.LogErrorWithFields("auth", "Panic during OAuth callback", map[string]any{
				"panic": fmt.Sprint(rec),
			})
			h.fail(w, r, ErrCodeServerError)
		}
	}()

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		log.LogWarnWithFields("auth", "Identity provider returned an error", map[string]any{
			"error": providerErr,
		})
		h.fail(w, r, providerErr)
		return
	}

	code, stateParam := query.Get("code"), query.Get("state")
	if code == "" || stateParam == "" {
		h.fail(w, r, ErrCodeMissingParams)
		return
	}

	state, err := h.checkState(r, stateParam)
	if err != nil {
		log.LogWarnWithFields("auth", "Rejected OAuth state", map[string]any{
			"error": err.Error(),
		})
		h.fail(w, r, ErrCodeInvalidState)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), callbackTimeout)
	defer cancel()

	if h.cfg.ReplayProtection && h.store != nil {
		if err := h.store.ConsumeState(ctx, state.Nonce, h.sessions.StateExpiry(state)); err != nil {
			if errors.Is(err, storage.ErrStateReused) {
				log.LogWarnWithFields("auth", "OAuth state replayed", map[string]any{
					"nonce": state.Nonce,
				})
				h.fail(w, r, ErrCodeInvalidState)
				return
			}
			log.LogError("Failed to record OAuth state: %v", err)
			h.fail(w, r, ErrCodeServerError)
			return
		}
	}

	token, err := h.provider.ExchangeCode(ctx, code)
	if err != nil || token == nil || token.AccessToken == "" {
		log.LogErrorWithFields("auth", "Token exchange failed", map[string]any{
			"error": fmt.Sprint(err),
		})
		h.fail(w, r, ErrCodeTokenExchangeFailed)
		return
	}

	info, err := h.provider.UserInfo(ctx, token)
	if err != nil || info == nil || info.Email == "" {
		log.LogErrorWithFields("auth", "Failed to fetch user info", map[string]any{
			"error": fmt.Sprint(err),
		})
		h.fail(w, r, ErrCodeUserInfoFailed)
		return
	}

	if !h.cfg.AllowList.Allows(info.Email) {
		log.LogWarnWithFields("auth", "Sign-in denied by allow-list", map[string]any{
			"email": emailutil.Normalize(info.Email),
		})
		h.fail(w, r, ErrCodeAccessDenied)
		return
	}

	claims, sessionToken, err := h.sessions.Issue(session.User{
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	})
	if err != nil {
		log.LogError("Failed to issue session: %v", err)
		h.fail(w, r, ErrCodeServerError)
		return
	}

	if h.store != nil {
		if err := h.store.RecordLogin(ctx, info.Email, info.Name, info.Picture, time.UnixMilli(claims.IssuedAt)); err != nil {
			log.LogWarnWithFields("auth", "Failed to record login", map[string]any{
				"email": info.Email,
				"error": err.Error(),
			})
		}
	}

	cookie.SetSession(w, sessionToken, h.sessions.SessionTTL())
	cookie.ClearState(w)

	log.LogInfoWithFields("auth", "Admin signed in", map[string]any{
		"email": info.Email,
	})
	http.Redirect(w, r, h.cfg.AdminURL, http.StatusFound)
}

// checkState requires the state cookie to equal the query value and to
// carry a valid, unexpired signature.
func (h *AuthHandlers) checkState(r *http.Request, stateParam string) (session.State, error) {
	stored, err := cookie.GetState(r)
	if err != nil || stored == "" {
		return session.State{}, errors.New("state cookie missing")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(stateParam)) != 1 {
		return session.State{}, errors.New("state mismatch")
	}
	state, err := h.sessions.VerifyState(stateParam)
	if err != nil {
		return session.State{}, fmt.Errorf("verifying state: %w", err)
	}
	return state, nil
}

func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, code string) {
	cookie.ClearState(w)
	w.Header().Set("Cache-Control", noCache)
	http.Redirect(w, r, h.cfg.AdminURL+"?error="+url.QueryEscape(code), http.StatusFound)
}

type verifyResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	ExpiresAt     int64         `json:"expiresAt,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Verify reports whether the request carries a valid session.
func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", noCache)

	if h.sessions == nil {
		log.LogError("Session verification requested but JWT secret is missing")
		jsonwriter.WriteConfigError(w, "")
		return
	}

	claims, err := h.sessions.FromRequest(r)
	if err != nil {
		msg := "Invalid or expired session"
		if errors.Is(err, session.ErrNoSession) {
			msg = "No session"
		} else {
			log.LogDebug("Session rejected: %v", err)
		}
		_ = jsonwriter.WriteResponse(w, http.StatusUnauthorized, verifyResponse{Error: msg})
		return
	}

	user := claims.User()
	_ = jsonwriter.Write(w, verifyResponse{
		Authenticated: true,
		User:          &user,
		ExpiresAt:     claims.ExpiresAt,
	})
}

// Logout clears the session cookie and returns to the admin panel.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	cookie.ClearSession(w)
	w.Header().Set("Cache-Control", noCache)
	http.Redirect(w, r, h.cfg.AdminURL, http.StatusFound)
}
