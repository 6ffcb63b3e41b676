// Package adminclient talks to the CMS backend the way the admin panel
// does: it checks the session, builds the login and logout links, and
// pushes configuration commits.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/studio-arteamo/sitecms/internal/config"
	"github.com/studio-arteamo/sitecms/internal/cookie"
	"github.com/studio-arteamo/sitecms/internal/ioutil"
	"github.com/studio-arteamo/sitecms/internal/log"
	"github.com/studio-arteamo/sitecms/internal/session"
	"github.com/studio-arteamo/sitecms/internal/urlutil"
)

const maxErrorBody = 4 << 10

var errorMessages = map[string]string{
	"access_denied":         "Access denied. Your email is not authorized to access the admin panel.",
	"invalid_state":         "Security validation failed. Please try logging in again.",
	"token_exchange_failed": "Authentication failed. Please try again.",
	"user_info_failed":      "Could not retrieve your information from Google. Please try again.",
	"server_error":          "Server error occurred. Please try again later.",
	"missing_params":        "Invalid authentication response. Please try again.",
}

// ErrorMessage turns a callback ?error= code into the text shown to admins.
func ErrorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "An unknown error occurred. Please try again."
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBasePath overrides the functions base path.
func WithBasePath(p string) Option {
	return func(c *Client) { c.basePath = p }
}

// WithSession sends token as the session cookie on every call.
func WithSession(token string) Option {
	return func(c *Client) { c.session = token }
}

// Client calls one CMS backend.
type Client struct {
	siteURL  string
	basePath string
	session  string
	http     *http.Client
}

// New creates a client for the site at siteURL.
func New(siteURL string, opts ...Option) (*Client, error) {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if siteURL == "" {
		return nil, errors.New("site URL is required")
	}
	if _, err := urlutil.JoinPath(siteURL); err != nil {
		return nil, fmt.Errorf("invalid site URL: %w", err)
	}

	c := &Client{
		siteURL:  siteURL,
		basePath: config.DefaultBasePath,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(name string) string {
	return urlutil.MustJoinPath(c.siteURL, c.basePath, name)
}

// LoginURL is where a browser goes to sign in.
func (c *Client) LoginURL() string {
	return c.endpoint("auth-login")
}

// LogoutURL is where a browser goes to sign out.
func (c *Client) LogoutURL() string {
	return c.endpoint("auth-logout")
}

// Status is the outcome of a session check.
type Status struct {
	Authenticated bool
	User          session.User
	ExpiresAt     time.Time
	// Reason explains an unauthenticated status, e.g. "No session".
	Reason string
}

type verifyBody struct {
	Authenticated bool         `json:"authenticated"`
	User          session.User `json:"user"`
	ExpiresAt     int64        `json:"expiresAt"`
	Error         string       `json:"error"`
	Details       string       `json:"details"`
}

func (c *Client) newRequest(ctx context.Context, method, name string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(name), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: c.session})
	}
	return req, nil
}

// VerifySession asks the backend whether the session is valid. A rejected
// session is reported in Status, not as an error.
func (c *Client) VerifySession(ctx context.Context) (*Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "auth-verify", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verifying session: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized:
	default:
		return nil, apiError(resp)
	}

	var body verifyBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !body.Authenticated {
		log.LogDebug("Session not valid: %s", body.Error)
		return &Status{Reason: body.Error}, nil
	}
	return &Status{
		Authenticated: true,
		User:          body.User,
		ExpiresAt:     time.UnixMilli(body.ExpiresAt),
	}, nil
}

// CommitRequest is the commit-config payload.
type CommitRequest struct {
	Content  string `json:"content"`
	Message  string `json:"message,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// CommitResult describes the commit the backend created.
type CommitResult struct {
	SHA     string `json:"sha"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// CommitConfig pushes a configuration file through the backend.
func (c *Client) CommitConfig(ctx context.Context, in CommitRequest) (*CommitResult, error) {
	if in.Content == "" {
		return nil, errors.New("content is required")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "commit-config", payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("committing config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var body struct {
		Success bool         `json:"success"`
		Commit  CommitResult `json:"commit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding commit response: %w", err)
	}
	if !body.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: "commit not reported as successful"}
	}
	return &body.Commit, nil
}

func apiError(resp *http.Response) error {
	raw := ioutil.ReadLimited(resp.Body, maxErrorBody)
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Details: raw}
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error, Details: body.Details}
}
