package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v74/github"
	"github.com/studio-arteamo/sitecms/internal/log"
)

const (
	DefaultPath        = "project-config.js"
	DefaultBranch      = "main"
	DefaultMaxAttempts = 3
	userAgent          = "Studio-Arteamo-CMS"
)

var (
	// ErrInvalidRepo is returned for repository identifiers not shaped owner/name.
	ErrInvalidRepo = errors.New("repository must be in owner/name form")
	// ErrInvalidPath is returned for file paths escaping the repository root.
	ErrInvalidPath = errors.New("invalid file path")
	// ErrMissingContent is returned when a commit carries no content.
	ErrMissingContent = errors.New("missing content")
)

// Error is a failed repository call carrying the HTTP status to report.
type Error struct {
	Status  int
	Details string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("github: %d %s", e.Status, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var repoErr *Error
	if errors.As(err, &repoErr) && repoErr.Status > 0 {
		return repoErr.Status
	}
	return http.StatusInternalServerError
}

// Config configures a Committer.
type Config struct {
	Token  string
	Repo   string
	Branch string
	// BaseURL overrides the GitHub API root, e.g. for GitHub Enterprise.
	BaseURL         string
	MaxAttempts     int
	InitialInterval time.Duration
	HTTPClient      *http.Client
}

// Author identifies who a commit is made for.
type Author struct {
	Name  string
	Email string
}

// Request is a single file write.
type Request struct {
	Path    string
	Content string
	Message string
	Author  *Author
}

// Result describes the commit that was created.
type Result struct {
	SHA      string
	URL      string
	Message  string
	Path     string
	Branch   string
	Created  bool
	Attempts int
}

// Committer writes files to one branch of one repository.
type Committer struct {
	client          *github.Client
	httpClient      *http.Client
	owner           string
	name            string
	branch          string
	maxAttempts     int
	initialInterval time.Duration
	now             func() time.Time
}

// New creates a Committer for cfg.Repo.
func New(cfg Config) (*Committer, error) {
	owner, name, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepo, cfg.Repo)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := github.NewClient(httpClient).WithAuthToken(cfg.Token)
	client.UserAgent = userAgent
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}

	branch := cfg.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &Committer{
		client:          client,
		httpClient:      httpClient,
		owner:           owner,
		name:            name,
		branch:          branch,
		maxAttempts:     attempts,
		initialInterval: interval,
		now:             time.Now,
	}, nil
}

// Branch returns the target branch.
func (c *Committer) Branch() string { return c.branch }

// Repo returns owner/name.
func (c *Committer) Repo() string { return c.owner + "/" + c.name }

// Close releases idle connections.
func (c *Committer) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// CleanPath normalizes a repository file path. Empty means DefaultPath.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if p == "" {
		return DefaultPath, nil
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// DefaultMessage is the commit message used when none is given.
func DefaultMessage(at time.Time) string {
	return "CMS update: " + at.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Commit creates or updates req.Path. The current blob SHA is read before
// every attempt; conflicting writes are retried with exponential backoff.
func (c *Committer) Commit(ctx context.Context, req Request) (*Result, error) {
	if req.Content == "" {
		return nil, ErrMissingContent
	}
	filePath, err := CleanPath(req.Path)
	if err != nil {
		return nil, err
	}
	message := req.Message
	if message == "" {
		message = DefaultMessage(c.now())
	}

	attempt := 0
	operation := func() (*Result, error) {
		attempt++

		sha, err := c.currentSHA(ctx, filePath)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		result, err := c.write(ctx, filePath, message, req, sha)
		if err != nil {
			if isConflict(err, sha) {
				log.LogWarnWithFields("repo", "Commit conflicted, re-reading file", map[string]any{
					"path":    filePath,
					"attempt": attempt,
				})
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		result.Attempts = attempt
		return result, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxAttempts)),
	)
	if err != nil {
		return nil, toError(err)
	}

	log.LogInfoWithFields("repo", "Committed file", map[string]any{
		"repo":     c.Repo(),
		"branch":   c.branch,
		"path":     filePath,
		"sha":      result.SHA,
		"created":  result.Created,
		"attempts": result.Attempts,
	})
	return result, nil
}

// currentSHA returns the blob SHA of filePath, or "" when it does not exist.
func (c *Committer) currentSHA(ctx context.Context, filePath string) (string, error) {
	file, dir, resp, err := c.client.Repositories.GetContents(ctx, c.owner, c.name, filePath,
		&github.RepositoryContentGetOptions{Ref: c.branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", toError(err)
	}
	if file == nil && dir != nil {
		return "", &Error{Status: http.StatusBadRequest, Details: fmt.Sprintf("%s is a directory", filePath)}
	}
	return file.GetSHA(), nil
}

func (c *Committer) write(ctx context.Context, filePath, message string, req Request, sha string) (*Result, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: []byte(req.Content),
		Branch:  github.Ptr(c.branch),
	}
	if req.Author != nil && req.Author.Email != "" {
		opts.Author = &github.CommitAuthor{
			Name:  github.Ptr(req.Author.Name),
			Email: github.Ptr(req.Author.Email),
		}
	}

	var (
		resp *github.RepositoryContentResponse
		err  error
	)
	if sha == "" {
		resp, _, err = c.client.Repositories.CreateFile(ctx, c.owner, c.name, filePath, opts)
	} else {
		opts.SHA = github.Ptr(sha)
		resp, _, err = c.client.Repositories.UpdateFile(ctx, c.owner, c.name, filePath, opts)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		SHA:     resp.Commit.GetSHA(),
		URL:     resp.Commit.GetHTMLURL(),
		Message: message,
		Path:    filePath,
		Branch:  c.branch,
		Created: sha == "",
	}, nil
}

// isConflict reports whether a write failed because the file changed
// underneath us: 409 on a stale SHA, or 422 when the file appeared after
// we read it and no SHA was sent.
func isConflict(err error, sentSHA string) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	switch ghErr.Response.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		return sentSHA == ""
	}
	return false
}

func toError(err error) error {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		details := ghErr.Message
		if details == "" {
			details = fmt.Sprintf("GitHub API error: %d", ghErr.Response.StatusCode)
		}
		return &Error{Status: ghErr.Response.StatusCode, Details: details, Err: err}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return &Error{Status: rateErr.Response.StatusCode, Details: rateErr.Message, Err: err}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return &Error{Status: abuseErr.Response.StatusCode, Details: abuseErr.Message, Err: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Status: http.StatusGatewayTimeout, Details: err.Error(), Err: err}
	}
	return &Error{Status: http.StatusInternalServerError, Details: err.Error(), Err: err}
}
