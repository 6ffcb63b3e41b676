package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsonwriter "github.com/studio-arteamo/sitecms/internal/json"
	"github.com/studio-arteamo/sitecms/internal/log"
	"github.com/studio-arteamo/sitecms/internal/repo"
	"github.com/studio-arteamo/sitecms/internal/session"
	"github.com/studio-arteamo/sitecms/internal/storage"
)

const (
	maxCommitBody = 5 << 20
	historyLimit  = 20
)

// Committer writes configuration files to the site repository.
type Committer interface {
	Commit(ctx context.Context, req repo.Request) (*repo.Result, error)
}

// CommitHandlers serves commit-config and commit-history.
type CommitHandlers struct {
	sessions  *session.Manager
	committer Committer
	history   storage.CommitStore
}

// NewCommitHandlers creates the commit handlers. sessions is nil without a
// signing secret and committer is nil without GitHub credentials.
func NewCommitHandlers(sessions *session.Manager, committer Committer, history storage.CommitStore) *CommitHandlers {
	return &CommitHandlers{
		sessions:  sessions,
		committer: committer,
		history:   history,
	}
}

type commitRequest struct {
	Content  string `json:"content"`
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
}

type commitInfo struct {
	SHA     string `json:"sha"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

type commitResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Commit  commitInfo `json:"commit"`
}

// authenticate writes the 401 or 500 response itself and returns nil
// when the request may not proceed.
func (h *CommitHandlers) authenticate(w http.ResponseWriter, r *http.Request) *session.Claims {
	if h.sessions == nil {
		log.LogError("Commit requested but JWT secret is missing")
		jsonwriter.WriteConfigError(w, "")
		return nil
	}
	claims, err := h.sessions.FromRequest(r)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			jsonwriter.WriteUnauthorized(w, "No session")
		} else {
			log.LogDebug("Commit rejected, invalid session: %v", err)
			jsonwriter.WriteUnauthorized(w, "Invalid or expired session")
		}
		return nil
	}
	return claims
}

// Commit writes the posted configuration to GitHub on behalf of the
// signed-in admin.
func (h *CommitHandlers) Commit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w)
		return
	}

	claims := h.authenticate(w, r)
	if claims == nil {
		return
	}

	if h.committer == nil {
		log.LogError("Commit requested but GitHub is not configured")
		jsonwriter.WriteConfigError(w, "Missing GITHUB_TOKEN or GITHUB_REPO environment variables")
		return
	}

	var body commitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommitBody)).Decode(&body); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if body.Content == "" {
		jsonwriter.WriteBadRequest(w, "Missing content in request body")
		return
	}
	filePath, err := repo.CleanPath(body.FilePath)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid file path")
		return
	}

	result, err := h.committer.Commit(r.Context(), repo.Request{
		Path:    filePath,
		Content: body.Content,
		Message: body.Message,
		Author:  &repo.Author{Name: claims.Name, Email: claims.Email},
	})
	if err != nil {
		log.LogErrorWithFields("commit", "Failed to commit configuration", map[string]any{
			"path":  filePath,
			"email": claims.Email,
			"error": err.Error(),
		})
		jsonwriter.WriteError(w, repo.StatusOf(err), "Failed to commit changes", err.Error())
		return
	}

	log.LogInfoWithFields("commit", "Configuration committed", map[string]any{
		"path":     result.Path,
		"branch":   result.Branch,
		"sha":      result.SHA,
		"attempts": result.Attempts,
		"email":    claims.Email,
	})

	if h.history != nil {
		rec := storage.CommitRecord{
			ID:          uuid.NewString(),
			SHA:         result.SHA,
			URL:         result.URL,
			Message:     result.Message,
			Path:        result.Path,
			Branch:      result.Branch,
			AuthorEmail: claims.Email,
			AuthorName:  claims.Name,
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.history.RecordCommit(r.Context(), rec); err != nil {
			log.LogWarn("Failed to record commit %s: %v", result.SHA, err)
		}
	}

	_ = jsonwriter.Write(w, commitResponse{
		Success: true,
		Message: "Configuration committed successfully",
		Commit: commitInfo{
			SHA:     result.SHA,
			URL:     result.URL,
			Message: result.Message,
		},
	})
}

type historyResponse struct {
	Commits []storage.CommitRecord `json:"commits"`
}

// History lists the most recent commits made through the service.
func (h *CommitHandlers) History(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", noCache)

	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w)
		return
	}
	if h.authenticate(w, r) == nil {
		return
	}

	commits := []storage.CommitRecord{}
	if h.history != nil {
		list, err := h.history.ListCommits(r.Context(), historyLimit)
		if err != nil {
			log.LogError("Failed to list commits: %v", err)
			jsonwriter.WriteInternalServerError(w, "Failed to load commit history")
			return
		}
		commits = append(commits, list...)
	}
	_ = jsonwriter.Write(w, historyResponse{Commits: commits})
}
