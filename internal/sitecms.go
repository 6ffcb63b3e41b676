package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/studio-arteamo/sitecms/internal/config"
	"github.com/studio-arteamo/sitecms/internal/crypto"
	"github.com/studio-arteamo/sitecms/internal/emailutil"
	"github.com/studio-arteamo/sitecms/internal/idp"
	"github.com/studio-arteamo/sitecms/internal/log"
	"github.com/studio-arteamo/sitecms/internal/repo"
	"github.com/studio-arteamo/sitecms/internal/server"
	"github.com/studio-arteamo/sitecms/internal/session"
	"github.com/studio-arteamo/sitecms/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// App is the assembled CMS backend.
type App struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	storage    storage.Storage
	committer  *repo.Committer
	cleanup    *storage.CleanupManager
}

// NewApp builds every component from cfg. Missing credentials do not fail
// construction; the endpoints that need them report a configuration error.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("sitecms", "Building CMS backend", map[string]any{
		"siteURL":  cfg.SiteURL,
		"basePath": cfg.BasePath,
		"storage":  cfg.Storage.Kind,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	var sessions *session.Manager
	if cfg.Auth.JWTSecret != "" {
		sessions = session.NewManager([]byte(cfg.Auth.JWTSecret),
			session.WithStateTTL(cfg.Auth.StateTTL),
			session.WithSessionTTL(cfg.Auth.SessionTTL),
		)
	}

	var provider idp.Provider
	if cfg.Auth.GoogleClientID != "" {
		provider = idp.NewGoogleProvider(cfg.Auth.GoogleClientID, string(cfg.Auth.GoogleClientSecret), cfg.CallbackURL())
	}

	committer, err := setupCommitter(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup GitHub committer: %w", err)
	}

	auth := server.NewAuthHandlers(server.AuthConfig{
		ClientID:         cfg.Auth.GoogleClientID,
		ClientSecret:     string(cfg.Auth.GoogleClientSecret),
		SiteURL:          cfg.SiteURL,
		AdminURL:         cfg.AdminURL(),
		AllowList:        emailutil.NewAllowList(cfg.Auth.AllowedEmails),
		ReplayProtection: cfg.Auth.ReplayProtection,
	}, provider, sessions, store)

	// A nil *repo.Committer must reach the handlers as a nil interface.
	var commitTarget server.Committer
	if committer != nil {
		commitTarget = committer
	}
	commits := server.NewCommitHandlers(sessions, commitTarget, store)

	handler := server.NewHandler(cfg.BasePath, cfg.AllowedOrigins, auth, commits)

	return &App{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Addr),
		storage:    store,
		committer:  committer,
		cleanup:    storage.NewCleanupManager(store, cfg.Storage.CleanupInterval),
	}, nil
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	log.LogInfoWithFields("sitecms", "Starting CMS backend", map[string]any{
		"addr": a.config.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.cleanup.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		reason := "context cancelled"
		if cause := context.Cause(gctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		log.LogInfoWithFields("sitecms", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		log.LogErrorWithFields("sitecms", "Shut down with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("sitecms", "Application shutdown complete", nil)
	return nil
}

// Close releases storage and HTTP clients.
func (a *App) Close() error {
	var errs []error
	if a.committer != nil {
		errs = append(errs, a.committer.Close())
	}
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
	}
	return errors.Join(errs...)
}

func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Storage.Kind == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.Storage.GCPProject,
			"database": cfg.Storage.FirestoreDatabase,
			"prefix":   cfg.Storage.CollectionPrefix,
		})
		encryptor, err := crypto.NewEncryptor([]byte(cfg.Storage.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		fs, err := storage.NewFirestoreStorage(ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.FirestoreDatabase,
			cfg.Storage.CollectionPrefix,
			encryptor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return fs, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", nil)
	return storage.NewMemoryStorage(), nil
}

func setupCommitter(cfg config.Config) (*repo.Committer, error) {
	if cfg.GitHub.Token == "" || cfg.GitHub.Repo == "" {
		log.LogWarn("GITHUB_TOKEN or GITHUB_REPO is not set, commits are disabled")
		return nil, nil
	}
	return repo.New(repo.Config{
		Token:       string(cfg.GitHub.Token),
		Repo:        cfg.GitHub.Repo,
		Branch:      cfg.GitHub.Branch,
		BaseURL:     cfg.GitHub.APIURL,
		MaxAttempts: cfg.GitHub.MaxAttempts,
	})
}
