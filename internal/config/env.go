package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/studio-arteamo/sitecms/internal/log"
)

// FromEnv builds a Config from the process environment, after loading
// the given .env files (default ".env") when present. Values the handlers
// need at request time may be missing; those endpoints then answer with
// a configuration error instead of failing startup.
func FromEnv(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
		log.LogDebugWithFields("config", "Loaded env file", map[string]any{"file": f})
	}

	cfg := Config{
		Addr:           os.Getenv("ADDR"),
		SiteURL:        os.Getenv("SITE_URL"),
		BasePath:       os.Getenv("BASE_PATH"),
		AllowedOrigins: SplitList(os.Getenv("ALLOWED_ORIGINS")),
		Auth: AuthConfig{
			GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: Secret(os.Getenv("GOOGLE_CLIENT_SECRET")),
			JWTSecret:          Secret(os.Getenv("JWT_SECRET")),
			AllowedEmails:      SplitList(os.Getenv("ALLOWED_EMAILS")),
		},
		GitHub: GitHubConfig{
			Token:  Secret(os.Getenv("GITHUB_TOKEN")),
			Repo:   os.Getenv("GITHUB_REPO"),
			Branch: os.Getenv("GITHUB_BRANCH"),
			APIURL: os.Getenv("GITHUB_API_URL"),
		},
		Storage: StorageConfig{
			Kind:              strings.ToLower(os.Getenv("STORAGE")),
			GCPProject:        os.Getenv("GCP_PROJECT"),
			FirestoreDatabase: os.Getenv("FIRESTORE_DATABASE"),
			CollectionPrefix:  os.Getenv("FIRESTORE_COLLECTION_PREFIX"),
			EncryptionKey:     Secret(os.Getenv("ENCRYPTION_KEY")),
		},
	}
	if port := os.Getenv("PORT"); cfg.Addr == "" && port != "" {
		cfg.Addr = ":" + port
	}

	var replay *bool
	if v := os.Getenv("REPLAY_PROTECTION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing REPLAY_PROTECTION: %w", err)
		}
		replay = &b
	}
	if v := os.Getenv("GITHUB_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing GITHUB_MAX_ATTEMPTS: %w", err)
		}
		cfg.GitHub.MaxAttempts = n
	}
	var err error
	if cfg.Auth.SessionTTL, err = parseDuration("SESSION_TTL", os.Getenv("SESSION_TTL")); err != nil {
		return Config{}, err
	}
	if cfg.Storage.CleanupInterval, err = parseDuration("CLEANUP_INTERVAL", os.Getenv("CLEANUP_INTERVAL")); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults(replay)

	if result := Check(&cfg); !result.IsValid() {
		return Config{}, fmt.Errorf("config validation failed: %s", result.Errors[0])
	}
	return cfg, nil
}
