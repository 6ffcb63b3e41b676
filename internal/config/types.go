package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/studio-arteamo/sitecms/internal/urlutil"
)

// Secret is a string that redacts itself when printed.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON keeps secrets out of JSON logs.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// Storage kinds.
const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
)

// Defaults applied when a value is not configured.
const (
	DefaultAddr            = ":8080"
	DefaultBasePath        = "/.netlify/functions"
	DefaultAdminPath       = "/admin/"
	DefaultStateTTL        = 10 * time.Minute
	DefaultSessionTTL      = 8 * time.Hour
	DefaultCollection      = "sitecms"
	DefaultCleanupInterval = 5 * time.Minute
	DefaultMaxAttempts     = 3
	DefaultBranch          = "main"
)

// AuthConfig configures Google sign-in and session tokens.
type AuthConfig struct {
	GoogleClientID     string        `json:"googleClientId"`
	GoogleClientSecret Secret        `json:"googleClientSecret"`
	JWTSecret          Secret        `json:"jwtSecret"`
	AllowedEmails      []string      `json:"allowedEmails"`
	StateTTL           time.Duration `json:"stateTtl"`
	SessionTTL         time.Duration `json:"sessionTtl"`
	ReplayProtection   bool          `json:"replayProtection"`
}

// GitHubConfig configures the repository the admin panel commits to.
type GitHubConfig struct {
	Token       Secret `json:"token"`
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	APIURL      string `json:"apiUrl,omitempty"`
	MaxAttempts int    `json:"maxAttempts"`
}

// StorageConfig selects where state markers and history are kept.
type StorageConfig struct {
	Kind              string        `json:"kind"`
	GCPProject        string        `json:"gcpProject,omitempty"`
	FirestoreDatabase string        `json:"firestoreDatabase,omitempty"`
	CollectionPrefix  string        `json:"collectionPrefix,omitempty"`
	EncryptionKey     Secret        `json:"encryptionKey,omitempty"`
	CleanupInterval   time.Duration `json:"cleanupInterval"`
}

// Config is the resolved service configuration.
type Config struct {
	Addr           string        `json:"addr"`
	SiteURL        string        `json:"siteUrl"`
	BasePath       string        `json:"basePath"`
	AdminPath      string        `json:"adminPath"`
	AllowedOrigins []string      `json:"allowedOrigins"`
	Auth           AuthConfig    `json:"auth"`
	GitHub         GitHubConfig  `json:"github"`
	Storage        StorageConfig `json:"storage"`
}

// AdminURL is where users land after login, logout and login errors.
func (c *Config) AdminURL() string {
	return urlutil.MustJoinPath(strings.TrimRight(c.SiteURL, "/"), c.AdminPath)
}

// CallbackURL is the OAuth redirect URI registered with Google.
func (c *Config) CallbackURL() string {
	return urlutil.MustJoinPath(strings.TrimRight(c.SiteURL, "/"), c.BasePath, "auth-callback")
}

// applyDefaults fills unset fields. replayProtection defaults to on, so
// callers decode it through a pointer and pass it here.
func (c *Config) applyDefaults(replayProtection *bool) {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	if c.AdminPath == "" {
		c.AdminPath = DefaultAdminPath
	}
	if c.Auth.StateTTL == 0 {
		c.Auth.StateTTL = DefaultStateTTL
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}
	c.Auth.ReplayProtection = replayProtection == nil || *replayProtection
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = DefaultBranch
	}
	if c.GitHub.MaxAttempts == 0 {
		c.GitHub.MaxAttempts = DefaultMaxAttempts
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageMemory
	}
	if c.Storage.CollectionPrefix == "" {
		c.Storage.CollectionPrefix = DefaultCollection
	}
	if c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = DefaultCleanupInterval
	}
}

// ParseConfigValue resolves a JSON value that is either a plain string or
// an {"$env": "VAR"} reference. Referenced variables must be set.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	return stripQuotes(value), nil
}

// stripQuotes removes one matching pair of surrounding quotes.
func stripQuotes(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// parseDuration accepts "" as zero.
func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
