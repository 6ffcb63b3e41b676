package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/studio-arteamo/sitecms/internal/emailutil"
)

// ValidationResult holds validation errors and warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError is a single finding.
type ValidationError struct {
	Path    string
	Message string
}

// IsValid reports whether there are no errors.
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) errorf(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) warnf(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var (
	bashVarPattern = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)
	repoPattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// ValidateFile checks a config file's structure without resolving env refs.
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result := &ValidationResult{}
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.errorf("", "invalid JSON: %v", err)
		return result, nil
	}

	version, ok := rawConfig["version"].(string)
	switch {
	case !ok:
		result.errorf("version", "version field is required. Hint: add \"version\": %q", Version)
	case version != Version:
		result.errorf("version", "unsupported version '%s', use '%s'", version, Version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		result.errorf("", "%v", err)
	}
	checkBashStyleSyntax(rawConfig, "", result)

	for _, section := range []string{"auth", "github"} {
		if _, ok := rawConfig[section].(map[string]any); !ok {
			result.errorf(section, "%s section is required and must be an object", section)
		}
	}
	if storage, ok := rawConfig["storage"].(map[string]any); ok {
		if kind, _ := storage["kind"].(string); kind != "" && kind != StorageMemory && kind != StorageFirestore {
			result.errorf("storage.kind", "must be %q or %q", StorageMemory, StorageFirestore)
		}
	}
	return result, nil
}

// checkBashStyleSyntax flags "$VAR" strings that were meant as env refs.
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			checkBashStyleSyntax(child, childPath, result)
		}
	case []any:
		for i, child := range v {
			checkBashStyleSyntax(child, fmt.Sprintf("%s[%d]", path, i), result)
		}
	case string:
		if bashVarPattern.MatchString(v) {
			result.errorf(path, "bash-style variable %q is not expanded, use {\"$env\": \"VAR\"}", v)
		}
	}
}

// Check validates a resolved config. Missing credentials are warnings:
// the endpoints that need them report a configuration error per request.
func Check(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if cfg.SiteURL == "" {
		result.warnf("siteUrl", "SITE_URL is not set, login and callback will fail")
	} else if u, err := url.Parse(cfg.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
		result.errorf("siteUrl", "must be an absolute URL, got %q", cfg.SiteURL)
	}
	if !strings.HasPrefix(cfg.AdminPath, "/") {
		result.errorf("adminPath", "must start with /")
	}

	if cfg.Auth.GoogleClientID == "" || cfg.Auth.GoogleClientSecret == "" {
		result.warnf("auth", "Google client id or secret is not set, sign-in is disabled")
	}
	if cfg.Auth.JWTSecret == "" {
		result.warnf("auth.jwtSecret", "JWT_SECRET is not set, every endpoint will report a configuration error")
	} else if len(cfg.Auth.JWTSecret) < 32 {
		result.warnf("auth.jwtSecret", "shorter than 32 bytes")
	}
	if emailutil.NewAllowList(cfg.Auth.AllowedEmails).Open() {
		result.warnf("auth.allowedEmails", "allow-list is empty, any Google account can sign in")
	}
	if cfg.Auth.StateTTL < 0 || cfg.Auth.SessionTTL < 0 {
		result.errorf("auth", "token lifetimes cannot be negative")
	}
	if !cfg.Auth.ReplayProtection {
		result.warnf("auth.replayProtection", "disabled, a captured state can be replayed until it expires")
	}

	if cfg.GitHub.Token == "" || cfg.GitHub.Repo == "" {
		result.warnf("github", "GITHUB_TOKEN or GITHUB_REPO is not set, commits are disabled")
	}
	if cfg.GitHub.Repo != "" && !repoPattern.MatchString(cfg.GitHub.Repo) {
		result.errorf("github.repo", "must be owner/name, got %q", cfg.GitHub.Repo)
	}
	if cfg.GitHub.MaxAttempts < 0 {
		result.errorf("github.maxAttempts", "cannot be negative")
	}

	switch cfg.Storage.Kind {
	case StorageMemory:
	case StorageFirestore:
		if cfg.Storage.GCPProject == "" {
			result.errorf("storage.gcpProject", "required for firestore storage")
		}
		if len(cfg.Storage.EncryptionKey) != 32 {
			result.errorf("storage.encryptionKey", "must be exactly 32 bytes for firestore storage")
		}
	default:
		result.errorf("storage.kind", "must be %q or %q, got %q", StorageMemory, StorageFirestore, cfg.Storage.Kind)
	}
	if cfg.Storage.CleanupInterval < 0 {
		result.errorf("storage.cleanupInterval", "cannot be negative")
	}

	return result
}
