package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawConfig mirrors the file layout before references are resolved.
type rawConfig struct {
	Version        string          `json:"version"`
	Addr           json.RawMessage `json:"addr"`
	SiteURL        json.RawMessage `json:"siteUrl"`
	BasePath       string          `json:"basePath"`
	AdminPath      string          `json:"adminPath"`
	AllowedOrigins []string        `json:"allowedOrigins"`
	Auth           rawAuth         `json:"auth"`
	GitHub         rawGitHub       `json:"github"`
	Storage        rawStorage      `json:"storage"`
}

type rawAuth struct {
	GoogleClientID     json.RawMessage `json:"googleClientId"`
	GoogleClientSecret json.RawMessage `json:"googleClientSecret"`
	JWTSecret          json.RawMessage `json:"jwtSecret"`
	AllowedEmails      json.RawMessage `json:"allowedEmails"`
	StateTTL           string          `json:"stateTtl"`
	SessionTTL         string          `json:"sessionTtl"`
	ReplayProtection   *bool           `json:"replayProtection"`
}

type rawGitHub struct {
	Token       json.RawMessage `json:"token"`
	Repo        json.RawMessage `json:"repo"`
	Branch      json.RawMessage `json:"branch"`
	APIURL      string          `json:"apiUrl"`
	MaxAttempts int             `json:"maxAttempts"`
}

type rawStorage struct {
	Kind              string          `json:"kind"`
	GCPProject        json.RawMessage `json:"gcpProject"`
	FirestoreDatabase string          `json:"firestoreDatabase"`
	CollectionPrefix  string          `json:"collectionPrefix"`
	EncryptionKey     json.RawMessage `json:"encryptionKey"`
	CleanupInterval   string          `json:"cleanupInterval"`
}

// UnmarshalJSON resolves env references and durations, then applies defaults.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	resolve := func(field string, v json.RawMessage) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = ParseConfigValue(v)
		if err != nil {
			err = fmt.Errorf("parsing %s: %w", field, err)
		}
		return s
	}

	out := Config{
		Addr:           resolve("addr", raw.Addr),
		SiteURL:        resolve("siteUrl", raw.SiteURL),
		BasePath:       raw.BasePath,
		AdminPath:      raw.AdminPath,
		AllowedOrigins: raw.AllowedOrigins,
		Auth: AuthConfig{
			GoogleClientID:     resolve("auth.googleClientId", raw.Auth.GoogleClientID),
			GoogleClientSecret: Secret(resolve("auth.googleClientSecret", raw.Auth.GoogleClientSecret)),
			JWTSecret:          Secret(resolve("auth.jwtSecret", raw.Auth.JWTSecret)),
		},
		GitHub: GitHubConfig{
			Token:       Secret(resolve("github.token", raw.GitHub.Token)),
			Repo:        resolve("github.repo", raw.GitHub.Repo),
			Branch:      resolve("github.branch", raw.GitHub.Branch),
			APIURL:      raw.GitHub.APIURL,
			MaxAttempts: raw.GitHub.MaxAttempts,
		},
		Storage: StorageConfig{
			Kind:              raw.Storage.Kind,
			GCPProject:        resolve("storage.gcpProject", raw.Storage.GCPProject),
			FirestoreDatabase: raw.Storage.FirestoreDatabase,
			CollectionPrefix:  raw.Storage.CollectionPrefix,
			EncryptionKey:     Secret(resolve("storage.encryptionKey", raw.Storage.EncryptionKey)),
		},
	}
	if err != nil {
		return err
	}

	if out.Auth.AllowedEmails, err = parseEmailList(raw.Auth.AllowedEmails); err != nil {
		return fmt.Errorf("parsing auth.allowedEmails: %w", err)
	}
	if out.Auth.StateTTL, err = parseDuration("auth.stateTtl", raw.Auth.StateTTL); err != nil {
		return err
	}
	if out.Auth.SessionTTL, err = parseDuration("auth.sessionTtl", raw.Auth.SessionTTL); err != nil {
		return err
	}
	if out.Storage.CleanupInterval, err = parseDuration("storage.cleanupInterval", raw.Storage.CleanupInterval); err != nil {
		return err
	}

	out.applyDefaults(raw.Auth.ReplayProtection)
	*c = out
	return nil
}

// parseEmailList accepts a JSON array of strings or a single (possibly
// env-referenced) comma separated string.
func parseEmailList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compactEmails(list), nil
	}

	csv, err := ParseConfigValue(raw)
	if err != nil {
		return nil, err
	}
	return SplitList(csv), nil
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(csv string) []string {
	return compactEmails(strings.Split(csv, ","))
}

func compactEmails(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
