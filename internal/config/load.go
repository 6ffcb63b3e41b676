package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Version is the config file format this build understands.
const Version = "v1"

// secretFields must be given as {"$env": ...} references in config files.
var secretFields = []struct {
	section string
	name    string
}{
	{"auth", "googleClientSecret"},
	{"auth", "jwtSecret"},
	{"github", "token"},
	{"storage", "encryptionKey"},
}

// Load reads a JSON config file, resolving env references immediately.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if result := Check(&cfg); !result.IsValid() {
		return Config{}, fmt.Errorf("config validation failed: %s", result.Errors[0])
	}
	return cfg, nil
}

// validateRawConfig rejects secrets written inline in the file.
func validateRawConfig(rawConfig map[string]any) error {
	for _, f := range secretFields {
		section, ok := rawConfig[f.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[f.name]
		if !exists {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return fmt.Errorf("%s.%s must use environment variable reference for security", f.section, f.name)
			}
		case map[string]any:
			if _, hasEnv := v["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", f.section, f.name)
			}
		}
	}
	return nil
}

// String renders a validation error.
func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return strings.Join([]string{e.Path, e.Message}, ": ")
}
