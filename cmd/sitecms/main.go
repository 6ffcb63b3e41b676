package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studio-arteamo/sitecms/internal"
	"github.com/studio-arteamo/sitecms/internal/adminclient"
	"github.com/studio-arteamo/sitecms/internal/config"
	"github.com/studio-arteamo/sitecms/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version":        config.Version,
		"addr":           config.DefaultAddr,
		"siteUrl":        map[string]string{"$env": "SITE_URL"},
		"basePath":       config.DefaultBasePath,
		"adminPath":      config.DefaultAdminPath,
		"allowedOrigins": []string{"https://studio.example"},
		"auth": map[string]any{
			"googleClientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
			"googleClientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
			"jwtSecret":          map[string]string{"$env": "JWT_SECRET"},
			"allowedEmails":      map[string]string{"$env": "ALLOWED_EMAILS"},
			"stateTtl":           "10m",
			"sessionTtl":         "8h",
			"replayProtection":   true,
		},
		"github": map[string]any{
			"token":       map[string]string{"$env": "GITHUB_TOKEN"},
			"repo":        map[string]string{"$env": "GITHUB_REPO"},
			"branch":      config.DefaultBranch,
			"maxAttempts": config.DefaultMaxAttempts,
		},
		"storage": map[string]any{
			"kind":            config.StorageMemory,
			"cleanupInterval": "5m",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func printFindings(w io.Writer, title string, findings []config.ValidationError) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(findings))
	for _, f := range findings {
		if f.Path != "" {
			fmt.Fprintf(w, "  - %s: %s\n", f.Path, f.Message)
		} else {
			fmt.Fprintf(w, "  - %s\n", f.Message)
		}
	}
}

func validateConfig(w io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(w, "Validating: %s\n", path)
	printFindings(w, "Errors", result.Errors)
	printFindings(w, "Warnings", result.Warnings)

	fmt.Fprintln(w)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(w, "Result: PASS")
	case len(result.Errors) == 0:
		fmt.Fprintln(w, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(w, "Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// loadConfig reads the file at path, or the environment (and .env) when
// path is empty.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv(".env")
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CMS backend",
		Long: `Serve the admin sign-in and commit endpoints. Without --config the
settings are read from the environment and an optional .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			for _, warn := range config.Check(&cfg).Warnings {
				log.LogWarnWithFields("config", warn.Message, map[string]any{"path": warn.Path})
			}

			log.LogInfoWithFields("main", "Starting sitecms", map[string]any{
				"version":   BuildVersion,
				"log_level": log.GetLogLevel(),
			})

			app, err := internal.NewApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.LogError("Failed to close application: %v", err)
				}
			}()
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: environment)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-init <path>",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildVersion)
		},
	}
}

func newPushCmd() *cobra.Command {
	var (
		siteURL  string
		token    string
		file     string
		message  string
		repoPath string
		basePath string
	)
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Commit a configuration file through a running backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("SITECMS_SESSION")
			}
			if token == "" {
				return fmt.Errorf("a session token is required (--session or SITECMS_SESSION)")
			}
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}

			client, err := adminclient.New(siteURL,
				adminclient.WithSession(token),
				adminclient.WithBasePath(basePath),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.VerifySession(cmd.Context())
			if err != nil {
				return err
			}
			if !status.Authenticated {
				return fmt.Errorf("session rejected: %s", status.Reason)
			}

			result, err := client.CommitConfig(cmd.Context(), adminclient.CommitRequest{
				Content:  string(content),
				Message:  message,
				FilePath: repoPath,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Committed %s as %s\n%s\n", file, result.SHA, result.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteURL, "url", "", "site URL, e.g. https://studio.example")
	cmd.Flags().StringVar(&token, "session", "", "session cookie value")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to commit")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&repoPath, "path", "", "path in the repository (default project-config.js)")
	cmd.Flags().StringVar(&basePath, "base-path", config.DefaultBasePath, "functions base path")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitecms",
		Short:         "Backend for the studio site admin panel",
		Version:       BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newConfigInitCmd(),
		newVersionCmd(),
		newPushCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.LogError("%v", err)
		os.Exit(1)
	}
}
