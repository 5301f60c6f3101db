package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-matter/internal/auth"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/logging"
)

const (
	// defaultConfigPath is used when neither --config nor the environment names a file.
	defaultConfigPath = "configs/config.yaml"

	configEnvVar = "GRAYLOGIC_MATTER_CONFIG"
)

// newRootCmd builds the command tree. Running the root command with no
// subcommand serves the bridge.
func newRootCmd() *cobra.Command {
	var cfgFile, logLevel string

	root := &cobra.Command{
		Use:           "matterbridge",
		Short:         "Gray Logic Matter bridge",
		Long:          `Exposes catalogued Gray Logic devices as dynamic endpoints on a Matter node.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, cfgFile, logLevel)
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		fmt.Sprintf("config file (default: $%s or %s)", configEnvVar, defaultConfigPath))
	root.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override logging.level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bridge until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd, cfgFile, logLevel)
			},
		},
		newMigrateCmd(&cfgFile),
		newTokenCmd(&cfgFile),
		newVersionCmd(),
	)

	return root
}

func serve(cmd *cobra.Command, cfgFile, logLevel string) error {
	cfg, path, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		switch strings.ToLower(logLevel) {
		case "debug", "info", "warn", "warning", "error":
			cfg.Logging.Level = logLevel
		default:
			return fmt.Errorf("invalid --log-level %q", logLevel)
		}
	}
	return run(cmd.Context(), cfg, path)
}

// newMigrateCmd applies, rolls back, or reports database migrations.
func newMigrateCmd(cfgFile *string) *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}

			db, err := database.Open(database.Config{
				Path:        cfg.Database.Path,
				WALMode:     cfg.Database.WALMode,
				BusyTimeout: cfg.Database.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch {
			case status:
				applied, pending, statusErr := db.GetMigrationStatus(ctx)
				if statusErr != nil {
					return statusErr
				}
				for _, m := range applied {
					var note string
					switch {
					case m.Missing:
						note = "  (not in this build)"
					case m.Modified:
						note = "  (modified since applied)"
					}
					fmt.Fprintf(out, "applied  %s  %s%s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"), note)
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
				}
				return nil
			case down:
				if downErr := db.MigrateDown(ctx); downErr != nil {
					return fmt.Errorf("rolling back migration: %w", downErr)
				}
				fmt.Fprintln(out, "rolled back latest migration")
				return nil
			default:
				n, migrateErr := db.Migrate(ctx)
				if migrateErr != nil {
					return fmt.Errorf("running migrations: %w", migrateErr)
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", n)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "list applied and pending migrations")
	cmd.MarkFlagsMutuallyExclusive("down", "status")

	return cmd
}

// newTokenCmd mints an API access token signed with the configured secret.
func newTokenCmd(cfgFile *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			if cfg.Security.JWT.Secret == "" {
				return fmt.Errorf("security.jwt.secret is not set")
			}
			if ttl == 0 {
				ttl = cfg.Security.JWT.GetAccessTokenTTL()
			}

			token, err := auth.GenerateAccessToken(subject, auth.Role(role), cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "label for the token holder (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: security.jwt.access_token_ttl)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "matterbridge %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig resolves the config path and loads it.
//
// Resolution order: the --config flag, then $GRAYLOGIC_MATTER_CONFIG, then
// configs/config.yaml. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
//
// Returns:
//   - *config.Config: Loaded configuration
//   - string: The path used, or "" for built-in defaults
//   - error: If the file cannot be read or fails validation
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(configEnvVar)
	}

	if path == "" {
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
			cfg, defErr := config.Default()
			if defErr != nil {
				return nil, "", fmt.Errorf("loading default config: %w", defErr)
			}
			logging.Default().Info("no config file found, using defaults", "path", defaultConfigPath)
			return cfg, "", nil
		}
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}
