package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/core/config"
	"github.com/solatis/formguard/internal/core/logging"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "formguard",
	Short: "formguard form validation engine",
	Long: `formguard validates form records against field, cross-field and business rules.

Rules come from the built-in holiday and work order forms and from YAML or TOML
rule files. Existing records for overlap and uniqueness checks are read from
the record store when --db-url is set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "record store URL (sqlite://path or postgres://...), overrides FG_DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the engine config and applies the --db-url override.
func loadConfig() (*config.EngineConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	return cfg, nil
}
