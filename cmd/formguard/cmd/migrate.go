package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending record store migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "print migration status as JSON instead of migrating")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("--db-url or FG_DATABASE_URL required")
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if status {
		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	applied, err := db.MigrateUp(ctx, database)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.Info("record store is up to date")
		return nil
	}
	logger.Info("migrations applied", zap.Strings("migrations", applied))
	return nil
}
