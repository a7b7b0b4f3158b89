package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/quotation/internal/infra/storage/postgres"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema migrations",
	Run:   runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "show migration status instead of applying")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("database.url is not configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if migrateStatus {
		if err := postgres.MigrationStatus(db.DB.DB); err != nil {
			slog.Error("Failed to read migration status", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := postgres.Migrate(db.DB.DB); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	fmt.Println("Database schema is up to date")
}
