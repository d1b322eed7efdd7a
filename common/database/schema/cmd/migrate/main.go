package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/database"
	"github.com/romelikethecity/pecollective/common/database/schema"
	"github.com/romelikethecity/pecollective/common/database/schema/migrations"
)

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	opts := database.Options{}
	var rollback int

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the ClickHouse analytics schema",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := database.New(ctx, opts, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := schema.NewMigrator(db.Conn(), logger)

			if rollback > 0 {
				return rollbackTo(ctx, migrator, rollback, logger)
			}

			applied, err := migrator.Migrate(ctx, migrations.All)
			if err != nil {
				return err
			}
			logger.Info("all migrations completed", zap.Int("applied", applied))
			return nil
		},
	}

	root.Flags().StringVar(&opts.DSN, "dsn", envOr("CLICKHOUSE_DSN", "127.0.0.1:9000"), "clickhouse host:port")
	root.Flags().StringVar(&opts.Database, "database", envOr("CLICKHOUSE_DATABASE", "pecollective"), "database name")
	root.Flags().StringVar(&opts.Username, "username", envOr("CLICKHOUSE_USERNAME", "default"), "username")
	root.Flags().StringVar(&opts.Password, "password", envOr("CLICKHOUSE_PASSWORD", ""), "password")
	root.Flags().IntVar(&rollback, "rollback", 0, "roll back the given migration version instead of migrating up")

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}

func rollbackTo(ctx context.Context, migrator *schema.Migrator, version int, logger *zap.Logger) error {
	for _, migration := range migrations.All {
		if migration.Version != version {
			continue
		}
		if err := migrator.RollbackMigration(ctx, migration); err != nil {
			return err
		}
		logger.Info("rolled back migration", zap.Int("version", version))
		return nil
	}
	return fmt.Errorf("unknown migration version %d", version)
}
