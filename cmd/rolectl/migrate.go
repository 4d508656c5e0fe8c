package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/internal/config"
	pgInfra "github.com/fastygo/rolegate/internal/infrastructure/postgres"
)

func newMigrateCmd(loadConfig func() (*config.Config, error), newLogger func() *zap.Logger) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema and role procedure migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Migrations.Path
			}
			log := newLogger()
			defer log.Sync()
			return pgInfra.Migrate(cfg.Database, path, log)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Migrations directory (default MIGRATIONS_PATH)")
	return cmd
}
