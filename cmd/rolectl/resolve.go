package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/config"
	pgInfra "github.com/fastygo/rolegate/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/rolegate/internal/infrastructure/redis"
	"github.com/fastygo/rolegate/repository/postgres"
	redisRepo "github.com/fastygo/rolegate/repository/redis"
	authUC "github.com/fastygo/rolegate/usecase/auth"
	resolveUC "github.com/fastygo/rolegate/usecase/resolve"
)

func newResolveCmd(p *printer, loadConfig func() (*config.Config, error), newLogger func() *zap.Logger) *cobra.Command {
	var hint string
	cmd := &cobra.Command{
		Use:   "resolve <user-id>",
		Short: "Run the role resolution engine for a user against the configured stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger()
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Resolution.Timeout+cfg.Context.RequestTimeout)
			defer cancel()

			pool, err := pgInfra.NewPool(ctx, cfg.Database, "rolectl", log)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			redisClient, err := redisInfra.NewClient(ctx, cfg.Redis, log)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer redisClient.Close()

			sessions := authUC.New(authUC.Options{
				Accounts:    postgres.NewAccountRepository(pool),
				Sessions:    redisRepo.NewSessionRepository(redisClient, cfg.Session.TTL),
				Events:      redisRepo.NewSessionEvents(redisClient, log),
				Revocations: redisRepo.NewTokenRevocations(redisClient, cfg.Session.RevocationTTL),
				Logger:      log,
			})
			engine := resolveUC.New(
				postgres.NewRoleService(pool),
				postgres.NewUserRepository(pool),
				postgres.NewRiderRepository(pool),
				sessions,
				resolveUC.Config{
					Timeout:           cfg.Resolution.Timeout,
					RetryAttempts:     cfg.Resolution.RetryAttempts,
					RetryDelay:        cfg.Resolution.RetryDelay,
					UpgradeOnFallback: cfg.Resolution.UpgradeOnFallback,
				},
				nil,
				log,
			)

			res, err := engine.Resolve(ctx, args[0], hint)
			if err != nil {
				return err
			}
			p.print(res, func() string {
				return describe(res)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&hint, "hint", "", "Phone or email of the user, enables identifier lookups")
	return cmd
}

func describe(res domain.RoleResolution) string {
	line := fmt.Sprintf("role=%s blocked=%t needs_registration=%t", res.Role, res.IsBlocked, res.NeedsRegistration)
	if res.RiderStatus != "" {
		line += " rider_status=" + string(res.RiderStatus)
	}
	return line
}
