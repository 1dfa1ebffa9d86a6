package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sakif/snippetvault/internal/auth"
	"github.com/sakif/snippetvault/internal/config"
	"github.com/sakif/snippetvault/internal/repository/postgres"
	"github.com/sakif/snippetvault/internal/repository/sqlite"
	"github.com/sakif/snippetvault/internal/repository/sqlstore"
	"github.com/sakif/snippetvault/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			srv, err := server.New(cfg, store, prometheus.NewRegistry(), logger)
			if err != nil {
				return err
			}
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().IntP("port", "p", 8080, "HTTP port")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}

			// Opening a store migrates it.
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("database is up to date", slog.String("driver", cfg.Database.Driver))
			return store.Close()
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token USER-ID",
		Short: "Print a bearer token for USER-ID, signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("no JWT secret configured (set JWT_SECRET or auth.jwt_secret)")
			}

			tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateWithDuration(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	return cmd
}

// setup loads the configuration and builds the logger every command uses.
func setup(cmd *cobra.Command, configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openStore connects to the configured backend and migrates it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlstore.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return store, nil

	default:
		// os.MkdirAll is `mkdir -p`: fine if the directory already exists.
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
		store, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return store, nil
	}
}
