// Package main is the entry point for the snippetvault server.
//
// main stays small: it parses the command line, loads the configuration,
// opens the store and hands everything to internal/server. The commands
// live in their own files:
//
//	server [serve]        run the HTTP API (default)
//	server migrate        apply schema migrations and exit
//	server token USER-ID  print a signed bearer token for USER-ID
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var configPath string

	serve := newServeCmd(&configPath)

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Code snippet storage with version history",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the bare binary serves, as it always has.
		RunE: serve.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (yaml, json, toml or env)")
	rootCmd.PersistentFlags().String("db-driver", "", "Database driver: sqlite or postgres")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(
		serve,
		newMigrateCmd(&configPath),
		newTokenCmd(&configPath),
	)

	return rootCmd.ExecuteContext(ctx)
}
