// Package main provides the CLI entry point for the LAN chat relay.
//
// The relay accepts websocket connections from desktop chat clients, routes
// broadcast, private, and announcement frames between them, persists the
// message log to SQLite, and answers '#'-prefixed queries through an
// OpenAI-compatible completion endpoint.
//
// # Basic Usage
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// # Environment Variables
//
//   - RELAY_CONFIG: Path to configuration file (default: relay.yaml)
//   - TOGETHER_API_KEY: API key for the reply oracle, referenced as
//     ${TOGETHER_API_KEY} from the config file
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanchat/relay/internal/chatlog"
	"github.com/lanchat/relay/internal/config"
	"github.com/lanchat/relay/internal/observability"
	"github.com/lanchat/relay/internal/oracle"
	"github.com/lanchat/relay/internal/registry"
	"github.com/lanchat/relay/internal/router"
	"github.com/lanchat/relay/internal/server"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "LAN chat relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	defaultConfig := os.Getenv("RELAY_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "relay.yaml"
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to configuration file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relay %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	metrics := observability.NewMetrics(nil)

	store, err := chatlog.Open(chatlog.Config{Path: cfg.Database.Path})
	if err != nil {
		return fmt.Errorf("open chat log: %w", err)
	}
	defer store.Close()

	chat := registry.New()
	notice := registry.New()

	ora := oracle.New(oracle.Config{
		APIKey:         cfg.Oracle.APIKey,
		BaseURL:        cfg.Oracle.BaseURL,
		Model:          cfg.Oracle.Model,
		SystemPrompt:   cfg.Oracle.SystemPrompt,
		RequestTimeout: cfg.Oracle.RequestTimeout,
		Cost:           cfg.Oracle.Cost,
		MaxBudget:      cfg.Oracle.MaxBudgetUSD,
	}, logger.With("component", "oracle"), metrics)

	rt := router.New(router.Deps{
		Chat:          chat,
		Notice:        notice,
		Log:           store,
		Oracle:        ora,
		OracleProfile: loadProfileImage(cfg.Oracle.ProfileImage, logger),
		Logger:        logger.With("component", "router"),
		Metrics:       metrics,
	})

	srv := server.New(server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, server.Deps{
		Chat:    chat,
		Notice:  notice,
		Store:   store,
		Router:  rt,
		Logger:  logger.With("component", "server"),
		Metrics: metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// loadProfileImage reads and base64-encodes the oracle avatar once at
// startup; every oracle frame reuses the encoded value.
func loadProfileImage(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to load oracle profile image", "path", path, "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
