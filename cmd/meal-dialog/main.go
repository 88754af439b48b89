// cmd/meal-dialog/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcp-meal-dialog/internal/config"
	"mcp-meal-dialog/internal/logging"
	"mcp-meal-dialog/internal/server"
	"mcp-meal-dialog/internal/storage"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "meal-dialog",
	Short: "Conversational food diary backed by Fineli",
	Long: `meal-dialog turns free-text meal descriptions in Finnish, Swedish or
English into weighed diary entries, asking follow-up questions until every
food is identified and portioned.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP tool server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meal-dialog version %s\n", server.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd.Flags().String("host", "", "Host address (overrides config)")
	serveCmd.Flags().Int("port", 0, "Port (overrides config)")
	serveCmd.Flags().String("db-path", "", "Database path (overrides config)")

	chatCmd.Flags().StringVar(&chatCatalog, "catalog", "", "Search a YAML food catalog instead of the Fineli API")
	chatCmd.Flags().StringVar(&chatLang, "lang", "", "Conversation language: fi, sv or en")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if h, _ := cmd.Flags().GetString("host"); h != "" {
		cfg.Server.Host = h
	}
	if p, _ := cmd.Flags().GetInt("port"); p != 0 {
		cfg.Server.Port = p
	}
	if d, _ := cmd.Flags().GetString("db-path"); d != "" {
		cfg.Server.DBPath = d
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	engine, err := buildEngine(ctx, cfg, "", logger)
	if err != nil {
		return err
	}

	srv := server.NewMealDialogServer(&server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, engine, store, logger)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	logger.Info("shutting down")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	return nil
}
