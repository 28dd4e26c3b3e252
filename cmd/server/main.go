package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatrelay/internal/app"
	"github.com/vovakirdan/chatrelay/internal/config"
	applog "github.com/vovakirdan/chatrelay/internal/log"
)

var (
	configPath string
	overrides  config.Config

	cfg    config.Config
	logger *zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Multi-room authenticated chat relay",
	Long: `chatrelay relays chat between authenticated clients speaking
newline-delimited JSON over TCP (and WebSocket on the HTTP port).

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bootLog := applog.New(overrides.LogLevel, overrides.LogFormat)

		loaded, path, err := config.Load(bootLog, configPath)
		if err != nil {
			return err
		}
		loaded.UpdateFrom(overrides)
		cfg = loaded
		logger = applog.New(cfg.LogLevel, cfg.LogFormat)
		logger.Debug().Str("config", path).Msg("configuration loaded")
		return nil
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat relay",
	RunE:  runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml (created with defaults if missing)")
	flags.StringVar(&overrides.Addr, "addr", "", "TCP chat listen address")
	flags.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP/WebSocket listen address")
	flags.StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "log format (console, json)")
	flags.IntVar(&overrides.HistoryLimit, "history-limit", 0, "messages retained per room")
	flags.IntVar(&overrides.HistoryBacklog, "history-backlog", 0, "messages replayed on join")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(operatorTokenCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("http_addr", cfg.HTTPAddr).Msg("starting chatrelay")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
