// Command askdb is a terminal client for a natural-language database
// assistant. It streams replies as they are produced and keeps a local view
// of the server's conversations.
//
// Usage:
//
//	askdb [flags]
//
// Flags:
//
//	-config string    Path to config file (default: askdb.yaml in . or ~/.config/askdb)
//	-base-url string  Backend base URL (overrides config)
//	-log-file string  Structured log destination (overrides config)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askdb/askdb"
	"github.com/askdb/askdb/api"
	bt "github.com/askdb/askdb/bubbletea"
	"github.com/askdb/askdb/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "askdb: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to config file")
		baseURL    = flag.String("base-url", "", "Backend base URL (overrides config)")
		logFile    = flag.String("log-file", "", "Structured log destination (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := api.New(cfg.BaseURL)
	store := askdb.NewStore()
	session := askdb.NewSession(store, client, client, client, askdb.WithLogger(logger))

	// Seed the sidebar state. A cold backend is not fatal; the store just
	// starts empty and fills in after the first turn.
	listCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	if convs, err := client.ListConversations(listCtx); err != nil {
		logger.Warn("initial conversation list failed", zap.Error(err))
	} else {
		store.ReplaceConversations(convs)
	}
	cancel()

	turnFn := func(ctx context.Context, prompt string, files []string, onEvent func(askdb.Event)) error {
		return session.Send(ctx, prompt, files, askdb.WithEventHandler(onEvent))
	}

	model := bt.New(turnFn, store, client, askdb.DefaultTheme())
	if err := bt.Run(ctx, model); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

// newLogger builds a file logger from the config. The terminal belongs to
// the TUI, so an empty log file disables logging entirely.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogFile == "" {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{cfg.LogFile}
	zcfg.ErrorOutputPaths = []string{cfg.LogFile}
	return zcfg.Build()
}
