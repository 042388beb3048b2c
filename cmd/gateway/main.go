package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"judge0gw/internal/app"
	"judge0gw/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = app.DefaultVersion

var (
	configFile = flag.String("config", "", "config file path (empty uses the embedded default)")
	logLevel   = flag.String("log-level", "", "log level, overrides logging.level")
)

func main() {
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(newLogger(os.Stdout, "text", level))

	cfg, err := config.NewLoader(*configFile).Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Logging.Format, level)
	slog.SetDefault(logger)
	level.Set(resolveLevel(*logLevel, cfg.Logging.Level))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, err := app.NewBuilder(cfg, logger).WithVersion(version).Build(ctx)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if *configFile != "" && *logLevel == "" {
		watcher, err := watchLogLevel(*configFile, level, logger)
		if err != nil {
			logger.Warn("config file watching disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server", "error", err)
		os.Exit(1)
	}
}

// watchLogLevel applies logging.level changes from the config file. Other
// settings need a restart.
func watchLogLevel(path string, level *slog.LevelVar, logger *slog.Logger) (*config.Watcher, error) {
	watcher, err := config.NewWatcher(path, &config.WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
		OnChange: func(newConfig *config.Config) error {
			next := parseLevel(newConfig.Logging.Level)
			if next != level.Level() {
				logger.Info("log level changed", "from", level.Level().String(), "to", next.String())
				level.Set(next)
			}
			return nil
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	watcher.Start()
	return watcher, nil
}

func newLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func resolveLevel(flagLevel, configLevel string) slog.Level {
	if flagLevel != "" {
		return parseLevel(flagLevel)
	}
	return parseLevel(configLevel)
}

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(level string) slog.Level {
	if lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return lvl
	}
	return slog.LevelInfo
}
