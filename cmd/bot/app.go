package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/earhater/shumaxer-bot/internal/browse"
	"github.com/earhater/shumaxer-bot/internal/dispatch"
	"github.com/earhater/shumaxer-bot/internal/driver/telegram"
	"github.com/earhater/shumaxer-bot/internal/flow"
	"github.com/earhater/shumaxer-bot/internal/search"
	"github.com/earhater/shumaxer-bot/internal/store"
)

const (
	envConfigFile           = "SHUMAXER_CONFIG_FILE"
	defaultConfigFilePath   = "config/bot.json"
	alternateConfigFilePath = "bin/config/bot.json"
	defaultDatabasePath     = "data/shumaxer.db"
	defaultDriverName       = "telegram"
)

type appConfig struct {
	logLevel slog.Level

	databasePath string
	telegram     json.RawMessage

	flowIdleTimeout  time.Duration
	browseSessionTTL time.Duration
}

type fileConfig struct {
	LogLevel string             `json:"log_level"`
	Database fileDatabaseConfig `json:"database"`
	Telegram json.RawMessage    `json:"telegram"`
	Flow     fileFlowConfig     `json:"flow"`
	Browse   fileBrowseConfig   `json:"browse"`
}

type fileDatabaseConfig struct {
	Path string `json:"path"`
}

type fileFlowConfig struct {
	IdleTimeout string `json:"idle_timeout"`
}

type fileBrowseConfig struct {
	SessionTTL string `json:"session_ttl"`
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "shumaxer-bot",
		Short:         "Telegram bot that replies with stickers matched by trigger words",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context())
		},
	}
	root.AddCommand(newStatsCommand())

	return root
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print storage-wide usage statistics and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runBot(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	storage, err := store.Open(cfg.databasePath, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := storage.Close(); closeErr != nil {
			logger.Error("close store", "error", closeErr)
		}
	}()

	driver, messenger, err := telegram.BuildRuntimeFromConfig(defaultDriverName, logger, cfg.telegram)
	if err != nil {
		return fmt.Errorf("build telegram runtime: %w", err)
	}

	matcher, err := search.New(
		storage,
		messenger,
		search.WithLogger(logger),
		search.WithReservedLabels(dispatch.MenuLabels()),
	)
	if err != nil {
		return fmt.Errorf("new matcher: %w", err)
	}

	flowOptions := []flow.Option{flow.WithLogger(logger)}
	if cfg.flowIdleTimeout > 0 {
		flowOptions = append(flowOptions, flow.WithIdleTimeout(cfg.flowIdleTimeout))
	}
	flows, err := flow.New(storage, flowOptions...)
	if err != nil {
		return fmt.Errorf("new flow controller: %w", err)
	}

	browseOptions := []browse.Option{browse.WithLogger(logger)}
	if cfg.browseSessionTTL > 0 {
		browseOptions = append(browseOptions, browse.WithSessionTTL(cfg.browseSessionTTL))
	}
	sessions, err := browse.New(storage, browseOptions...)
	if err != nil {
		return fmt.Errorf("new browse cache: %w", err)
	}

	dispatcher, err := dispatch.New(
		messenger,
		matcher,
		flows,
		sessions,
		storage,
		dispatch.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("new dispatcher: %w", err)
	}

	logger.Info("bot starting", "database", cfg.databasePath)
	if err := driver.Start(ctx, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run driver: %w", err)
	}
	logger.Info("bot stopped")

	return nil
}

func runStats(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	storage, err := store.Open(cfg.databasePath, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storage.Close()

	stats := storage.GetStats(ctx)

	fmt.Fprintf(out, "Associations: %d\n", stats.TotalAssociations)
	fmt.Fprintf(out, "Unique images: %d\n", stats.UniqueImages)
	fmt.Fprintf(out, "Owners: %d\n", stats.TotalOwners)
	if len(stats.TopTriggers) > 0 {
		fmt.Fprintln(out, "Top triggers:")
		for rank, usage := range stats.TopTriggers {
			fmt.Fprintf(out, "%d. %s: %d\n", rank+1, usage.Trigger, usage.Count)
		}
	}

	return nil
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel:     slog.LevelInfo,
		databasePath: defaultDatabasePath,
	}
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if databasePath := strings.TrimSpace(parsed.Database.Path); databasePath != "" {
		cfg.databasePath = databasePath
	}

	if len(parsed.Telegram) == 0 {
		return fmt.Errorf("parse telegram: required")
	}
	cfg.telegram = append([]byte(nil), parsed.Telegram...)

	if rawTimeout := strings.TrimSpace(parsed.Flow.IdleTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse flow.idle_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse flow.idle_timeout: must be > 0")
		}
		cfg.flowIdleTimeout = timeout
	}
	if rawTTL := strings.TrimSpace(parsed.Browse.SessionTTL); rawTTL != "" {
		ttl, err := time.ParseDuration(rawTTL)
		if err != nil {
			return fmt.Errorf("parse browse.session_ttl: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("parse browse.session_ttl: must be > 0")
		}
		cfg.browseSessionTTL = ttl
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
