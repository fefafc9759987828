package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path string, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "warn", input: "warn", want: slog.LevelWarn},
		{name: "warning", input: "warning", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "invalid", input: "trace", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			level, err := parseLogLevel(testCase.input)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if level != testCase.want {
				t.Fatalf("level = %v, want %v", level, testCase.want)
			}
		})
	}
}

func TestApplyConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bot.json")
	writeConfigFile(t, configPath, `{
		"log_level": "debug",
		"database": {"path": "/tmp/bot.db"},
		"telegram": {
			"app_id": 12345,
			"app_hash": "hash",
			"bot_token": "123:token"
		},
		"flow": {"idle_timeout": "10m"},
		"browse": {"session_ttl": "45m"}
	}`)

	cfg := defaultAppConfig()
	if err := applyConfigFile(&cfg, configPath); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if cfg.logLevel != slog.LevelDebug {
		t.Fatalf("log level = %v, want debug", cfg.logLevel)
	}
	if cfg.databasePath != "/tmp/bot.db" {
		t.Fatalf("database path = %s", cfg.databasePath)
	}
	if !strings.Contains(string(cfg.telegram), "123:token") {
		t.Fatalf("telegram payload = %s", cfg.telegram)
	}
	if cfg.flowIdleTimeout != 10*time.Minute {
		t.Fatalf("flow idle timeout = %v, want 10m", cfg.flowIdleTimeout)
	}
	if cfg.browseSessionTTL != 45*time.Minute {
		t.Fatalf("browse session ttl = %v, want 45m", cfg.browseSessionTTL)
	}
}

func TestApplyConfigFileDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bot.json")
	writeConfigFile(t, configPath, `{
		"telegram": {"app_id": 12345, "app_hash": "hash", "bot_token": "123:token"}
	}`)

	cfg := defaultAppConfig()
	if err := applyConfigFile(&cfg, configPath); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if cfg.logLevel != slog.LevelInfo {
		t.Fatalf("log level = %v, want info", cfg.logLevel)
	}
	if cfg.databasePath != defaultDatabasePath {
		t.Fatalf("database path = %s, want %s", cfg.databasePath, defaultDatabasePath)
	}
	if cfg.flowIdleTimeout != 0 {
		t.Fatalf("flow idle timeout = %v, want 0", cfg.flowIdleTimeout)
	}
}

func TestApplyConfigFileRejections(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name:     "missing telegram section",
			contents: `{"log_level": "info"}`,
		},
		{
			name:     "invalid log level",
			contents: `{"log_level": "trace", "telegram": {"app_id": 1}}`,
		},
		{
			name:     "invalid flow timeout",
			contents: `{"telegram": {"app_id": 1}, "flow": {"idle_timeout": "soon"}}`,
		},
		{
			name:     "negative browse ttl",
			contents: `{"telegram": {"app_id": 1}, "browse": {"session_ttl": "-1m"}}`,
		},
		{
			name:     "malformed json",
			contents: `{`,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "bot.json")
			writeConfigFile(t, configPath, testCase.contents)

			cfg := defaultAppConfig()
			if err := applyConfigFile(&cfg, configPath); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestResolveConfigFilePathEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.json")
	writeConfigFile(t, configPath, `{}`)
	t.Setenv(envConfigFile, configPath)

	resolved, err := resolveConfigFilePath()
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved != configPath {
		t.Fatalf("resolved = %s, want %s", resolved, configPath)
	}
}
