package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RETRO_API_URL", "RETRO_SOCKET_URL", "RETRO_DATA_DIR", "RETRO_ID_TOKEN",
		"JWT_SECRET", "PORT", "LOG_LEVEL", "RETRO_RECONNECT_ATTEMPTS", "RETRO_RECONNECT_DELAY",
	} {
		// t.Setenv restores the previous value; Unsetenv then hides it for this test
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("RETRO_DATA_DIR", dir)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != defaultAPIURL || cfg.SocketURL != "ws://localhost:3001/api/ws" {
		t.Fatalf("unexpected urls %q %q", cfg.APIURL, cfg.SocketURL)
	}
	if cfg.ReconnectAttempts != 3 || cfg.ReconnectDelay != 2*time.Second {
		t.Fatalf("unexpected socket tuning %d %v", cfg.ReconnectAttempts, cfg.ReconnectDelay)
	}
	if cfg.LogLevel != slog.LevelInfo || len(cfg.Columns) != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StorePath() != filepath.Join(dir, "retro.db") {
		t.Fatalf("unexpected store path %q", cfg.StorePath())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := `api_url: https://retro.example.com/api
socket:
  reconnect_attempts: 5
  reconnect_delay: 500ms
columns:
  - id: kudos
    title: Kudos
    question: Who helped you?
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RETRO_RECONNECT_ATTEMPTS", "2")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RETRO_DATA_DIR", dir)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "https://retro.example.com/api" || cfg.SocketURL != "wss://retro.example.com/api/ws" {
		t.Fatalf("unexpected urls %q %q", cfg.APIURL, cfg.SocketURL)
	}
	if cfg.ReconnectAttempts != 2 {
		t.Fatalf("env should override the file, got %d", cfg.ReconnectAttempts)
	}
	if cfg.ReconnectDelay != 500*time.Millisecond {
		t.Fatalf("unexpected delay %v", cfg.ReconnectDelay)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected level %v", cfg.LogLevel)
	}
	if len(cfg.Columns) != 1 || cfg.Columns[0].ID != "KUDOS" {
		t.Fatalf("unexpected columns %+v", cfg.Columns)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	env := "RETRO_ID_TOKEN=from-dotenv\nPORT=4000\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "5000")
	t.Setenv("RETRO_DATA_DIR", dir)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IDToken != "from-dotenv" {
		t.Fatalf("expected token from .env, got %q", cfg.IDToken)
	}
	if cfg.Port != "5000" {
		t.Fatalf("process env should win over .env, got %q", cfg.Port)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "attempts", env: map[string]string{"RETRO_RECONNECT_ATTEMPTS": "zero"}},
		{name: "delay", env: map[string]string{"RETRO_RECONNECT_DELAY": "soon"}},
		{name: "level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "column without title", yaml: "columns:\n  - id: x\n"},
		{name: "bad api scheme", env: map[string]string{"RETRO_API_URL": "ftp://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			t.Setenv("RETRO_DATA_DIR", dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.yaml != "" {
				os.WriteFile(filepath.Join(dir, FileName), []byte(tt.yaml), 0o644)
			}
			if _, err := Load(dir); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path, err := WriteDefault(dir)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RETRO_DATA_DIR", dir)
	if _, err := Load(dir); err != nil {
		t.Fatalf("default file should load: %v", err)
	}
	if again, _ := WriteDefault(dir); again != path {
		t.Fatalf("second write should keep the existing file")
	}
}
