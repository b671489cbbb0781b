// Package config resolves the client and relay settings from, in increasing
// precedence: built-in defaults, retro.yaml, .env and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
)

const (
	// FileName is the optional YAML file looked up in the working directory.
	FileName = "retro.yaml"

	defaultAPIURL = "http://localhost:3001/api"
	defaultPort   = "3001"
)

const defaultFileYAML = `# retro-board client configuration
api_url: http://localhost:3001/api
# socket_url defaults to <api_url>/ws with a ws:// or wss:// scheme
# socket_url: ws://localhost:3001/api/ws

socket:
  reconnect_attempts: 3
  reconnect_delay: 2s

# Board columns. Leave empty for Drop / Add / Keep / Improve.
columns: []
#  - id: KUDOS
#    title: Kudos
#    question: Who helped you this sprint?
#    color: "#9B59B6"
#    icon: "!"
`

// SocketConfig tunes the realtime connection.
type SocketConfig struct {
	ReconnectAttempts int    `yaml:"reconnect_attempts"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
}

// ColumnPreset is one board column declared in retro.yaml.
type ColumnPreset struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Question string `yaml:"question"`
	Color    string `yaml:"color"`
	Icon     string `yaml:"icon"`
}

// FileConfig models retro.yaml.
type FileConfig struct {
	APIURL    string         `yaml:"api_url"`
	SocketURL string         `yaml:"socket_url"`
	Socket    SocketConfig   `yaml:"socket"`
	Columns   []ColumnPreset `yaml:"columns"`
}

// Config holds the resolved runtime configuration.
type Config struct {
	APIURL    string
	SocketURL string

	// DataDir holds the sqlite store file and the TUI log
	DataDir string

	// IDToken is an identity-provider token exchanged by `retro login`
	IDToken string

	// JWTSecret and Port are used by the dev relay only
	JWTSecret string
	Port      string

	LogLevel          slog.Level
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Columns           []database.Column
}

// StorePath is the sqlite file backing the persisted stores.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "retro.db")
}

// LogPath is where the TUI writes its log.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "retro.log")
}

// Load resolves the configuration for the working directory dir.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	file, err := readFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:            defaultAPIURL,
		Port:              defaultPort,
		LogLevel:          slog.LevelInfo,
		ReconnectAttempts: 3,
		ReconnectDelay:    2 * time.Second,
	}
	if err := cfg.applyFile(file); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.SocketURL == "" {
		if cfg.SocketURL, err = services.SocketURL(cfg.APIURL); err != nil {
			return nil, fmt.Errorf("derive socket url: %w", err)
		}
	}
	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = dir
		}
		cfg.DataDir = filepath.Join(base, "retro-board")
	}
	return cfg, nil
}

func readFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// WriteDefault writes a commented retro.yaml into dir unless one exists.
func WriteDefault(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(defaultFileYAML), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (c *Config) applyFile(fc FileConfig) error {
	if fc.APIURL != "" {
		c.APIURL = fc.APIURL
	}
	if fc.SocketURL != "" {
		c.SocketURL = fc.SocketURL
	}
	if fc.Socket.ReconnectAttempts > 0 {
		c.ReconnectAttempts = fc.Socket.ReconnectAttempts
	}
	if fc.Socket.ReconnectDelay != "" {
		d, err := time.ParseDuration(fc.Socket.ReconnectDelay)
		if err != nil {
			return fmt.Errorf("%s: socket.reconnect_delay: %w", FileName, err)
		}
		c.ReconnectDelay = d
	}
	for _, p := range fc.Columns {
		if p.ID == "" || p.Title == "" {
			return fmt.Errorf("%s: every column needs an id and a title", FileName)
		}
		c.Columns = append(c.Columns, database.Column{
			ID:       strings.ToUpper(p.ID),
			Title:    p.Title,
			Question: p.Question,
			Color:    p.Color,
			Icon:     p.Icon,
		})
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.APIURL, "RETRO_API_URL")
	setString(&c.SocketURL, "RETRO_SOCKET_URL")
	setString(&c.DataDir, "RETRO_DATA_DIR")
	setString(&c.IDToken, "RETRO_ID_TOKEN")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.Port, "PORT")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	if v := os.Getenv("RETRO_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("RETRO_RECONNECT_ATTEMPTS: want a positive integer, got %q", v)
		}
		c.ReconnectAttempts = n
	}
	if v := os.Getenv("RETRO_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RETRO_RECONNECT_DELAY: %w", err)
		}
		c.ReconnectDelay = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
