package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all watcher configuration.
type Config struct {
	DataDir       string `json:"data_dir"`
	SocketPath    string `json:"socket_path"`
	DBPath        string `json:"db_path"`
	LogPath       string `json:"log_path"`
	WebhookURL    string `json:"webhook_url"`
	HistoryPath   string `json:"history_path"`
	CardMapPath   string `json:"card_map_path"`
	OverridesPath string `json:"overrides_path"`
	InvertSeat    bool   `json:"invert_seat"`
	AnnouncePlays bool   `json:"announce_plays"`

	// PollIntervalMs controls how often the tailer checks for new data.
	PollIntervalMs int `json:"poll_interval_ms"`
}

// DefaultDataDir returns the default data directory (~/.historian).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".historian")
}

// defaultLogPath guesses the MTG Arena Player.log location for the
// current user. The game writes it under AppData on Windows; on other
// systems the path must be configured explicitly.
func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "AppData", "LocalLow",
		"Wizards Of The Coast", "MTGA", "Player.log")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:        dataDir,
		SocketPath:     filepath.Join(dataDir, "historian.sock"),
		DBPath:         filepath.Join(dataDir, "historian.db"),
		LogPath:        defaultLogPath(),
		HistoryPath:    filepath.Join(dataDir, "matches.json"),
		CardMapPath:    filepath.Join(dataDir, "card_map.json"),
		OverridesPath:  filepath.Join(dataDir, "manual_overrides.json"),
		AnnouncePlays:  true,
		PollIntervalMs: 100,
	}
}

// Load reads configuration from a JSON file, falling back to defaults
// for any unset fields, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine, use defaults + env.
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Re-derive paths if DataDir was overridden but the others were not.
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "historian.sock")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "historian.db")
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepath.Join(cfg.DataDir, "matches.json")
	}
	if cfg.CardMapPath == "" {
		cfg.CardMapPath = filepath.Join(cfg.DataDir, "card_map.json")
	}
	if cfg.OverridesPath == "" {
		cfg.OverridesPath = filepath.Join(cfg.DataDir, "manual_overrides.json")
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 100
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv applies the recognized environment overrides. Environment
// values win over the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MTGA_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v, ok := os.LookupEnv("INVERT_SEAT"); ok {
		cfg.InvertSeat = v == "1"
	}
	if v, ok := os.LookupEnv("ANNOUNCE_PLAYS"); ok {
		cfg.AnnouncePlays = v != "0"
	}
}

// PollInterval returns the tailer poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
