package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getenvSeconds(key string, def int) time.Duration {
	return time.Duration(getenvInt(key, def)) * time.Second
}

// LoadConfig reads the environment, after loading .env if there is one.
// Only the node address and password are required here; commands that talk
// to Discord check the token themselves.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LavalinkAddress:       strings.TrimRight(os.Getenv("LAVALINK_ADDRESS"), "/"),
		LavalinkPassword:      os.Getenv("LAVALINK_PASSWORD"),
		LavalinkSessionID:     os.Getenv("LAVALINK_SESSION_ID"),
		ResumeTimeout:         getenvSeconds("LAVALINK_RESUME_TIMEOUT", 60),
		RESTTimeout:           getenvSeconds("REST_TIMEOUT", 10),
		ReconnectInterval:     getenvSeconds("RECONNECT_INTERVAL", 5),
		DiscordToken:          os.Getenv("DISCORD_TOKEN"),
		ApplicationID:         os.Getenv("APPLICATION_ID"),
		BotStatus:             getenv("BOT_STATUS", "online"),
		BotActivity:           getenv("BOT_ACTIVITY", "music"),
		DataDir:               getenv("DATA_DIR", "./data"),
		DecodeCacheLimit:      getenvInt("DECODE_CACHE_LIMIT", 5000),
		SpotifyClientID:       os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret:   os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DefaultSearchProvider: getenv("DEFAULT_SEARCH_PROVIDER", "ytsearch"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		RegisterCommandsOnBot: getenv("REGISTER_COMMANDS_ON_BOT", "false") == "true",
	}

	if cfg.LavalinkAddress == "" {
		return nil, ErrConfig("LAVALINK_ADDRESS required")
	}
	if !strings.HasPrefix(cfg.LavalinkAddress, "http://") && !strings.HasPrefix(cfg.LavalinkAddress, "https://") {
		return nil, ErrConfig("LAVALINK_ADDRESS must start with http:// or https://")
	}
	if cfg.LavalinkPassword == "" {
		return nil, ErrConfig("LAVALINK_PASSWORD required")
	}
	if cfg.ResumeTimeout < 0 {
		cfg.ResumeTimeout = 0
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	return cfg, nil
}

// RequireDiscord checks the settings only the bot needs.
func (c *Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return ErrConfig("DISCORD_TOKEN required")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
