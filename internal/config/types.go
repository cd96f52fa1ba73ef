package config

import "time"

type Config struct {
	LavalinkAddress  string
	LavalinkPassword string
	// LavalinkSessionID is a session to resume on first connect; the one
	// stored in the database wins when present.
	LavalinkSessionID string
	ResumeTimeout     time.Duration
	RESTTimeout       time.Duration
	ReconnectInterval time.Duration

	DiscordToken  string
	ApplicationID string
	BotStatus     string // online/dnd/idle
	BotActivity   string

	DataDir          string
	DecodeCacheLimit int

	SpotifyClientID       string
	SpotifyClientSecret   string
	DefaultSearchProvider string

	LogLevel              string
	RegisterCommandsOnBot bool
}
