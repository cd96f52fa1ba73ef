package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Settings struct {
	GuildID              string
	DefaultVolume        int
	DefaultLoop          string
	AutoAnnounceNext     bool
	DefaultQueuePageSize int
	// SearchProvider overrides the global default when set.
	SearchProvider string
	// SponsorBlockCategories is a comma separated list; empty disables it.
	SponsorBlockCategories string
}

type Favorite struct {
	ID      int64
	GuildID string
	Author  string
	Name    string
	Query   string
}

type QueueSnapshot struct {
	GuildID string
	Payload []byte
	SavedAt int64
}
