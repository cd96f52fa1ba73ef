package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	)
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, default_volume, default_loop, auto_announce_next_song,
	       default_queue_page_size, search_provider, sponsorblock_categories
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var announce int
	if err := row.Scan(
		&s.GuildID,
		&s.DefaultVolume,
		&s.DefaultLoop,
		&announce,
		&s.DefaultQueuePageSize,
		&s.SearchProvider,
		&s.SponsorBlockCategories,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	s.AutoAnnounceNext = announce != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  default_volume=?,
		  default_loop=?,
		  auto_announce_next_song=?,
		  default_queue_page_size=?,
		  search_provider=?,
		  sponsorblock_categories=?
		WHERE guild_id=?`,
		s.DefaultVolume, s.DefaultLoop, boolToInt(s.AutoAnnounceNext),
		s.DefaultQueuePageSize, s.SearchProvider, s.SponsorBlockCategories,
		s.GuildID,
	)
	return err
}

func (r *Repo) AddFavorite(ctx context.Context, f *Favorite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites(guild_id, author_id, name, query) VALUES (?,?,?,?)`,
		f.GuildID, f.Author, f.Name, f.Query,
	)
	return err
}

func (r *Repo) RemoveFavorite(ctx context.Context, guild, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE guild_id=? AND name=?`, guild, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) FindFavorite(ctx context.Context, guild, name string) (*Favorite, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, guild_id, author_id, name, query FROM favorites WHERE guild_id=? AND name=?`, guild, name)
	var f Favorite
	if err := row.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repo) ListFavorites(ctx context.Context, guild string) ([]Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, guild_id, author_id, name, query FROM favorites WHERE guild_id=? ORDER BY name ASC`, guild)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveQueue stores payload as the guild's queue snapshot, replacing any
// previous one.
func (r *Repo) SaveQueue(ctx context.Context, guild string, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO queue_snapshots(guild_id, payload, saved_at) VALUES (?,?,?)`,
		guild, string(payload), time.Now().Unix(),
	)
	return err
}

// LoadQueue returns sql.ErrNoRows when the guild has no snapshot.
func (r *Repo) LoadQueue(ctx context.Context, guild string) (*QueueSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT guild_id, payload, saved_at FROM queue_snapshots WHERE guild_id=?`, guild)
	var s QueueSnapshot
	var payload string
	if err := row.Scan(&s.GuildID, &payload, &s.SavedAt); err != nil {
		return nil, err
	}
	s.Payload = []byte(payload)
	return &s, nil
}

func (r *Repo) DeleteQueue(ctx context.Context, guild string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue_snapshots WHERE guild_id=?`, guild)
	return err
}

// SaveSessionID remembers the session id a node handed out so a restart can
// resume it.
func (r *Repo) SaveSessionID(ctx context.Context, address, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO node_sessions(address, session_id, updated_at) VALUES (?,?,?)`,
		address, sessionID, time.Now().Unix(),
	)
	return err
}

// SessionID returns "" when nothing is stored for address.
func (r *Repo) SessionID(ctx context.Context, address string) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT session_id FROM node_sessions WHERE address=?`, address)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (r *Repo) CachePut(ctx context.Context, hash string, payload []byte) error {
	now := time.Now().UnixNano()
	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO track_cache(hash,payload,accessed_at,created_at) VALUES (?,?,?,COALESCE((SELECT created_at FROM track_cache WHERE hash=?),?))`,
		hash, payload, now, hash, now)
	return err
}

// CacheGet returns sql.ErrNoRows on a miss and bumps the access time on a hit.
func (r *Repo) CacheGet(ctx context.Context, hash string) ([]byte, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM track_cache WHERE hash=?`, hash)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE track_cache SET accessed_at=? WHERE hash=?`, time.Now().UnixNano(), hash)
	return payload, err
}

func (r *Repo) CacheRemove(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM track_cache WHERE hash=?`, hash)
	return err
}

func (r *Repo) CacheCount(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_cache`)
	var v int
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// CacheTrim drops the least recently used rows until at most limit remain.
func (r *Repo) CacheTrim(ctx context.Context, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM track_cache WHERE hash IN (
		  SELECT hash FROM track_cache ORDER BY accessed_at ASC
		  LIMIT MAX((SELECT COUNT(*) FROM track_cache) - ?, 0)
		)`, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
