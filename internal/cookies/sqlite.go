package cookies

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS cookies (
	site       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore persists cookie jars in a local SQLite database, one row per
// site with the jar JSON-encoded.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the cookie database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie database: %w", err)
	}

	// SQLite handles one writer at a time; serialize access at the pool level.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cookies table: %w", err)
	}

	log.Info().Str("path", path).Msg("Cookie database opened")
	return &SQLiteStore{db: db}, nil
}

// GetCookies returns the stored jar for site, or types.ErrCookiesNotFound.
func (s *SQLiteStore) GetCookies(ctx context.Context, site string) ([]types.Cookie, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM cookies WHERE site = ?`, site,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrCookiesNotFound, site)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}

	var cookies []types.Cookie
	if err := json.Unmarshal([]byte(data), &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode stored cookies for %s: %w", site, err)
	}
	return cookies, nil
}

// SetCookies replaces the stored jar for site.
func (s *SQLiteStore) SetCookies(ctx context.Context, site string, cookies []types.Cookie) error {
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cookies (site, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(site) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		site, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cookies: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
