package geo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache persists geocoding results so a restart does not hit Nominatim again.
type Cache struct {
	db *sql.DB
}

// NewCache creates a new geo cache backed by SQLite
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get returns the stored location for a query.
func (c *Cache) Get(ctx context.Context, query string) (*Location, bool) {
	var loc Location
	err := c.db.QueryRowContext(ctx,
		`SELECT display_name, latitude, longitude FROM geocache WHERE query = ?`,
		query,
	).Scan(&loc.Name, &loc.Latitude, &loc.Longitude)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false
	case err != nil:
		log.Warn().Err(err).Str("query", query).Msg("Failed to read geocache")
		return nil, false
	}

	log.Debug().Str("query", query).Float64("lat", loc.Latitude).Float64("lon", loc.Longitude).Msg("Geocache hit")
	return &loc, true
}

// Put stores or replaces the location for a query.
func (c *Cache) Put(ctx context.Context, query string, loc *Location) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO geocache (query, display_name, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			display_name = excluded.display_name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			created_at = excluded.created_at
	`, query, loc.Name, loc.Latitude, loc.Longitude, time.Now().UTC().Unix())
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Failed to write geocache")
		return err
	}
	return nil
}
