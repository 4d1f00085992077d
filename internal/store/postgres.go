package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/config"
	"github.com/cargpt/ads-crawler/internal/listing"
)

// DB is the slice of pgxpool.Pool the adapter uses. pgxmock satisfies
// it, which is how the adapter is unit tested.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PG is the PostgreSQL-backed Store.
type PG struct {
	db     DB
	logger *zap.Logger
}

// NewPG wraps an existing connection pool.
func NewPG(db DB, logger *zap.Logger) *PG {
	return &PG{db: db, logger: logger}
}

// Connect opens a pool for the configured DSN and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*PG, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pg := NewPG(pool, logger)
	if cfg.EnsureSchema {
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pg, nil
}

// SaveListing inserts the listing with only the columns it actually has
// values for. A URL conflict inserts nothing and returns ErrDuplicate.
func (s *PG) SaveListing(ctx context.Context, l *listing.Listing) (int64, error) {
	cols := []string{"url", "date_created", "ad_expires"}
	args := []any{l.URL, l.DateCreated, l.AdExpires}

	for _, f := range listing.InsertableFields() {
		var v any
		if f == listing.FieldTitle {
			v = l.Title
		} else {
			val, ok := l.Fields[f]
			if !ok {
				continue
			}
			v = val
		}
		cols = append(cols, string(f))
		args = append(args, textValue(v))
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO ads (%s) VALUES (%s) ON CONFLICT (url) DO NOTHING RETURNING id",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	var id int64
	err := s.db.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert listing %s: %w", l.URL, err)
	}
	return id, nil
}

// SaveImage records one gallery image. Re-inserting the same URL for the
// same listing is a no-op.
func (s *PG) SaveImage(ctx context.Context, listingID int64, img listing.Image) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO ad_images (ad_id, url, position) VALUES ($1, $2, $3) ON CONFLICT (ad_id, url) DO NOTHING",
		listingID, img.URL, img.Position,
	)
	if err != nil {
		return fmt.Errorf("insert image for listing %d: %w", listingID, err)
	}
	return nil
}

func (s *PG) ListingExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM ads WHERE url = $1)", url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check listing %s: %w", url, err)
	}
	return exists, nil
}

func (s *PG) CountListings(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM ads").Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// EnsureSchema creates the ads and ad_images tables if they are absent.
// Attribute columns are text because a value that fails its coercion is
// stored as the page showed it.
func (s *PG) EnsureSchema(ctx context.Context) error {
	attrCols := make([]string, 0, len(listing.InsertableFields()))
	for _, f := range listing.InsertableFields() {
		attrCols = append(attrCols, string(f)+" TEXT")
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ads (
			id BIGSERIAL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			date_created TIMESTAMPTZ NOT NULL,
			ad_expires TIMESTAMPTZ NOT NULL,
			%s,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, strings.Join(attrCols, ",\n\t\t\t")),
		`CREATE TABLE IF NOT EXISTS ad_images (
			id BIGSERIAL PRIMARY KEY,
			ad_id BIGINT NOT NULL REFERENCES ads (id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			position INT NOT NULL,
			UNIQUE (ad_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS ads_date_created_idx ON ads (date_created)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Debug("schema ensured")
	return nil
}

func (s *PG) Close() {
	s.db.Close()
}

// textValue renders a coerced value back to text for storage. Values
// that kept their raw string form pass through unchanged.
func textValue(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
