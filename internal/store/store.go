// Package store persists crawled listings and their gallery images to
// PostgreSQL.
package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/listing"
)

// ErrDuplicate is returned by SaveListing when the listing URL is
// already present. The caller treats it as a skip, not a failure.
var ErrDuplicate = errors.New("store: listing already exists")

// Store is the persistence surface the orchestrator depends on.
type Store interface {
	// SaveListing inserts one listing and returns its database id.
	// Inserting an already-stored URL returns ErrDuplicate.
	SaveListing(ctx context.Context, l *listing.Listing) (int64, error)
	// SaveImage records one gallery image for a stored listing.
	SaveImage(ctx context.Context, listingID int64, img listing.Image) error
	// ListingExists reports whether a listing URL is already stored.
	ListingExists(ctx context.Context, url string) (bool, error)
	// CountListings returns the number of stored listings.
	CountListings(ctx context.Context) (int64, error)
	Close()
}

// NoOp discards everything it is given. It stands in for a real store
// in dry runs and in tests that only exercise crawl control flow.
type NoOp struct {
	logger *zap.Logger
	nextID int64
}

// NewNoOp creates a discarding store.
func NewNoOp(logger *zap.Logger) *NoOp {
	return &NoOp{logger: logger}
}

func (s *NoOp) SaveListing(_ context.Context, l *listing.Listing) (int64, error) {
	s.nextID++
	s.logger.Debug("discarding listing", zap.String("url", l.URL))
	return s.nextID, nil
}

func (s *NoOp) SaveImage(_ context.Context, _ int64, _ listing.Image) error {
	return nil
}

func (s *NoOp) ListingExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *NoOp) CountListings(_ context.Context) (int64, error) {
	return s.nextID, nil
}

func (s *NoOp) Close() {}
