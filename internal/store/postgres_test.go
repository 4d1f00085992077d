package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/listing"
)

func newMockStore(t *testing.T) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPG(mock, zap.NewNop()), mock
}

func sampleListing() *listing.Listing {
	return &listing.Listing{
		URL:         "https://www.njuskalo.hr/auti/bmw-320d-oglas-123",
		Title:       "BMW 320d",
		DateCreated: time.Date(2025, 8, 14, 16, 40, 0, 0, time.UTC),
		AdExpires:   time.Date(2025, 9, 10, 17, 0, 0, 0, time.UTC),
		Fields: map[listing.Field]any{
			listing.FieldPrice: 25000.5,
			listing.FieldMake:  "BMW",
		},
	}
}

func TestSaveListingInsertsPresentColumnsOnly(t *testing.T) {
	pg, mock := newMockStore(t)
	l := sampleListing()

	query := "INSERT INTO ads (url, date_created, ad_expires, title, price, make) " +
		"VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (url) DO NOTHING RETURNING id"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(l.URL, l.DateCreated, l.AdExpires, "BMW 320d", "25000.5", "BMW").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := pg.SaveListing(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveListingDuplicateURL(t *testing.T) {
	pg, mock := newMockStore(t)
	l := sampleListing()

	mock.ExpectQuery("INSERT INTO ads").
		WithArgs(l.URL, l.DateCreated, l.AdExpires, "BMW 320d", "25000.5", "BMW").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := pg.SaveListing(context.Background(), l)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveImage(t *testing.T) {
	pg, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO ad_images (ad_id, url, position) VALUES ($1, $2, $3) ON CONFLICT (ad_id, url) DO NOTHING",
	)).
		WithArgs(int64(42), "https://img.example/1.jpg", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := pg.SaveImage(context.Background(), 42, listing.Image{URL: "https://img.example/1.jpg", Position: 0})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingExists(t *testing.T) {
	pg, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM ads WHERE url = $1)")).
		WithArgs("https://www.njuskalo.hr/auti/x").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := pg.ListingExists(context.Background(), "https://www.njuskalo.hr/auti/x")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountListings(t *testing.T) {
	pg, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM ads")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := pg.CountListings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoOpStoreCounts(t *testing.T) {
	s := NewNoOp(zap.NewNop())

	id, err := s.SaveListing(context.Background(), sampleListing())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	n, err := s.CountListings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
