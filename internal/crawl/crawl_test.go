package crawl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/browser"
	"github.com/cargpt/ads-crawler/internal/config"
	"github.com/cargpt/ads-crawler/internal/listing"
	"github.com/cargpt/ads-crawler/internal/metrics"
	"github.com/cargpt/ads-crawler/internal/store"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// fakeSession serves canned HTML per URL.
type fakeSession struct {
	pages   map[string]string
	navErrs map[string]error
	current string
	closed  bool
}

func (s *fakeSession) Goto(_ context.Context, url string) error {
	if err := s.navErrs[url]; err != nil {
		return err
	}
	if _, ok := s.pages[url]; !ok {
		return fmt.Errorf("%w: %s", browser.ErrNavigation, url)
	}
	s.current = url
	return nil
}

func (s *fakeSession) HTML(_ context.Context) (string, error) {
	return s.pages[s.current], nil
}

func (s *fakeSession) IsBlocked(_ context.Context) (bool, error) {
	return browser.Blocked(s.pages[s.current]), nil
}

func (s *fakeSession) Close() { s.closed = true }

type fakeIdentity struct {
	rotations int
	closed    bool
}

func (f *fakeIdentity) EnsureActive(context.Context) error { return nil }
func (f *fakeIdentity) Rotate(context.Context) error       { f.rotations++; return nil }
func (f *fakeIdentity) SocksAddr() string                  { return "127.0.0.1:9149" }
func (f *fakeIdentity) Close() error                       { f.closed = true; return nil }

type fakeCheckpoints struct {
	loaded time.Time
	stored []time.Time
}

func (f *fakeCheckpoints) Load() (time.Time, error) { return f.loaded, nil }
func (f *fakeCheckpoints) Store(ts time.Time) error { f.stored = append(f.stored, ts); return nil }

type fakeStore struct {
	saved      []*listing.Listing
	images     map[int64][]listing.Image
	duplicates map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{images: make(map[int64][]listing.Image), duplicates: make(map[string]bool)}
}

func (f *fakeStore) SaveListing(_ context.Context, l *listing.Listing) (int64, error) {
	if f.duplicates[l.URL] {
		return 0, store.ErrDuplicate
	}
	f.saved = append(f.saved, l)
	return int64(len(f.saved)), nil
}

func (f *fakeStore) SaveImage(_ context.Context, id int64, img listing.Image) error {
	f.images[id] = append(f.images[id], img)
	return nil
}

func (f *fakeStore) ListingExists(_ context.Context, url string) (bool, error) {
	return f.duplicates[url], nil
}

func (f *fakeStore) CountListings(_ context.Context) (int64, error) {
	return int64(len(f.saved)), nil
}

func (f *fakeStore) Close() {}

const (
	baseURL = "https://www.njuskalo.hr/auti"
	link1   = "https://www.njuskalo.hr/auti/bmw-320d-oglas-1"
	link2   = "https://www.njuskalo.hr/auti/audi-a4-oglas-2"
	link3   = "https://www.njuskalo.hr/auti/opel-astra-oglas-3"
)

func indexHTML(nextPage bool, links ...string) string {
	items := ""
	for _, l := range links {
		items += fmt.Sprintf(
			`<li class="EntityList-item"><article><h3 class="entity-title"><a href="%s">oglas</a></h3></article></li>`, l)
	}
	pagination := ""
	if nextPage {
		pagination = `<button class="Pagination-link js-veza-stranica" data-page="2">Sljedeća</button>`
	}
	return fmt.Sprintf(
		`<html><body><div class="EntityList--ListItemRegularAd"><ul class="EntityList-items">%s</ul></div>%s</body></html>`,
		items, pagination)
}

func detailHTML(title, published, duration string) string {
	return fmt.Sprintf(`
<html><body>
<h1 class="ClassifiedDetailSummary-title">%s</h1>
<dd class="ClassifiedDetailSummary-priceDomestic">10.000 &euro;</dd>
<span class="ClassifiedDetailSystemDetails-listData">%s</span>
<span class="ClassifiedDetailSystemDetails-listData">%s</span>
<div class="ClassifiedDetailGallery"><img data-src="https://img.njuskalo.hr/a.jpg"></div>
</body></html>`, title, published, duration)
}

func testConfig() config.CrawlConfig {
	return config.CrawlConfig{PageBudget: 5, ExpiryDays: 180}
}

func newTestOrchestrator(pages map[string]string, st store.Store, cp *fakeCheckpoints) (*Orchestrator, *fakeIdentity) {
	id := &fakeIdentity{}
	factory := func(string) (browser.Session, error) {
		return &fakeSession{pages: pages}, nil
	}
	o := New(Params{
		Site:        config.SiteConfig{BaseURL: baseURL, PageParam: "page"},
		Crawl:       testConfig(),
		Identity:    id,
		NewSession:  factory,
		Store:       st,
		Checkpoints: cp,
		Logger:      zap.NewNop(),
	})
	return o, id
}

func TestRunSavesAllFreshListings(t *testing.T) {
	pages := map[string]string{
		baseURL: indexHTML(false, link1, link2),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "26 dana i 21 sat"),
		link2:   detailHTML("Audi A4", "14.08.2025. u 15:00", "5 dana"),
	}
	st := newFakeStore()
	cp := &fakeCheckpoints{}
	o, _ := newTestOrchestrator(pages, st, cp)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Saved)
	assert.Equal(t, 1, report.PagesVisited)
	assert.Equal(t, "no-next-page", report.Reason)
	require.Len(t, st.saved, 2)
	assert.Equal(t, link1, st.saved[0].URL)
	assert.Equal(t, link2, st.saved[1].URL)

	// Checkpoint is written exactly once, with the first saved listing's
	// publication timestamp.
	require.Len(t, cp.stored, 1)
	assert.Equal(t, time.Date(2025, 8, 14, 16, 40, 0, 0, time.UTC), cp.stored[0])

	// Gallery images follow their listing.
	assert.Len(t, st.images[1], 1)
}

func TestRunIsolatesFailingListing(t *testing.T) {
	pages := map[string]string{
		baseURL: indexHTML(false, link1, link2, link3),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "26 dana i 21 sat"),
		link2:   `<html><body><h1 class="ClassifiedDetailSummary-title">Slomljen oglas</h1></body></html>`,
		link3:   detailHTML("Opel Astra", "14.08.2025. u 14:00", "5 dana"),
	}
	st := newFakeStore()
	o, _ := newTestOrchestrator(pages, st, &fakeCheckpoints{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Saved)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, st.saved, 2)
	assert.Equal(t, link1, st.saved[0].URL)
	assert.Equal(t, link3, st.saved[1].URL)
}

func TestRunStopsWhenCaughtUp(t *testing.T) {
	pages := map[string]string{
		baseURL: indexHTML(true, link1, link2, link3),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "26 dana i 21 sat"),
		link2:   detailHTML("Audi A4", "13.08.2025. u 12:00", "5 dana"),
		link3:   detailHTML("Opel Astra", "12.08.2025. u 09:00", "5 dana"),
	}
	st := newFakeStore()
	cp := &fakeCheckpoints{loaded: time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)}
	o, _ := newTestOrchestrator(pages, st, cp)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "caught-up", report.Reason)
	assert.Equal(t, 1, report.Saved)
	require.Len(t, st.saved, 1)
	assert.Equal(t, link1, st.saved[0].URL)
}

func TestRunHonorsPageBudget(t *testing.T) {
	pages := map[string]string{
		baseURL:            indexHTML(true, link1),
		baseURL + "?page=2": indexHTML(true, link2),
		link1:              detailHTML("BMW 320d", "14.08.2025. u 16:40", "5 dana"),
		link2:              detailHTML("Audi A4", "14.08.2025. u 15:00", "5 dana"),
	}
	st := newFakeStore()
	id := &fakeIdentity{}
	o := New(Params{
		Site:        config.SiteConfig{BaseURL: baseURL, PageParam: "page"},
		Crawl:       config.CrawlConfig{PageBudget: 2, ExpiryDays: 180},
		Identity:    id,
		NewSession:  func(string) (browser.Session, error) { return &fakeSession{pages: pages}, nil },
		Store:       st,
		Checkpoints: &fakeCheckpoints{},
		Logger:      zap.NewNop(),
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "budget", report.Reason)
	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, 2, report.Saved)
}

func TestRunRotatesIdentityOnBlock(t *testing.T) {
	blockedPages := map[string]string{
		baseURL: `<html><body>Please solve this CAPTCHA</body></html>`,
	}
	cleanPages := map[string]string{
		baseURL: indexHTML(false, link1),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "5 dana"),
	}

	id := &fakeIdentity{}
	opened := 0
	factory := func(string) (browser.Session, error) {
		opened++
		if opened == 1 {
			return &fakeSession{pages: blockedPages}, nil
		}
		return &fakeSession{pages: cleanPages}, nil
	}

	st := newFakeStore()
	o := New(Params{
		Site:        config.SiteConfig{BaseURL: baseURL, PageParam: "page"},
		Crawl:       testConfig(),
		Identity:    id,
		NewSession:  factory,
		Store:       st,
		Checkpoints: &fakeCheckpoints{},
		Logger:      zap.NewNop(),
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, id.rotations)
	assert.Equal(t, 1, report.Saved)
}

func TestRunDuplicateSkipsCheckpoint(t *testing.T) {
	pages := map[string]string{
		baseURL: indexHTML(false, link1),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "5 dana"),
	}
	st := newFakeStore()
	st.duplicates[link1] = true
	cp := &fakeCheckpoints{}
	o, _ := newTestOrchestrator(pages, st, cp)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Duplicates)
	assert.Zero(t, report.Saved)
	assert.Empty(t, cp.stored)
}

func TestRunDefaultsExpiryForUntilSold(t *testing.T) {
	pages := map[string]string{
		baseURL: indexHTML(false, link1),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "do prodaje"),
	}
	st := newFakeStore()
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

	o := New(Params{
		Site:        config.SiteConfig{BaseURL: baseURL, PageParam: "page"},
		Crawl:       testConfig(),
		Identity:    &fakeIdentity{},
		NewSession:  func(string) (browser.Session, error) { return &fakeSession{pages: pages}, nil },
		Store:       st,
		Checkpoints: &fakeCheckpoints{},
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return now },
	})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, st.saved, 1)
	assert.Equal(t, now.Add(180*24*time.Hour), st.saved[0].AdExpires)
}

func TestRunSkipsPersistentlyBlockedResultsPage(t *testing.T) {
	// Page one serves an interstitial through both the original and the
	// rotated session; page two is clean and holds one listing.
	pages := map[string]string{
		baseURL:             `<html><body>Please solve this CAPTCHA</body></html>`,
		baseURL + "?page=2": indexHTML(false, link1),
		link1:               detailHTML("BMW 320d", "14.08.2025. u 16:40", "5 dana"),
	}
	st := newFakeStore()
	cp := &fakeCheckpoints{}
	o, id := newTestOrchestrator(pages, st, cp)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, id.rotations)
	assert.Equal(t, 1, report.PagesVisited)
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, "no-next-page", report.Reason)
	require.Len(t, st.saved, 1)
	assert.Equal(t, link1, st.saved[0].URL)
}

func TestRunUnrecoverableSessionIsFatal(t *testing.T) {
	pages := map[string]string{
		baseURL: `<html><body>Access Denied</body></html>`,
	}
	st := newFakeStore()
	id := &fakeIdentity{}
	opened := 0
	factory := func(string) (browser.Session, error) {
		opened++
		if opened > 1 {
			return nil, errors.New("no browser available")
		}
		return &fakeSession{pages: pages}, nil
	}
	o := New(Params{
		Site:        config.SiteConfig{BaseURL: baseURL, PageParam: "page"},
		Crawl:       testConfig(),
		Identity:    id,
		NewSession:  factory,
		Store:       st,
		Checkpoints: &fakeCheckpoints{},
		Logger:      zap.NewNop(),
	})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, id.closed)
}

func TestRunClosesIdentityWhenSessionOpenFails(t *testing.T) {
	id := &fakeIdentity{}
	o := New(Params{
		Site:        config.SiteConfig{BaseURL: baseURL, PageParam: "page"},
		Crawl:       testConfig(),
		Identity:    id,
		NewSession:  func(string) (browser.Session, error) { return nil, errors.New("chrome not found") },
		Store:       newFakeStore(),
		Checkpoints: &fakeCheckpoints{},
		Logger:      zap.NewNop(),
	})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, id.closed, "a launched tor daemon must not outlive the run")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	pages := map[string]string{
		baseURL: indexHTML(false, link1),
		link1:   detailHTML("BMW 320d", "14.08.2025. u 16:40", "5 dana"),
	}
	st := newFakeStore()
	o, _ := newTestOrchestrator(pages, st, &fakeCheckpoints{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
