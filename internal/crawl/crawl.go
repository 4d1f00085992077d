// Package crawl runs the crawl itself: walking the results pages,
// visiting every fresh listing, and stopping when the run has caught up
// with what a previous run already stored.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/browser"
	"github.com/cargpt/ads-crawler/internal/config"
	"github.com/cargpt/ads-crawler/internal/listing"
	"github.com/cargpt/ads-crawler/internal/metrics"
	"github.com/cargpt/ads-crawler/internal/scrape"
	"github.com/cargpt/ads-crawler/internal/store"
)

// ErrBlocked means the site kept serving interstitials even after an
// identity rotation.
var ErrBlocked = errors.New("crawl: blocked after identity rotation")

// errSession means the identity rotation or the browser rebuild itself
// failed. Unlike a failing page, the run cannot continue without them.
var errSession = errors.New("crawl: session unrecoverable")

// Identity is the slice of the Tor manager the orchestrator needs.
type Identity interface {
	EnsureActive(ctx context.Context) error
	Rotate(ctx context.Context) error
	SocksAddr() string
	Close() error
}

// Checkpoints persists the resume marker between runs.
type Checkpoints interface {
	Load() (time.Time, error)
	Store(ts time.Time) error
}

// Report summarizes one finished run.
type Report struct {
	PagesVisited int
	Saved        int
	Duplicates   int
	Failed       int
	// Reason is why the run stopped: "budget", "caught-up" or "no-next-page".
	Reason string
}

// Params collects everything an Orchestrator depends on.
type Params struct {
	Site        config.SiteConfig
	Crawl       config.CrawlConfig
	Identity    Identity
	NewSession  browser.Factory
	Store       store.Store
	Checkpoints Checkpoints
	Logger      *zap.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Orchestrator drives one crawl run end to end. It owns the browser
// session and serializes every request through it.
type Orchestrator struct {
	site        config.SiteConfig
	cfg         config.CrawlConfig
	identity    Identity
	newSession  browser.Factory
	store       store.Store
	checkpoints Checkpoints
	pacer       *Pacer
	logger      *zap.Logger
	now         func() time.Time

	session           browser.Session
	prevCheckpoint    time.Time
	checkpointWritten bool
}

// New builds an orchestrator. Run may be called once per instance.
func New(p Params) *Orchestrator {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		site:        p.Site,
		cfg:         p.Crawl,
		identity:    p.Identity,
		newSession:  p.NewSession,
		store:       p.Store,
		checkpoints: p.Checkpoints,
		pacer:       NewPacer(p.Crawl),
		logger:      p.Logger,
		now:         now,
	}
}

// Run walks results pages newest-first until the page budget is spent,
// the run catches up with the previous checkpoint, or the site runs out
// of pages. A cancelled context stops the run after the current unit of
// work; whatever was saved stays saved.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	var report Report

	prev, err := o.checkpoints.Load()
	if err != nil {
		return report, err
	}
	o.prevCheckpoint = prev

	if err := o.identity.EnsureActive(ctx); err != nil {
		return report, err
	}
	defer o.identity.Close() //nolint:errcheck

	session, err := o.newSession(o.identity.SocksAddr())
	if err != nil {
		return report, fmt.Errorf("open browser session: %w", err)
	}
	o.session = session
	defer func() {
		o.session.Close()
	}()

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if page > o.cfg.PageBudget {
			report.Reason = "budget"
			break
		}
		if page > 1 {
			if err := o.pacer.BeforePage(ctx); err != nil {
				return report, err
			}
		}

		pageURL := scrape.IndexURL(o.site.BaseURL, o.site.PageParam, page)
		o.logger.Info("fetching results page", zap.Int("page", page), zap.String("url", pageURL))

		doc, err := o.fetchDoc(ctx, pageURL)
		if err != nil {
			if errors.Is(err, errSession) || ctx.Err() != nil {
				return report, fmt.Errorf("results page %d: %w", page, err)
			}
			// A page that keeps serving interstitials or fails to load
			// is skipped like a failing listing; later pages may be fine.
			o.logger.Warn("results page fetch failed, moving on",
				zap.Int("page", page), zap.Error(err))
			continue
		}
		report.PagesVisited++
		metrics.ObservePage()

		caughtUp, err := o.walkLinks(ctx, scrape.IndexLinks(doc, pageURL), &report)
		if err != nil {
			return report, err
		}
		if caughtUp {
			report.Reason = "caught-up"
			break
		}
		if !scrape.HasNextPage(doc) {
			report.Reason = "no-next-page"
			break
		}
	}

	o.logger.Info("crawl finished",
		zap.String("reason", report.Reason),
		zap.Int("pages", report.PagesVisited),
		zap.Int("saved", report.Saved),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// walkLinks visits every listing on one results page. A failing listing
// is logged and skipped; only a cancelled context or an unrecoverable
// session stops the walk. The caught-up return means the page reached
// listings an earlier run already stored.
func (o *Orchestrator) walkLinks(ctx context.Context, links []string, report *Report) (bool, error) {
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := o.pacer.BeforeLink(ctx); err != nil {
			return false, err
		}

		doc, err := o.fetchDoc(ctx, link)
		if err != nil {
			if errors.Is(err, errSession) {
				return false, err
			}
			// A listing that stays blocked after a rotation is skipped
			// like any other failing listing.
			o.logger.Warn("listing fetch failed", zap.String("url", link), zap.Error(err))
			report.Failed++
			metrics.ObserveListing("failed")
			continue
		}

		rec, err := scrape.Detail(doc, link, o.logger)
		if err != nil {
			o.logger.Warn("listing extraction failed", zap.String("url", link), zap.Error(err))
			report.Failed++
			metrics.ObserveExtractionFailure()
			metrics.ObserveListing("failed")
			continue
		}

		if !o.prevCheckpoint.IsZero() && !rec.DateCreated.After(o.prevCheckpoint) {
			o.logger.Info("caught up with previous run",
				zap.String("url", link),
				zap.Time("published", rec.DateCreated),
				zap.Time("checkpoint", o.prevCheckpoint),
			)
			return true, nil
		}

		o.saveListing(ctx, rec, doc, report)
	}
	return false, nil
}

func (o *Orchestrator) saveListing(ctx context.Context, rec *listing.Listing, doc *goquery.Document, report *Report) {
	if rec.AdExpires.IsZero() {
		rec.AdExpires = o.now().Add(time.Duration(o.cfg.ExpiryDays) * 24 * time.Hour)
	}

	id, err := o.store.SaveListing(ctx, rec)
	if errors.Is(err, store.ErrDuplicate) {
		o.logger.Debug("listing already stored", zap.String("url", rec.URL))
		report.Duplicates++
		metrics.ObserveListing("duplicate")
		return
	}
	if err != nil {
		o.logger.Error("listing save failed", zap.String("url", rec.URL), zap.Error(err))
		report.Failed++
		metrics.ObserveListing("failed")
		return
	}

	report.Saved++
	metrics.ObserveListing("saved")

	if !o.checkpointWritten {
		if err := o.checkpoints.Store(rec.DateCreated); err != nil {
			o.logger.Error("checkpoint write failed", zap.Error(err))
		}
		o.checkpointWritten = true
	}

	for _, img := range scrape.ImageURLs(doc) {
		if err := o.store.SaveImage(ctx, id, img); err != nil {
			o.logger.Warn("image save failed",
				zap.String("listing", rec.URL),
				zap.String("image", img.URL),
				zap.Error(err),
			)
		}
	}
}

// fetchDoc navigates to a URL and parses the rendered page. A failed
// navigation or a block page triggers one identity rotation with a
// fresh browser, then one retry.
func (o *Orchestrator) fetchDoc(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := o.refreshIdentity(ctx); err != nil {
				return nil, err
			}
		}

		if err := o.session.Goto(ctx, url); err != nil {
			lastErr = err
			continue
		}

		blocked, err := o.session.IsBlocked(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if blocked {
			o.logger.Warn("block page detected", zap.String("url", url))
			metrics.ObserveBlock()
			lastErr = ErrBlocked
			continue
		}

		html, err := o.session.HTML(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", url, err)
		}
		return doc, nil
	}
	return nil, lastErr
}

func (o *Orchestrator) refreshIdentity(ctx context.Context) error {
	o.session.Close()
	if err := o.identity.Rotate(ctx); err != nil {
		return fmt.Errorf("%w: rotate identity: %v", errSession, err)
	}
	metrics.ObserveIdentityRotation()

	session, err := o.newSession(o.identity.SocksAddr())
	if err != nil {
		return fmt.Errorf("%w: reopen browser session: %v", errSession, err)
	}
	o.session = session
	return nil
}
