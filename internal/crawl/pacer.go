package crawl

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/cargpt/ads-crawler/internal/config"
	"github.com/cargpt/ads-crawler/internal/metrics"
)

// Pacer spaces requests out so the crawl reads like a person browsing.
// A rate limiter sets the floor; a random jitter on top keeps the
// intervals irregular.
type Pacer struct {
	limiter *rate.Limiter
	rng     *rand.Rand

	linkMin, linkMax time.Duration
	pageMin, pageMax time.Duration
}

// NewPacer builds a pacer from the crawl configuration. A zero base RPS
// disables the rate-limiter floor.
func NewPacer(cfg config.CrawlConfig) *Pacer {
	limit := rate.Inf
	if cfg.BaseRPS > 0 {
		limit = rate.Limit(cfg.BaseRPS)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		linkMin: time.Duration(cfg.LinkDelayMinSec) * time.Second,
		linkMax: time.Duration(cfg.LinkDelayMaxSec) * time.Second,
		pageMin: time.Duration(cfg.PageDelayMinSec) * time.Second,
		pageMax: time.Duration(cfg.PageDelayMaxSec) * time.Second,
	}
}

// BeforeLink blocks until the next detail page may be fetched.
func (p *Pacer) BeforeLink(ctx context.Context) error {
	return p.pause(ctx, p.linkMin, p.linkMax)
}

// BeforePage blocks until the next results page may be fetched.
func (p *Pacer) BeforePage(ctx context.Context) error {
	return p.pause(ctx, p.pageMin, p.pageMax)
}

func (p *Pacer) pause(ctx context.Context, min, max time.Duration) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	delay := min
	if max > min {
		delay += time.Duration(p.rng.Int63n(int64(max - min + 1)))
	}
	if delay <= 0 {
		return nil
	}
	metrics.ObserveDelay(delay.Seconds())

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
