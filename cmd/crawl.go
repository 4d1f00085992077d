package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/browser"
	"github.com/cargpt/ads-crawler/internal/checkpoint"
	"github.com/cargpt/ads-crawler/internal/crawl"
	"github.com/cargpt/ads-crawler/internal/identity"
	"github.com/cargpt/ads-crawler/internal/metrics"
	"github.com/cargpt/ads-crawler/internal/store"
)

// newCrawlCmd creates the 'crawl' subcommand, which performs one full
// crawl run and exits.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl over the configured listing site",
		Long: `Walks the configured results pages newest-first, visits every listing
not seen by a previous run, and persists the normalized records. The run
stops at the page budget, at the previous run's checkpoint, or at the
last page, whichever comes first.`,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger = logger.With(zap.String("run_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	if cfg.Ops.Enabled {
		opsSrv := metrics.NewServer(cfg.Ops.Port)
		go func() {
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			opsSrv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	var st store.Store
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, listings will be discarded")
		st = store.NewNoOp(logger)
	} else {
		st, err = store.Connect(ctx, cfg.DB, logger)
		if err != nil {
			return err
		}
	}
	defer st.Close()

	orchestrator := crawl.New(crawl.Params{
		Site:        cfg.Site,
		Crawl:       cfg.Crawl,
		Identity:    identity.NewManager(cfg.Identity, logger),
		NewSession:  browser.NewFactory(cfg.Browser, logger),
		Store:       st,
		Checkpoints: checkpoint.NewFileStore(cfg.Checkpoint.Path),
		Logger:      logger,
	})

	report, err := orchestrator.Run(ctx)
	if err != nil {
		logger.Error("crawl aborted",
			zap.Int("saved", report.Saved),
			zap.Error(err),
		)
		return err
	}

	total, countErr := st.CountListings(context.Background())
	if countErr == nil {
		logger.Info("stored listings", zap.Int64("total", total))
	}
	return nil
}
