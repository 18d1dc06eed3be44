package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/config"
	collyfetcher "github.com/JakeFAU/hnx-restricted-tracker/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hnx-restricted-tracker/internal/fetcher/headless"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/financial"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/headless/detector"
	memorypublisher "github.com/JakeFAU/hnx-restricted-tracker/internal/publisher/memory"
	natspublisher "github.com/JakeFAU/hnx-restricted-tracker/internal/publisher/nats"
	gcppublisher "github.com/JakeFAU/hnx-restricted-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	gcsstorage "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/local"
	memoryStorage "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/memory"
)

// detailMarker must appear in a static detail page for it to be parsed
// without the browser.
const detailMarker = "<table"

// NewScraper builds the extraction pipeline: a browser session for the
// listing and a colly probe, promoted by the detector, for detail pages.
func NewScraper(cfg config.Config, clock scraper.Clock, logger *zap.Logger) (*scraper.Scraper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	heuristics, err := scraper.NewHeuristics(
		cfg.Scraper.Keywords,
		cfg.Scraper.TickerPattern,
		cfg.Scraper.DefaultReason,
		cfg.Scraper.FallbackReason,
		cfg.Scraper.FallbackNameFormat,
	)
	if err != nil {
		return nil, fmt.Errorf("scraper heuristics: %w", err)
	}

	var session scraper.Session = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		session = headlessfetcher.NewSession(headlessfetcher.Config{
			UserAgent:         cfg.Scraper.UserAgent,
			ExecPath:          cfg.Headless.ExecPath,
			WindowWidth:       cfg.Headless.WindowWidth,
			WindowHeight:      cfg.Headless.WindowHeight,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
			SelectorTimeout:   cfg.Headless.SelectorTimeout,
			SettleDelay:       cfg.Headless.SettleDelay,
		}, logger.Named("headless"))
		logger.Info("using headless session", zap.Duration("navigation_timeout", cfg.Headless.NavigationTimeout))
	} else {
		logger.Warn("headless browser disabled, listing refreshes will fail")
	}

	probe := newStaticFetcher(cfg)
	detect := detector.NewHeuristic(cfg.Scraper.PromotionThreshold, detailMarker)
	s, err := scraper.New(scraper.Config{
		TargetURL:         cfg.Scraper.TargetURL,
		DetailURLTemplate: cfg.Scraper.DetailURLTemplate,
		NavigationTimeout: cfg.Headless.NavigationTimeout,
		SelectorTimeout:   cfg.Headless.SelectorTimeout,
		DetailTimeout:     cfg.DetailFetchBudget(),
		TableSelector:     cfg.Scraper.TableSelector,
		Heuristics:        heuristics,
	}, session, clock, logger, scraper.WithProbe(probe, detect))
	if err != nil {
		return nil, fmt.Errorf("scraper init failed: %w", err)
	}
	return s, nil
}

// NewFinancial builds the report aggregator over the three providers.
func NewFinancial(cfg config.Config, clock financial.Clock, logger *zap.Logger) (*financial.Service, error) {
	fetcher := newStaticFetcher(cfg)
	svc, err := financial.NewService([]financial.Source{
		financial.NewVietStock(fetcher, clock, financial.VietStockURL),
		financial.NewCafeF(fetcher, clock, financial.CafeFURL),
		financial.NewFireAnt(fetcher, clock, financial.FireAntURL),
	}, cfg.Financial.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("financial service init failed: %w", err)
	}
	return svc, nil
}

func newStaticFetcher(cfg config.Config) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
	})
}

func (a *App) setupArchive(ctx context.Context) (refresh.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		blobs, err := gcsstorage.Dial(ctx, gcsstorage.Config{
			Bucket:       a.cfg.Archive.Bucket,
			CacheControl: a.cfg.Archive.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return blobs.Close() })
		a.logger.Info("using GCS snapshot archive", zap.String("bucket", a.cfg.Archive.Bucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local snapshot archive", zap.String("path", a.cfg.Archive.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory snapshot archive")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (refresh.Publisher, error) {
	switch a.cfg.Publisher.Backend {
	case config.BackendPubSub:
		pub, err := gcppublisher.Dial(ctx, a.cfg.Publisher.ProjectID, a.cfg.Publisher.Source)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.onClose("pubsub", func(context.Context) error { return pub.Close() })
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
		return pub, nil
	case config.BackendNATS:
		pub, err := natspublisher.New(natspublisher.Config{
			URL:           a.cfg.Publisher.NATSURL,
			SubjectPrefix: a.cfg.Publisher.SubjectPrefix,
			Service:       a.cfg.Publisher.Source,
		})
		if err != nil {
			return nil, fmt.Errorf("nats publisher init failed: %w", err)
		}
		a.onClose("nats", func(context.Context) error { return pub.Close() })
		a.logger.Info("NATS publisher initialized", zap.String("subject", pub.Subject(a.cfg.Publisher.Topic)))
		return pub, nil
	default:
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(a.cfg.Publisher.Source), nil
	}
}
