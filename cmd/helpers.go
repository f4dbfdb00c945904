package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
	"github.com/ridgeline-data/alpine-ledger/pkg/fetch"
	"github.com/ridgeline-data/alpine-ledger/pkg/geocode"
	"github.com/ridgeline-data/alpine-ledger/pkg/refine"
)

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return st, nil
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initFetcher builds the robots-compliant article fetcher from config.
func initFetcher() fetch.Fetcher {
	opts := []fetch.Option{
		fetch.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second}),
	}
	if cfg.Fetch.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(cfg.Fetch.UserAgent))
	}
	if cfg.Fetch.RatePerSecond > 0 {
		opts = append(opts, fetch.WithRateLimit(cfg.Fetch.RatePerSecond))
	}
	if cfg.Fetch.MaxBodyBytes > 0 {
		opts = append(opts, fetch.WithMaxBody(cfg.Fetch.MaxBodyBytes))
	}
	return fetch.New(opts...)
}

// initRefiner builds the refinement provider, or the disabled refiner when
// refinement is off.
func initRefiner() (refine.Refiner, error) {
	if !cfg.Refine.Enabled {
		return refine.Disabled{}, nil
	}
	return refine.New(refine.Config{
		Provider:  cfg.Refine.Provider,
		APIKey:    cfg.Refine.Key,
		Model:     cfg.Refine.Model,
		MaxTokens: cfg.Refine.MaxTokens,
	})
}

// initGeocoder builds the Nominatim client, or nil when disabled.
func initGeocoder() geocode.Client {
	if !cfg.Geocode.Enabled {
		return nil
	}
	opts := []geocode.Option{geocode.WithBaseURL(cfg.Geocode.BaseURL)}
	if cfg.Geocode.RatePerSecond > 0 {
		opts = append(opts, geocode.WithRateLimit(cfg.Geocode.RatePerSecond))
	}
	return geocode.New(opts...)
}

// initPipeline assembles the full ingestion pipeline and migrates the store.
func initPipeline(ctx context.Context) (*ingest.Pipeline, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	refiner, err := initRefiner()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	p := ingest.New(st, initFetcher(), refiner, initGeocoder(), ingest.Options{
		Augment: cfg.Refine.Enabled,
		Geocode: cfg.Geocode.Enabled,
	})

	zap.L().Debug("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("augment", cfg.Refine.Enabled),
		zap.Bool("geocode", cfg.Geocode.Enabled),
	)
	return p, st, nil
}
