package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/analysis"
	"github.com/balidash/detective-cli/internal/detector"
	"github.com/balidash/detective-cli/internal/store"
	"github.com/balidash/detective-cli/pkg/fraud"
	"github.com/balidash/detective-cli/pkg/holiday"
	"github.com/balidash/detective-cli/pkg/narrative"
	"github.com/balidash/detective-cli/pkg/tourist"
	"github.com/balidash/detective-cli/pkg/weather"
)

// analyzerEnv holds the store, the analyzer, and the optional narrative
// generator shared by the analyze/serve/runs commands.
type analyzerEnv struct {
	Store     store.Store
	Analyzer  *analysis.Analyzer
	Narrative *narrative.Generator // nil without an API key
}

// Close releases resources held by the environment.
func (ae *analyzerEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "detective.sqlite"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// fraudSheet adapts the published-sheet fetch to the analyzer's source
// interface. An empty URL yields an empty registry.
type fraudSheet struct {
	httpClient *http.Client
	sheetURL   string
}

func (f fraudSheet) Fetch(ctx context.Context) (*fraud.Registry, error) {
	return fraud.Fetch(ctx, f.httpClient, f.sheetURL)
}

// initAnalyzer sets up the store, external context clients, and the analyzer.
// Callers should defer env.Close().
func initAnalyzer(ctx context.Context) (*analyzerEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	weatherClient := weather.NewClient(weather.Options{
		BaseURL:    cfg.Weather.BaseURL,
		Timeout:    time.Duration(cfg.Weather.TimeoutSecs) * time.Second,
		RatePerSec: cfg.Weather.RatePerSec,
	})
	holidayClient := holiday.NewClient(holiday.Options{
		BaseURL:     cfg.Holiday.BaseURL,
		CountryCode: cfg.Holiday.CountryCode,
		Timeout:     time.Duration(cfg.Holiday.TimeoutSecs) * time.Second,
	})
	fraudSource := fraudSheet{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Fraud.TimeoutSecs) * time.Second},
		sheetURL:   cfg.Fraud.SheetURL,
	}

	season := tourist.Default()
	if cfg.Tourist.WorkbookPath != "" {
		loaded, err := tourist.LoadWorkbook(cfg.Tourist.WorkbookPath, cfg.Tourist.SheetName)
		if err != nil {
			zap.L().Warn("tourist workbook load failed, using built-in coefficients",
				zap.String("path", cfg.Tourist.WorkbookPath),
				zap.Error(err),
			)
		} else {
			season = loaded
		}
	}

	analyzer := analysis.New(analysis.Params{
		Store:   st,
		Weather: weatherClient,
		Holiday: holidayClient,
		Fraud:   fraudSource,
		Season:  season,
		Detector: detector.Config{
			MADMultiplier: cfg.Detector.MADMultiplier,
			MinDays:       cfg.Detector.MinDays,
			TopN:          cfg.Detector.TopN,
		},
		Model: analysis.ModelConfig{
			Trees:           cfg.Model.Trees,
			MaxDepth:        cfg.Model.MaxDepth,
			MinLeaf:         cfg.Model.MinLeaf,
			Seed:            cfg.Model.Seed,
			MinTrainingDays: cfg.Model.MinTrainingDays,
			ShapleySamples:  cfg.Model.ShapleySamples,
			Materiality:     cfg.Model.Materiality,
		},
	})

	env := &analyzerEnv{Store: st, Analyzer: analyzer}

	if cfg.Anthropic.Key != "" {
		env.Narrative = narrative.NewGenerator(narrative.Options{
			APIKey:    cfg.Anthropic.Key,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
	} else {
		zap.L().Debug("DETECTIVE_ANTHROPIC_KEY not set, narrative generation disabled")
	}

	return env, nil
}
