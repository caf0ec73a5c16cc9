// Package analysis orchestrates one synchronous analyze call: load records,
// fetch external context, detect anomalies, train the attribution model,
// explain each anomalous day, and assemble the report. No state survives
// between calls; external data is fetched once per call and scoped to it.
package analysis

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/balidash/detective-cli/internal/aggregate"
	"github.com/balidash/detective-cli/internal/detective"
	"github.com/balidash/detective-cli/internal/detector"
	"github.com/balidash/detective-cli/internal/feature"
	"github.com/balidash/detective-cli/internal/forest"
	"github.com/balidash/detective-cli/internal/merger"
	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/internal/shapley"
	"github.com/balidash/detective-cli/internal/store"
	"github.com/balidash/detective-cli/pkg/fraud"
	"github.com/balidash/detective-cli/pkg/tourist"
)

// ErrUnknownRestaurant is the only error fatal to a whole analyze call that
// is not a data-volume problem.
var ErrUnknownRestaurant = eris.New("analysis: unknown restaurant")

// WeatherSource supplies observed daily weather for a location and range.
type WeatherSource interface {
	FetchRange(ctx context.Context, lat, lon float64, start, end time.Time) (map[string]model.Weather, error)
}

// HolidaySource supplies the holiday calendar for a range.
type HolidaySource interface {
	FetchRange(ctx context.Context, start, end time.Time) (map[string]model.Holiday, error)
}

// FraudSource supplies the fraud order registry.
type FraudSource interface {
	Fetch(ctx context.Context) (*fraud.Registry, error)
}

// ModelConfig tunes the attribution model and Shapley sampling.
type ModelConfig struct {
	Trees           int
	MaxDepth        int
	MinLeaf         int
	Seed            int64
	MinTrainingDays int
	ShapleySamples  int
	Materiality     float64 // fraction of predicted sales below which a contribution is noise
}

func (c ModelConfig) withDefaults() ModelConfig {
	if c.MinTrainingDays == 0 {
		c.MinTrainingDays = 5
	}
	if c.Materiality == 0 {
		c.Materiality = 0.05
	}
	return c
}

// Params wires an Analyzer. Weather, Holiday, and Fraud may be nil; the
// corresponding context degrades to its missing encoding.
type Params struct {
	Store   store.Store
	Weather WeatherSource
	Holiday HolidaySource
	Fraud   FraudSource
	Season  *tourist.Season

	Detector detector.Config
	Model    ModelConfig
}

// Analyzer explains sales anomalies for one restaurant and period per call.
type Analyzer struct {
	p Params
}

// New creates an Analyzer.
func New(p Params) *Analyzer {
	p.Model = p.Model.withDefaults()
	return &Analyzer{p: p}
}

// Request is one analyze call.
type Request struct {
	RestaurantID string
	Start        time.Time
	End          time.Time
	TopN         int  // 0 takes the detector default
	All          bool // report every anomaly, ignoring TopN
}

// Analyze runs the full pipeline. Single bad days never abort the call;
// only an unknown restaurant or a too-short period does.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*model.AnalysisReport, error) {
	restaurant, err := a.p.Store.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrap(ErrUnknownRestaurant, req.RestaurantID)
		}
		return nil, err
	}

	records, err := a.p.Store.FetchPlatformRecords(ctx, req.RestaurantID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	weather, holidays, registry := a.fetchContext(ctx, restaurant, req)

	days := aggregate.Days(aggregate.Inputs{
		RestaurantID: req.RestaurantID,
		Records:      records,
		Weather:      weather,
		Holidays:     holidays,
		Fraud:        registry,
	})

	// Detect against all days first; the report's top-N cut must not shrink
	// the training exclusion set.
	det := detector.New(detector.Config{
		MADMultiplier: a.p.Detector.MADMultiplier,
		MinDays:       a.p.Detector.MinDays,
	})
	baseline, err := det.Baseline(days)
	if err != nil {
		return nil, err
	}
	anomalies := det.Detect(days, baseline)

	reported := anomalies
	if !req.All {
		topN := req.TopN
		if topN == 0 {
			topN = a.p.Detector.TopN
		}
		if topN == 0 {
			topN = 5
		}
		if len(reported) > topN {
			reported = reported[:topN]
		}
	}

	builder := feature.NewBuilder(days, a.p.Season)
	pctx := detective.NewPeriodContext(days)

	eng := a.trainEngine(days, anomalies, builder)
	anomalyReports := a.explainDays(ctx, reported, baseline, builder, pctx, eng)

	report := &model.AnalysisReport{
		Period:      periodSummary(restaurant, req, days, baseline, len(anomalies)),
		AnomalyDays: anomalyReports,
	}
	report.AggregatePotentialUplift = merger.PotentialUplift(anomalyReports)
	return report, nil
}

// fetchContext pulls weather, holidays, and the fraud registry in parallel.
// Each failure logs and degrades to absence; none fails the call.
func (a *Analyzer) fetchContext(ctx context.Context, r *model.Restaurant, req Request) (map[string]model.Weather, map[string]model.Holiday, *fraud.Registry) {
	var (
		weather  map[string]model.Weather
		holidays map[string]model.Holiday
		registry *fraud.Registry
	)

	g, gctx := errgroup.WithContext(ctx)
	if a.p.Weather != nil {
		g.Go(func() error {
			w, err := a.p.Weather.FetchRange(gctx, r.Latitude, r.Longitude, req.Start, req.End)
			if err != nil {
				zap.L().Warn("analysis: weather unavailable, degrading to missing encoding", zap.Error(err))
				return nil
			}
			weather = w
			return nil
		})
	}
	if a.p.Holiday != nil {
		g.Go(func() error {
			h, err := a.p.Holiday.FetchRange(gctx, req.Start, req.End)
			if err != nil {
				zap.L().Warn("analysis: holiday calendar unavailable", zap.Error(err))
				return nil
			}
			holidays = h
			return nil
		})
	}
	if a.p.Fraud != nil {
		g.Go(func() error {
			reg, err := a.p.Fraud.Fetch(gctx)
			if err != nil {
				zap.L().Warn("analysis: fraud registry unavailable, assuming no adjustments", zap.Error(err))
				return nil
			}
			registry = reg
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors

	return weather, holidays, registry
}

// engine is the trained attribution state for one call, or nil fields in
// degraded mode.
type engine struct {
	forest     *forest.Forest
	attributor *shapley.Attributor
	background []float64
}

// trainEngine fits the model on non-anomalous days. Any training failure
// puts the whole call in degraded mode.
func (a *Analyzer) trainEngine(days []model.RestaurantDay, anomalies []model.AnomalyDay, builder *feature.Builder) *engine {
	anomalous := make(map[time.Time]bool, len(anomalies))
	for _, an := range anomalies {
		anomalous[an.Date] = true
	}

	var training []model.RestaurantDay
	for i := range days {
		if !anomalous[days[i].Date] {
			training = append(training, days[i])
		}
	}
	if len(training) < a.p.Model.MinTrainingDays {
		zap.L().Warn("analysis: too few non-anomalous days, degraded mode",
			zap.Int("training_days", len(training)),
			zap.Int("required", a.p.Model.MinTrainingDays),
		)
		return nil
	}

	X := builder.Matrix(training)
	y := make([]float64, len(training))
	for i := range training {
		y[i] = training[i].ActualSales
	}

	f, err := forest.Train(forest.Config{
		Trees:    a.p.Model.Trees,
		MaxDepth: a.p.Model.MaxDepth,
		MinLeaf:  a.p.Model.MinLeaf,
		Seed:     a.p.Model.Seed,
	}, X, y)
	if err != nil {
		zap.L().Warn("analysis: model training failed, degraded mode", zap.Error(err))
		return nil
	}

	return &engine{
		forest:     f,
		attributor: shapley.New(shapley.Config{Samples: a.p.Model.ShapleySamples, Seed: a.p.Model.Seed}, f),
		background: columnMeans(X),
	}
}

// explainDays attributes each reported anomaly. Days are independent given
// the trained model, so they run in parallel; results land in fixed slots
// to keep report order deterministic.
func (a *Analyzer) explainDays(ctx context.Context, reported []model.AnomalyDay, baseline model.Baseline, builder *feature.Builder, pctx detective.PeriodContext, eng *engine) []model.AnomalyReport {
	out := make([]model.AnomalyReport, len(reported))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range reported {
		g.Go(func() error {
			out[i] = a.explainDay(&reported[i], baseline, builder, pctx, eng)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-day failures degrade, never error

	return out
}

func (a *Analyzer) explainDay(an *model.AnomalyDay, baseline model.Baseline, builder *feature.Builder, pctx detective.PeriodContext, eng *engine) model.AnomalyReport {
	ruleFactors := detective.Evaluate(an.Day, pctx)

	report := model.AnomalyReport{
		Date:          an.Date,
		ActualSales:   an.Actual,
		BaselineSales: baseline.Median,
		Severity:      an.Severity,
	}

	if eng == nil {
		report.DegradedMode = true
		report.Factors = merger.Merge(nil, ruleFactors)
		return report
	}

	x := builder.Build(an.Day)
	predicted := eng.forest.Predict(x)

	contrib, err := eng.attributor.Explain(x, eng.background, eng.forest.Base())
	if err != nil {
		zap.L().Error("analysis: attribution failed for day, falling back to rules",
			zap.Time("date", an.Date), zap.Error(err))
		report.DegradedMode = true
		report.Factors = merger.Merge(nil, ruleFactors)
		return report
	}

	report.PredictedSales = predicted
	report.Residual = an.Actual - predicted
	report.Attribution = materialEntries(contrib, predicted, a.p.Model.Materiality)
	report.Factors = merger.Merge(merger.FromAttribution(report.Attribution, predicted), ruleFactors)
	return report
}

// materialEntries converts contributions to entries, dropping features whose
// magnitude falls below the materiality fraction of the predicted sales.
func materialEntries(contrib []float64, predicted, materiality float64) []model.AttributionEntry {
	cut := materiality * abs(predicted)
	names := feature.Names()

	var entries []model.AttributionEntry
	for i, c := range contrib {
		if abs(c) < cut {
			continue
		}
		pct := 0.0
		if predicted != 0 {
			pct = c / predicted * 100
		}
		entries = append(entries, model.AttributionEntry{
			Feature:         names[i],
			Contribution:    c,
			ContributionPct: pct,
		})
	}
	return entries
}

func periodSummary(r *model.Restaurant, req Request, days []model.RestaurantDay, baseline model.Baseline, anomalyCount int) model.PeriodSummary {
	var totalSales, fraudRemoved float64
	for i := range days {
		totalSales += days[i].ActualSales
		fraudRemoved += days[i].Fraud.Amount
	}
	return model.PeriodSummary{
		RestaurantID:   r.ID,
		RestaurantName: r.Name,
		Start:          req.Start,
		End:            req.End,
		Days:           len(days),
		Baseline:       baseline,
		TotalSales:     totalSales,
		FraudRemoved:   fraudRemoved,
		AnomalyCount:   anomalyCount,
	}
}

func columnMeans(X [][]float64) []float64 {
	means := make([]float64, len(X[0]))
	for _, row := range X {
		for i, v := range row {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(len(X))
	}
	return means
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
