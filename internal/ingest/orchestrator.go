package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sparks1372/octopus-consumption-exporter/internal/api"
	"github.com/sparks1372/octopus-consumption-exporter/internal/config"
	"github.com/sparks1372/octopus-consumption-exporter/internal/database"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

// Fetcher returns every consumption record of an endpoint within a window.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, window models.SyncWindow) ([]models.ConsumptionRecord, error)
}

// Notifier receives a summary after each successfully synced series.
type Notifier interface {
	Notify(ctx context.Context, summary models.SyncSummary) error
}

// HealthReporter tracks whether the last sync of a series succeeded.
type HealthReporter interface {
	SetSeriesHealth(series models.Series, healthy bool)
}

type Option func(*Orchestrator)

// WithClock overrides the wall clock used for windows and ingestion tags.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithHealth(h HealthReporter) Option {
	return func(o *Orchestrator) { o.health = h }
}

// Orchestrator runs one sync cycle over every series in a fixed order.
type Orchestrator struct {
	cfg      *config.Config
	fetcher  Fetcher
	resolver *Resolver
	writer   *Writer
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	health   HealthReporter
	now      func() time.Time
}

type seriesPlan struct {
	endpoint string
	scale    float64
}

func NewOrchestrator(cfg *config.Config, store database.SeriesStore, fetcher Fetcher, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	start, ok, err := cfg.Sync.StartTime()
	if err != nil {
		return nil, err
	}
	var startDate *time.Time
	if ok {
		startDate = &start
	}

	o.resolver = NewResolver(store, startDate, o.now, logger, m)
	o.writer = NewWriter(store, o.now, m)
	return o, nil
}

// RunCycle syncs electricity, electricity export and gas in that order. The
// first failing series aborts the cycle; the export series is skipped when
// no export meter is configured.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	log := o.logger.WithField("cycle_id", uuid.NewString())
	log.Info("Starting sync cycle")

	for _, series := range models.AllSeries {
		if err := o.syncSeries(ctx, log.WithField("series", series), series); err != nil {
			o.metrics.Cycles.WithLabelValues("failure").Inc()
			if o.health != nil {
				o.health.SetSeriesHealth(series, false)
			}
			return err
		}
	}

	o.metrics.Cycles.WithLabelValues("success").Inc()
	log.Info("Sync cycle complete")
	return nil
}

func (o *Orchestrator) syncSeries(ctx context.Context, log *logrus.Entry, series models.Series) error {
	plan, err := o.plan(series)
	if err != nil {
		return err
	}
	if plan == nil {
		log.Info("No meter configured for series, skipping")
		return nil
	}

	started := time.Now()

	window, err := o.resolver.ResolveWindow(ctx, series)
	if err != nil {
		return err
	}

	records, err := o.fetcher.Fetch(ctx, plan.endpoint, window)
	if err != nil {
		return fmt.Errorf("failed to fetch %s consumption: %w", series, err)
	}
	o.metrics.RecordsFetched.WithLabelValues(series.String()).Add(float64(len(records)))

	log.WithFields(logrus.Fields{
		"from":    window.From.Format(time.RFC3339),
		"to":      window.To.Format(time.RFC3339),
		"records": len(records),
	}).Info("Loaded consumption data")

	written, err := o.writer.Write(ctx, series, records, plan.scale)
	if err != nil {
		return err
	}

	o.metrics.SyncDuration.WithLabelValues(series.String()).Observe(time.Since(started).Seconds())
	o.metrics.LastSync.WithLabelValues(series.String()).Set(float64(o.now().Unix()))
	if o.health != nil {
		o.health.SetSeriesHealth(series, true)
	}

	if o.notifier != nil {
		summary := summarize(series, window, records, written, plan.scale)
		if err := o.notifier.Notify(ctx, summary); err != nil {
			log.WithError(err).Warn("Failed to publish sync summary")
		}
	}
	return nil
}

// plan validates the meter configuration of series. A nil plan means the
// series is optional and not configured.
func (o *Orchestrator) plan(series models.Series) (*seriesPlan, error) {
	base := o.cfg.API.BaseURL
	meters := o.cfg.Meters

	switch series {
	case models.Electricity:
		if err := meters.Electricity.Validate("electricity"); err != nil {
			return nil, err
		}
		return &seriesPlan{endpoint: api.ElectricityEndpoint(base, meters.Electricity.MPAN, meters.Electricity.Serial)}, nil

	case models.ElectricityExport:
		if !meters.Export.Configured() {
			return nil, nil
		}
		if err := meters.Export.Validate("electricity export"); err != nil {
			return nil, err
		}
		return &seriesPlan{endpoint: api.ElectricityEndpoint(base, meters.Export.MPAN, meters.Export.Serial)}, nil

	case models.Gas:
		if err := meters.Gas.Validate(); err != nil {
			return nil, err
		}
		return &seriesPlan{
			endpoint: api.GasEndpoint(base, meters.Gas.MPRN, meters.Gas.Serial),
			scale:    meters.Gas.VolumeCorrectionFactor,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown series %q", models.ErrConfiguration, series)
	}
}

func summarize(series models.Series, window models.SyncWindow, records []models.ConsumptionRecord, written int, scale float64) models.SyncSummary {
	summary := models.SyncSummary{
		Series:        series,
		From:          window.From,
		To:            window.To,
		Records:       len(records),
		PointsWritten: written,
	}
	for _, record := range records {
		if record.IntervalEnd.After(summary.LatestIntervalEnd) {
			summary.LatestIntervalEnd = record.IntervalEnd
			summary.LatestConsumption = record.Consumption
		}
	}
	if scale != 0 {
		summary.LatestConsumption *= scale
	}
	return summary
}
