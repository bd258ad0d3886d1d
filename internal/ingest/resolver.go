// Package ingest implements the incremental sync engine: it works out where
// each series left off, pulls the missing readings and writes them back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sparks1372/octopus-consumption-exporter/internal/database"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

// freshLookback is how far back a series with no stored data starts when no
// explicit start date is configured.
const freshLookback = 24 * time.Hour

// Resolver computes the window to fetch next for a series from the store's
// last known state.
type Resolver struct {
	store     database.SeriesStore
	startDate *time.Time
	now       func() time.Time
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewResolver creates a Resolver. startDate may be nil, in which case new
// series start freshLookback before now.
func NewResolver(store database.SeriesStore, startDate *time.Time, now func() time.Time, logger *logrus.Logger, m *metrics.Metrics) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:     store,
		startDate: startDate,
		now:       now,
		logger:    logger,
		metrics:   m,
	}
}

// ResolveWindow returns the [from, to) window to fetch for series.
//
// A corrupted series is dropped before falling back to the fresh-series
// window. If the store refuses the drop, an error wrapping
// models.ErrStoreCorruption is returned and nothing else is touched.
func (r *Resolver) ResolveWindow(ctx context.Context, series models.Series) (models.SyncWindow, error) {
	latest, err := r.store.Latest(ctx, series)
	if err != nil {
		return models.SyncWindow{}, fmt.Errorf("failed to read latest point of %s: %w", series, err)
	}

	log := r.logger.WithField("series", series)

	switch latest.State {
	case models.SeriesFound:
		log.WithField("latest", latest.Time.Format(time.RFC3339)).Info("Latest entry for series found")
		window := models.SyncWindow{From: latest.Time, To: r.now()}
		if err := window.Validate(); err != nil {
			return models.SyncWindow{}, fmt.Errorf("latest entry of %s is after now: %w", series, err)
		}
		return window, nil

	case models.SeriesCorrupted:
		log.WithField("detail", latest.Detail).Warn("Resetting corrupted series")
		if err := r.reset(ctx, series); err != nil {
			return models.SyncWindow{}, err
		}
		return r.freshWindow()

	case models.SeriesNotFound:
		log.Info("No entries for series, starting fresh")
		return r.freshWindow()

	default:
		return models.SyncWindow{}, fmt.Errorf("unexpected state %s for series %s", latest.State, series)
	}
}

func (r *Resolver) reset(ctx context.Context, series models.Series) error {
	err := r.store.DropSeries(ctx, series)
	if errors.Is(err, database.ErrResetUnsupported) {
		return fmt.Errorf("%w: series %s is corrupted and the store refused to drop it (%v); "+
			"drop the series manually and restart", models.ErrStoreCorruption, series, err)
	}
	if err != nil {
		return fmt.Errorf("failed to reset series %s: %w", series, err)
	}
	r.metrics.SeriesResets.WithLabelValues(series.String()).Inc()
	return nil
}

func (r *Resolver) freshWindow() (models.SyncWindow, error) {
	now := r.now()
	window := models.SyncWindow{From: now.Add(-freshLookback), To: now}
	if r.startDate != nil {
		window.From = *r.startDate
	}
	if err := window.Validate(); err != nil {
		return models.SyncWindow{}, err
	}
	return window, nil
}
