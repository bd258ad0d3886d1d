package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sparks1372/octopus-consumption-exporter/internal/database"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

const (
	timeOfDayLayout = "15:04"
	dateLayout      = "02/01/2006"
)

// Writer normalizes raw records into store points and writes them as one batch.
type Writer struct {
	store   database.SeriesStore
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewWriter(store database.SeriesStore, now func() time.Time, m *metrics.Metrics) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{store: store, now: now, metrics: m}
}

// Write stores records under series and returns the number of points written.
// A scale of zero leaves consumption equal to the raw value. An empty record
// set is a no-op.
func (w *Writer) Write(ctx context.Context, series models.Series, records []models.ConsumptionRecord, scale float64) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tags := ingestionTags(w.now())
	points := make([]models.StoredPoint, 0, len(records))
	for _, record := range records {
		points = append(points, normalize(series, record, scale, tags))
	}

	if err := w.store.WritePoints(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to write %d points to %s: %w", len(points), series, err)
	}

	w.metrics.PointsWritten.WithLabelValues(series.String()).Add(float64(len(points)))
	return len(points), nil
}

func normalize(series models.Series, record models.ConsumptionRecord, scale float64, tags models.PointTags) models.StoredPoint {
	consumption := record.Consumption
	if scale != 0 {
		consumption *= scale
	}
	return models.StoredPoint{
		Measurement: series,
		Time:        record.IntervalEnd,
		Fields: models.PointFields{
			Consumption:    consumption,
			RawConsumption: record.Consumption,
		},
		Tags: tags,
	}
}

// ingestionTags stamps points with the wall-clock time they were written.
func ingestionTags(now time.Time) models.PointTags {
	return models.PointTags{
		TimeOfDay: now.Format(timeOfDayLayout),
		Date:      now.Format(dateLayout),
	}
}
