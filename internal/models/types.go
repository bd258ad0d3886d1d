package models

import (
	"fmt"
	"time"
)

// Series names a logical stream of consumption data. Each series maps to one
// store table.
type Series string

const (
	Electricity       Series = "electricity"
	ElectricityExport Series = "electricity_export"
	Gas               Series = "gas"
)

// AllSeries lists every series in the order a sync cycle processes them.
var AllSeries = []Series{Electricity, ElectricityExport, Gas}

func (s Series) String() string { return string(s) }

// ConsumptionPage is a single page of the upstream consumption listing.
type ConsumptionPage struct {
	Count   int                 `json:"count"`
	Next    *string             `json:"next"`
	Results []ConsumptionRecord `json:"results"`
}

// ConsumptionRecord is a raw reading as returned by the upstream API.
type ConsumptionRecord struct {
	Consumption   float64   `json:"consumption"`
	IntervalStart time.Time `json:"interval_start"`
	IntervalEnd   time.Time `json:"interval_end"`
}

// PointFields are the numeric values stored for a reading.
type PointFields struct {
	Consumption    float64
	RawConsumption float64
}

// PointTags record the wall-clock time at which a point was ingested, not the
// time of the reading itself.
type PointTags struct {
	TimeOfDay string // HH:MM
	Date      string // DD/MM/YYYY
}

// StoredPoint is a normalized reading ready to be written to the store.
type StoredPoint struct {
	Measurement Series
	Time        time.Time
	Fields      PointFields
	Tags        PointTags
}

// SyncWindow is the [From, To) range requested from the upstream API.
type SyncWindow struct {
	From time.Time
	To   time.Time
}

// Validate reports a configuration error when From is after To.
func (w SyncWindow) Validate() error {
	if w.From.After(w.To) {
		return fmt.Errorf("%w: start date cannot be in the future (from %s, to %s)",
			ErrConfiguration, w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
	}
	return nil
}

// LatestState classifies what the store knows about a series.
type LatestState int

const (
	// SeriesNotFound means the store holds no data for the series.
	SeriesNotFound LatestState = iota
	// SeriesCorrupted means the series exists but its latest row cannot be trusted.
	SeriesCorrupted
	// SeriesFound means the latest row carries a valid timestamp.
	SeriesFound
)

func (s LatestState) String() string {
	switch s {
	case SeriesNotFound:
		return "not_found"
	case SeriesCorrupted:
		return "corrupted"
	case SeriesFound:
		return "found"
	default:
		return fmt.Sprintf("LatestState(%d)", int(s))
	}
}

// LatestPoint is the result of asking the store for the most recent point of a
// series. Time is only meaningful when State is SeriesFound; Detail explains a
// SeriesCorrupted result.
type LatestPoint struct {
	State  LatestState
	Time   time.Time
	Detail string
}

// SyncSummary describes the outcome of syncing one series. It is what gets
// published to downstream subscribers after a successful sync.
type SyncSummary struct {
	Series            Series    `json:"series"`
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	Records           int       `json:"records"`
	PointsWritten     int       `json:"points_written"`
	LatestIntervalEnd time.Time `json:"latest_interval_end,omitempty"`
	LatestConsumption float64   `json:"latest_consumption"`
}
