// Package aggregate computes daily trip KPIs from completed trip records.
//
// Aggregation is a batch consumer of trip state, decoupled from the
// reconciliation path: it scans completed records for a target date
// rather than depending on completion notifications, so dropped signals
// never skew the numbers.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/store"
)

// Source provides completed trip records for a UTC calendar day.
// Both store implementations satisfy this.
type Source interface {
	CompletedTrips(ctx context.Context, day time.Time) ([]*store.TripRecord, error)
}

// DailyKPI summarizes one UTC calendar day of completed trips.
type DailyKPI struct {
	Date        string  `json:"date"`
	TotalFare   float64 `json:"total_fare"`
	CountTrips  int     `json:"count_trips"`
	AverageFare float64 `json:"average_fare"`
	MaxFare     float64 `json:"max_fare"`
	MinFare     float64 `json:"min_fare"`
}

// Config configures the aggregator.
type Config struct {
	// Logger for run logging. Nil disables logging.
	Logger *slog.Logger

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time
}

// Aggregator computes daily KPIs over a completed-trip source.
type Aggregator struct {
	source Source
	cfg    Config
}

// NewAggregator creates an aggregator over the given source.
func NewAggregator(source Source, cfg Config) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{source: source, cfg: cfg}
}

// ComputeDay computes the KPI summary for the given UTC calendar day.
// A day with no completed trips yields a zero-valued summary, not an
// error. Records missing their END half are skipped; completed records
// always carry one, so a skip indicates store corruption and is logged.
func (a *Aggregator) ComputeDay(ctx context.Context, day time.Time) (DailyKPI, error) {
	day = day.UTC()
	kpi := DailyKPI{Date: day.Format(time.DateOnly)}

	trips, err := a.source.CompletedTrips(ctx, day)
	if err != nil {
		return kpi, fmt.Errorf("load completed trips for %s: %w", kpi.Date, err)
	}

	first := true
	for _, rec := range trips {
		if rec.End == nil || rec.End.End == nil {
			if a.cfg.Logger != nil {
				a.cfg.Logger.Warn("completed record missing end details",
					slog.String("trip_id", rec.TripID))
			}
			continue
		}
		fare := rec.End.End.FareAmount
		if first {
			kpi.MinFare, kpi.MaxFare = fare, fare
			first = false
		}
		kpi.CountTrips++
		kpi.TotalFare += fare
		if fare > kpi.MaxFare {
			kpi.MaxFare = fare
		}
		if fare < kpi.MinFare {
			kpi.MinFare = fare
		}
	}
	if kpi.CountTrips > 0 {
		kpi.AverageFare = round2(kpi.TotalFare / float64(kpi.CountTrips))
		kpi.TotalFare = round2(kpi.TotalFare)
	}

	if a.cfg.Logger != nil {
		a.cfg.Logger.Info("daily kpi computed",
			slog.String("date", kpi.Date),
			slog.Int("count_trips", kpi.CountTrips),
			slog.Float64("total_fare", kpi.TotalFare),
		)
	}
	return kpi, nil
}

// ComputeYesterday computes the KPI summary for the previous UTC day,
// the standard nightly batch target.
func (a *Aggregator) ComputeYesterday(ctx context.Context) (DailyKPI, error) {
	return a.ComputeDay(ctx, a.cfg.Now().UTC().AddDate(0, 0, -1))
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
