package scheduler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/openrover/drived/internal/scheduler"

// registerMetrics exposes loop health as observable gauges on the global
// meter (no-op when OTel is not configured).
func (s *Service) registerMetrics() error {
	m := otel.Meter(instrumentationName)

	ticks, err := m.Int64ObservableCounter(
		"scheduler.ticks",
		metric.WithDescription("Total drive ticks executed"),
	)
	if err != nil {
		return fmt.Errorf("creating tick counter: %w", err)
	}

	overruns, err := m.Int64ObservableCounter(
		"scheduler.overruns",
		metric.WithDescription("Ticks whose callback exceeded the period"),
	)
	if err != nil {
		return fmt.Errorf("creating overrun counter: %w", err)
	}

	duration, err := m.Int64ObservableGauge(
		"scheduler.tick.duration_ns",
		metric.WithDescription("Duration of the most recent tick in nanoseconds"),
	)
	if err != nil {
		return fmt.Errorf("creating duration gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(ticks, int64(s.ticks.Load()))
			o.ObserveInt64(overruns, int64(s.overruns.Load()))
			o.ObserveInt64(duration, s.lastDurationNs.Load())
			return nil
		},
		ticks, overruns, duration,
	)
	if err != nil {
		return fmt.Errorf("registering scheduler metrics callback: %w", err)
	}
	return nil
}
