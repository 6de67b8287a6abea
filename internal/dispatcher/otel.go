package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/backplot/backplot/internal/dispatcher"

// stats are the dispatcher instruments. They come from the global meter
// provider and are no-ops until one is installed.
type stats struct {
	depth     metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

func commandAttr(command string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", command))
}

func newStats(d *Dispatcher) (*stats, error) {
	m := otel.Meter(instrumentationName)
	s := &stats{}

	var err error
	if s.depth, err = m.Int64ObservableGauge("backplot.dispatcher.queue.depth",
		metric.WithDescription("Events waiting in a command queue")); err != nil {
		return nil, fmt.Errorf("queue depth gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, r := range d.queued() {
			o.ObserveInt64(s.depth, int64(len(r.queue)), r.attrs)
		}
		return nil
	}, s.depth); err != nil {
		return nil, fmt.Errorf("queue depth callback: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&s.processed, "backplot.dispatcher.events.processed", "Events handled"},
		{&s.dropped, "backplot.dispatcher.events.dropped", "Events refused by a full queue"},
		{&s.failed, "backplot.dispatcher.events.failed", "Events whose handler returned an error"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
	}
	return s, nil
}
