package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter exposes the collector through OpenTelemetry gauges in Prometheus format
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
	collector     Collector

	meter           metric.Meter
	outcomeGauge    metric.Int64ObservableGauge
	throughputGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates an exporter backed by its own Prometheus registry
func NewOTelExporter(collector Collector, serviceName string) (*OTelExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	meter := meterProvider.Meter(
		serviceName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		registry:      registry,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.outcomeGauge, err = oe.meter.Int64ObservableGauge(
		"exchange.messages.count",
		metric.WithDescription("Number of messages by direction and outcome"),
		metric.WithUnit("{messages}"),
		metric.WithInt64Callback(oe.observeOutcomes),
	)
	if err != nil {
		return fmt.Errorf("creating outcome gauge: %w", err)
	}

	oe.throughputGauge, err = oe.meter.Int64ObservableGauge(
		"exchange.throughput",
		metric.WithDescription("Number of messages acknowledged over time window"),
		metric.WithUnit("{messages}"),
		metric.WithInt64Callback(oe.observeThroughput),
	)
	if err != nil {
		return fmt.Errorf("creating throughput gauge: %w", err)
	}

	return nil
}

func (oe *OTelExporter) observeOutcomes(ctx context.Context, observer metric.Int64Observer) error {
	counts, err := oe.collector.GetOutcomeCounts(ctx)
	if err != nil {
		return err
	}

	for direction, byOutcome := range counts {
		for outcome, n := range byOutcome {
			observer.Observe(n, metric.WithAttributes(
				attribute.String("direction", string(direction)),
				attribute.String("outcome", string(outcome)),
			))
		}
	}
	return nil
}

func (oe *OTelExporter) observeThroughput(ctx context.Context, observer metric.Int64Observer) error {
	throughput, err := oe.collector.GetThroughput(ctx)
	if err != nil {
		return err
	}

	observer.Observe(throughput.LastMinute, metric.WithAttributes(
		attribute.String("time.window", "1m"),
	))
	observer.Observe(throughput.LastFiveMinutes, metric.WithAttributes(
		attribute.String("time.window", "5m"),
	))
	observer.Observe(throughput.LastFifteenMinutes, metric.WithAttributes(
		attribute.String("time.window", "15m"),
	))
	return nil
}

// Handler serves the Prometheus exposition
func (oe *OTelExporter) Handler() http.Handler {
	return promhttp.HandlerFor(oe.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
