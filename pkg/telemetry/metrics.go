package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope for service metrics
const MeterName = "gatepass-settlement"

var meterProvider *sdkmetric.MeterProvider

// InitMetrics installs an OTLP metric exporter as the global meter provider.
// When disabled, instruments are created on the default no-op provider.
func InitMetrics(ctx context.Context, cfg *Config) error {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.CollectorAddr),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return err
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	return nil
}

// ShutdownMetrics flushes and stops the meter provider
func ShutdownMetrics(ctx context.Context) error {
	if meterProvider != nil {
		return meterProvider.Shutdown(ctx)
	}
	return nil
}

// MetricOpts describes an instrument
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter is a monotonically increasing instrument
type Counter struct {
	inst metric.Int64Counter
}

// NewCounter creates a counter on the global meter
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := otel.Meter(MeterName).Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", opts.Name, err)
	}
	return &Counter{inst: c}, nil
}

// Add increments the counter by n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.inst.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc increments the counter by one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram records a distribution of values
type Histogram struct {
	inst metric.Float64Histogram
}

// NewHistogram creates a histogram with default buckets
func NewHistogram(opts MetricOpts) (*Histogram, error) {
	return NewHistogramWithBuckets(opts, nil)
}

// NewHistogramWithBuckets creates a histogram with explicit bucket boundaries
func NewHistogramWithBuckets(opts MetricOpts, buckets []float64) (*Histogram, error) {
	hopts := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(buckets) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(buckets...))
	}

	h, err := otel.Meter(MeterName).Float64Histogram(opts.Name, hopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", opts.Name, err)
	}
	return &Histogram{inst: h}, nil
}

// Record records a single observation
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.inst.Record(ctx, v, metric.WithAttributes(attrs...))
}

// UpDownCounter can go up and down, used as a gauge
type UpDownCounter struct {
	inst metric.Int64UpDownCounter
}

// NewUpDownCounter creates an up/down counter
func NewUpDownCounter(opts MetricOpts) (*UpDownCounter, error) {
	u, err := otel.Meter(MeterName).Int64UpDownCounter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create up/down counter %s: %w", opts.Name, err)
	}
	return &UpDownCounter{inst: u}, nil
}

// Add adds delta
func (u *UpDownCounter) Add(ctx context.Context, delta int64, attrs ...attribute.KeyValue) {
	if u == nil {
		return
	}
	u.inst.Add(ctx, delta, metric.WithAttributes(attrs...))
}
