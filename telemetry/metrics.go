// Package telemetry records OpenTelemetry metrics for the stat interception layer.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/wolfeidau/stat-ignition"
)

// Stat lookup results.
const (
	ResultHit         = "hit"
	ResultNegativeHit = "negative_hit"
	ResultMiss        = "miss"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus registers a Prometheus exporter so metrics can be
	// written with WriteTextfile.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	statLookupsTotal metric.Int64Counter

	storeOpsTotal    metric.Int64Counter
	storeOpDuration  metric.Float64Histogram
	storeBytesTotal  metric.Int64Counter
	storeCacheSize   metric.Int64Gauge
	chokeWindow      metric.Float64Histogram
	chokeEntries     metric.Int64Gauge
	chokeFlushes     metric.Int64Counter
	preflightsTotal  metric.Int64Counter
	preflightLatency metric.Float64Histogram

	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promRegistry  *prometheus.Registry
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stat-ignition"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promRegistry *prometheus.Registry

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promRegistry = prometheus.NewRegistry()
		promExp, err := promexporter.New(promexporter.WithRegisterer(promRegistry))
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promRegistry = promRegistry
	globalMetrics = m

	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m    Metrics
		errs []error
	)
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	gauge := func(name, desc, unit string) metric.Int64Gauge {
		g, err := meter.Int64Gauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return g
	}
	histogram := func(name, desc string, bounds ...float64) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(bounds...),
		)
		errs = append(errs, err)
		return h
	}

	m.statLookupsTotal = counter("ignition_stat_lookups_total", "Metadata queries seen by the interceptor", "{lookup}")

	m.storeOpsTotal = counter("ignition_store_ops_total", "Stat cache store operations", "{op}")
	m.storeOpDuration = histogram("ignition_store_op_duration_seconds", "Duration of stat cache store operations",
		0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1)
	m.storeBytesTotal = counter("ignition_store_bytes_total", "Encoded stat cache bytes moved to or from a store", "By")
	m.storeCacheSize = gauge("ignition_store_cache_entries", "Entries in the last stat cache loaded or saved", "{entry}")

	m.chokeWindow = histogram("ignition_choke_window_duration_seconds", "Time interception was active",
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)
	m.chokeEntries = gauge("ignition_choke_entries", "Entries held by the choke at turn-off", "{entry}")
	m.chokeFlushes = counter("ignition_choke_flushes_total", "Turn-offs by flush outcome", "{flush}")

	m.preflightsTotal = counter("ignition_preflights_total", "Preflights run", "{preflight}")
	m.preflightLatency = histogram("ignition_preflight_duration_seconds", "Duration of preflight callbacks",
		0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)

	m.backendRequestDuration = histogram("ignition_backend_request_duration_seconds", "Duration of backend storage operations",
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5)
	m.backendRequestsTotal = counter("ignition_backend_requests_total", "Total number of backend storage operations", "{request}")
	m.backendBytesTotal = counter("ignition_backend_bytes_total", "Total bytes transferred in backend operations", "By")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// WriteTextfile writes the Prometheus exposition of all metrics to path, for
// pickup by the node exporter textfile collector. It is a no-op unless metrics
// were initialised with EnablePrometheus.
func WriteTextfile(path string) error {
	if globalMetrics == nil || globalMetrics.promRegistry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, globalMetrics.promRegistry)
}

// RecordStatLookup records one metadata query seen by the interceptor.
// op is "stat", "lstat" or "fstat".
func RecordStatLookup(ctx context.Context, op, result string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.statLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// RecordStoreOp records a stat cache store operation.
func RecordStoreOp(ctx context.Context, store, op, outcome string, duration time.Duration, entries int, bytes int64) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	globalMetrics.storeOpsTotal.Add(ctx, 1, attrs)
	globalMetrics.storeOpDuration.Record(ctx, duration.Seconds(), attrs)
	if bytes > 0 {
		globalMetrics.storeBytesTotal.Add(ctx, bytes, attrs)
	}
	if outcome == "success" {
		globalMetrics.storeCacheSize.Record(ctx, int64(entries), metric.WithAttributes(attribute.String("store", store)))
	}
}

// RecordChokeWindow records the end of an interception window.
// flush is "saved", "clean" or "failed".
func RecordChokeWindow(ctx context.Context, duration time.Duration, entries int, flush string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.chokeWindow.Record(ctx, duration.Seconds())
	globalMetrics.chokeEntries.Record(ctx, int64(entries))
	globalMetrics.chokeFlushes.Add(ctx, 1, metric.WithAttributes(attribute.String("flush", flush)))
}

// RecordPreflight records one preflight callback run.
func RecordPreflight(ctx context.Context, vendor, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("vendor", vendor),
		attribute.String("outcome", outcome),
	)
	globalMetrics.preflightsTotal.Add(ctx, 1, attrs)
	globalMetrics.preflightLatency.Record(ctx, duration.Seconds(), attrs)
}

// RecordBackendOp records backend operation metrics.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// Outcome maps an error to the outcome attribute used by the Record functions.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
