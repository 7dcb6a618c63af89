package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"minebot/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the bot
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	membershipEventsCounter   metric.Int64Counter
	flushesCounter            metric.Int64Counter
	flushOpenIntervalsHist    metric.Int64Histogram
	flushDurationHist         metric.Float64Histogram
	durabilityFailuresCounter metric.Int64Counter
	operationsActiveGauge     metric.Int64UpDownCounter
	payrollCounter            metric.Int64Counter
	payrollRecipientsHist     metric.Int64Histogram
	natsPublishedCounter      metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)

	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("minebot")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// initializeWithReader wires instruments to a caller-supplied reader
func (mp *MetricsProvider) initializeWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	mp.meter = mp.meterProvider.Meter("minebot")
	if err := mp.createInstruments(); err != nil {
		return err
	}
	mp.initialized = true
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.membershipEventsCounter, err = mp.meter.Int64Counter(
		MembershipEventsTotal,
		metric.WithDescription("Voice membership transitions handled by the tracker"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create membership events counter: %w", err)
	}

	mp.flushesCounter, err = mp.meter.Int64Counter(
		FlushesTotal,
		metric.WithDescription("Durability flushes of open intervals"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create flushes counter: %w", err)
	}

	mp.flushOpenIntervalsHist, err = mp.meter.Int64Histogram(
		FlushOpenIntervals,
		metric.WithDescription("Open intervals snapshotted per flush"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create flush open intervals histogram: %w", err)
	}

	mp.flushDurationHist, err = mp.meter.Float64Histogram(
		FlushDuration,
		metric.WithDescription("Time spent scheduling a flush in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create flush duration histogram: %w", err)
	}

	mp.durabilityFailuresCounter, err = mp.meter.Int64Counter(
		DurabilityFailuresTotal,
		metric.WithDescription("Interval writes that failed after every retry"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create durability failures counter: %w", err)
	}

	// UpDownCounter for gauge-like behavior
	mp.operationsActiveGauge, err = mp.meter.Int64UpDownCounter(
		OperationsActive,
		metric.WithDescription("Current number of active operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations active gauge: %w", err)
	}

	mp.payrollCounter, err = mp.meter.Int64Counter(
		PayrollCalculationsTotal,
		metric.WithDescription("Completed payroll calculations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payroll counter: %w", err)
	}

	mp.payrollRecipientsHist, err = mp.meter.Int64Histogram(
		PayrollRecipients,
		metric.WithDescription("Recipients per payroll calculation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payroll recipients histogram: %w", err)
	}

	mp.natsPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	return nil
}

// Shutdown flushes pending exports and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordMembershipEvent counts a routed membership transition
func (mp *MetricsProvider) RecordMembershipEvent(kind string) {
	if !mp.isEnabled() {
		return
	}

	mp.membershipEventsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelKind, kind)),
	)
}

// RecordFlush records one flush and how many open intervals it covered
func (mp *MetricsProvider) RecordFlush(openIntervals int, took time.Duration) {
	if !mp.isEnabled() {
		return
	}

	ctx := context.Background()
	mp.flushesCounter.Add(ctx, 1)
	mp.flushOpenIntervalsHist.Record(ctx, int64(openIntervals))
	mp.flushDurationHist.Record(ctx, took.Seconds())
}

// RecordDurabilityFailure counts a write that was parked after exhausting retries
func (mp *MetricsProvider) RecordDurabilityFailure(writeKind string) {
	if !mp.isEnabled() {
		return
	}

	mp.durabilityFailuresCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelKind, writeKind)),
	)
}

// RecordPayrollCalculation records a persisted payroll table
func (mp *MetricsProvider) RecordPayrollCalculation(recipients, donors int) {
	if !mp.isEnabled() {
		return
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String(LabelHasDonors, strconv.FormatBool(donors > 0)))
	mp.payrollCounter.Add(ctx, 1, attrs)
	mp.payrollRecipientsHist.Record(ctx, int64(recipients), attrs)
}

// UpdateActiveOperations adjusts the active operation gauge
func (mp *MetricsProvider) UpdateActiveOperations(delta int64) {
	if !mp.isEnabled() {
		return
	}

	mp.operationsActiveGauge.Add(context.Background(), delta)
}

// RecordEventPublished counts a domain event delivered to NATS
func (mp *MetricsProvider) RecordEventPublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// isEnabled checks if metrics are initialized with live instruments
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
