package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

const defaultExportInterval = 30 * time.Second

var _ models.MetricService = &OtelMetricService{}

type OtelMetricService struct {
	meterProvider *sdk.MeterProvider
	meter         metric.Meter
	logger        models.Logger
	lock          sync.Mutex
	counters      map[models.MetricName]metric.Int64Counter
	histograms    map[models.MetricName]metric.Int64Histogram
}

// NewOtelMetricService exports to the OTLP collector configured in the environment, or to stdout if none is set.
func NewOtelMetricService(ctx context.Context, logger models.Logger) (*OtelMetricService, error) {
	var exporter sdk.Exporter
	var err error
	if collectorEndpoint, found := os.LookupEnv(common.Env_MetricsEndpoint); found && len(collectorEndpoint) > 0 {
		exporter, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(collectorEndpoint), otlpmetrichttp.WithInsecure())
	} else {
		exporter, err = stdoutmetric.New()
	}
	if err != nil {
		return nil, fmt.Errorf("metrics: error creating exporter: %w", err)
	}
	meterProvider := sdk.NewMeterProvider(
		sdk.WithReader(sdk.NewPeriodicReader(exporter, sdk.WithInterval(defaultExportInterval))),
		sdk.WithResource(resource.NewSchemaless(attribute.String("service.name", common.ServiceName))),
	)
	return &OtelMetricService{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(models.MetricsCallerName),
		logger:        logger,
		counters:      make(map[models.MetricName]metric.Int64Counter),
		histograms:    make(map[models.MetricName]metric.Int64Histogram),
	}, nil
}

func (o *OtelMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	o.lock.Lock()
	counter, found := o.counters[name]
	if !found {
		var err error
		if counter, err = o.meter.Int64Counter(string(name)); err != nil {
			o.lock.Unlock()
			return err
		}
		o.counters[name] = counter
	}
	o.lock.Unlock()

	counter.Add(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	o.lock.Lock()
	histogram, found := o.histograms[name]
	if !found {
		var err error
		if histogram, err = o.meter.Int64Histogram(string(name)); err != nil {
			o.lock.Unlock()
			return err
		}
		o.histograms[name] = histogram
	}
	o.lock.Unlock()

	histogram.Record(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) QueueGauge(_ context.Context, queueName string, monitor models.QueueMonitor) error {
	unprocessed := func(ctx context.Context, observer metric.Int64Observer) error {
		numUnprocessed, _, err := monitor.GetUtilization(ctx)
		if err != nil {
			return err
		}
		observer.Observe(int64(numUnprocessed))
		return nil
	}
	inFlight := func(ctx context.Context, observer metric.Int64Observer) error {
		_, numInFlight, err := monitor.GetUtilization(ctx)
		if err != nil {
			return err
		}
		observer.Observe(int64(numInFlight))
		return nil
	}
	if _, err := o.meter.Int64ObservableGauge(queueName+"_unprocessed", metric.WithInt64Callback(unprocessed)); err != nil {
		return err
	}
	if _, err := o.meter.Int64ObservableGauge(queueName+"_in_flight", metric.WithInt64Callback(inFlight)); err != nil {
		return err
	}
	return nil
}

func (o *OtelMetricService) Shutdown(ctx context.Context) {
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		o.logger.Errorf("metrics: error shutting down meter provider: %v", err)
	}
}
