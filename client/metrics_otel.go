package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter             metric.Meter
	dispatcherStarted metric.Int64Counter
	dispatcherStopped metric.Int64Counter
	dispatcherEQError metric.Int64Counter
	putCompleted      metric.Int64Counter
	putFailed         metric.Int64Counter
	getCompleted      metric.Int64Counter
	getFailed         metric.Int64Counter
	messageReceived   metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/portals4-go/client"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	o := &OTelMetrics{meter: meter}
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"portals.client.dispatcher.started", &o.dispatcherStarted},
		{"portals.client.dispatcher.stopped", &o.dispatcherStopped},
		{"portals.client.dispatcher.eq_errors", &o.dispatcherEQError},
		{"portals.client.put.completed", &o.putCompleted},
		{"portals.client.put.failed", &o.putFailed},
		{"portals.client.get.completed", &o.getCompleted},
		{"portals.client.get.failed", &o.getFailed},
		{"portals.client.messages.received", &o.messageReceived},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return o, nil
}

// DispatcherStarted records that the dispatcher loop has started executing.
func (o *OTelMetrics) DispatcherStarted(attrs map[string]string) {
	o.dispatcherStarted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// DispatcherStopped records that the dispatcher loop has exited.
func (o *OTelMetrics) DispatcherStopped(attrs map[string]string) {
	o.dispatcherStopped.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// DispatcherEQError counts event queue errors observed by the dispatcher.
func (o *OTelMetrics) DispatcherEQError(kind string, _ error, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelKind, kind))
	o.dispatcherEQError.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// PutCompleted records an acknowledged put.
func (o *OTelMetrics) PutCompleted(attrs map[string]string) {
	o.putCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// PutFailed records a put that completed with a failure.
func (o *OTelMetrics) PutFailed(_ error, attrs map[string]string) {
	o.putFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// GetCompleted records a get that received its reply.
func (o *OTelMetrics) GetCompleted(attrs map[string]string) {
	o.getCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// GetFailed records a get that completed with a failure.
func (o *OTelMetrics) GetFailed(_ error, attrs map[string]string) {
	o.getFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// MessageReceived records a message landing in local memory.
func (o *OTelMetrics) MessageReceived(attrs map[string]string) {
	o.messageReceived.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String(labelNID, attrs[labelNID]),
		attribute.String(labelPID, attrs[labelPID]),
	}
	if v := attrs[labelPTIndex]; v != "" {
		kvs = append(kvs, attribute.String(labelPTIndex, v))
	}
	return kvs
}

func otelAttrsWithOperation(attrs map[string]string) []attribute.KeyValue {
	kvs := otelAttrs(attrs)
	if v := attrs[labelOperation]; v != "" {
		kvs = append(kvs, attribute.String(labelOperation, v))
	}
	if v := attrs[labelStatus]; v != "" {
		kvs = append(kvs, attribute.String(labelStatus, v))
	}
	return kvs
}
