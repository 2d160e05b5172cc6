package client

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	dispatcherStarted *prometheus.CounterVec
	dispatcherStopped *prometheus.CounterVec
	dispatcherEQError *prometheus.CounterVec
	putCompleted      *prometheus.CounterVec
	putFailed         *prometheus.CounterVec
	getCompleted      *prometheus.CounterVec
	getFailed         *prometheus.CounterVec
	messageReceived   *prometheus.CounterVec
}

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string, keys []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		}, keys)
	}

	p := &PrometheusMetrics{
		dispatcherStarted: counter("portals_client_dispatcher_started_total", "Number of times the dispatcher loop started", dispatcherLabelKeys),
		dispatcherStopped: counter("portals_client_dispatcher_stopped_total", "Number of times the dispatcher loop stopped", dispatcherLabelKeys),
		dispatcherEQError: counter("portals_client_dispatcher_eq_errors_total", "Number of event queue errors surfaced by the dispatcher", eqErrorLabelKeys),
		putCompleted:      counter("portals_client_put_completed_total", "Number of acknowledged puts", completionLabelKeys),
		putFailed:         counter("portals_client_put_failed_total", "Number of puts completed with a failure", failureLabelKeys),
		getCompleted:      counter("portals_client_get_completed_total", "Number of gets that received a reply", completionLabelKeys),
		getFailed:         counter("portals_client_get_failed_total", "Number of gets completed with a failure", failureLabelKeys),
		messageReceived:   counter("portals_client_messages_received_total", "Number of messages landed in local memory", messageLabelKeys),
	}

	for _, vec := range []**prometheus.CounterVec{
		&p.dispatcherStarted, &p.dispatcherStopped, &p.dispatcherEQError,
		&p.putCompleted, &p.putFailed, &p.getCompleted, &p.getFailed, &p.messageReceived,
	} {
		registered, err := registerCounterVec(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

var (
	dispatcherLabelKeys = []string{labelNID, labelPID, labelPTIndex}
	eqErrorLabelKeys    = []string{labelNID, labelPID, labelPTIndex, labelKind}
	completionLabelKeys = []string{labelNID, labelPID, labelPTIndex, labelOperation, labelStatus}
	failureLabelKeys    = []string{labelNID, labelPID, labelPTIndex, labelOperation}
	messageLabelKeys    = failureLabelKeys
)

func (p *PrometheusMetrics) DispatcherStarted(attrs map[string]string) {
	p.dispatcherStarted.With(labels(attrs, dispatcherLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) DispatcherStopped(attrs map[string]string) {
	p.dispatcherStopped.With(labels(attrs, dispatcherLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) DispatcherEQError(kind string, _ error, attrs map[string]string) {
	labs := labels(attrs, eqErrorLabelKeys...)
	labs[labelKind] = kind
	p.dispatcherEQError.With(labs).Inc()
}

func (p *PrometheusMetrics) PutCompleted(attrs map[string]string) {
	p.putCompleted.With(labels(attrs, completionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) PutFailed(_ error, attrs map[string]string) {
	p.putFailed.With(labels(attrs, failureLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) GetCompleted(attrs map[string]string) {
	p.getCompleted.With(labels(attrs, completionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) GetFailed(_ error, attrs map[string]string) {
	p.getFailed.With(labels(attrs, failureLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) MessageReceived(attrs map[string]string) {
	p.messageReceived.With(labels(attrs, messageLabelKeys...)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}
