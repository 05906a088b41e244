package prometheus

import (
	"time"

	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-confined-pump/core"
)

const defaultNamespace = "confinedpump"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	itemDurationSeconds *prom.HistogramVec
	itemFaultTotal      *prom.CounterVec
	itemRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	transactionTotal    *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
// Registering twice against the same registry reuses the existing collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "item_duration_seconds",
		Help:      "Work item duration in seconds, continuations included.",
		Buckets:   buckets,
	}, []string{"pump", "kind"})
	faultVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "item_fault_total",
		Help:      "Total number of faulted work items.",
	}, []string{"pump", "kind"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "item_rejected_total",
		Help:      "Total number of rejected work items.",
	}, []string{"pump", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current work queue depth.",
	}, []string{"pump"})
	transactionVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "transaction_total",
		Help:      "Transaction transitions by outcome.",
	}, []string{"pump", "outcome"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if faultVec, err = registerCollector(reg, faultVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if transactionVec, err = registerCollector(reg, transactionVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		itemDurationSeconds: durationVec,
		itemFaultTotal:      faultVec,
		itemRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		transactionTotal:    transactionVec,
	}, nil
}

// RecordItemDuration records work item duration.
func (m *MetricsExporter) RecordItemDuration(pumpName string, kind core.ItemKind, duration time.Duration) {
	if m == nil {
		return
	}
	m.itemDurationSeconds.WithLabelValues(normalizeLabel(pumpName, "unknown"), kind.String()).Observe(duration.Seconds())
}

// RecordItemFault records faulted work items.
func (m *MetricsExporter) RecordItemFault(pumpName string, kind core.ItemKind) {
	if m == nil {
		return
	}
	m.itemFaultTotal.WithLabelValues(normalizeLabel(pumpName, "unknown"), kind.String()).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(pumpName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(pumpName, "unknown")).Set(float64(depth))
}

// RecordItemRejected records rejected submissions.
func (m *MetricsExporter) RecordItemRejected(pumpName string, reason string) {
	if m == nil {
		return
	}
	m.itemRejectedTotal.WithLabelValues(normalizeLabel(pumpName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTransaction records transaction begin, commit and rollback.
func (m *MetricsExporter) RecordTransaction(pumpName string, outcome string) {
	if m == nil {
		return
	}
	m.transactionTotal.WithLabelValues(normalizeLabel(pumpName, "unknown"), normalizeLabel(outcome, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, errors.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
