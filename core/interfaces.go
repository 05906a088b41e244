package core

import (
	"time"
)

// =============================================================================
// FaultHandler: Interface for handling work item faults
// =============================================================================

// FaultHandler is called on the worker goroutine for every faulted work item,
// including fire-and-forget items whose faults no caller can observe.
// Continuations dropped because their item had already finished are reported
// from the goroutine that completed the awaited task, so implementations must
// be safe for concurrent use.
//
// Implementations must not block: the worker waits for them.
type FaultHandler interface {
	// HandleFault is called after a work item returned an error or panicked.
	//
	// Parameters:
	// - pumpName: The name of the pump where the fault occurred
	// - fault: The captured fault, with stack trace when the work panicked
	HandleFault(pumpName string, fault *FaultError)
}

// LoggingFaultHandler logs faults through a Logger.
type LoggingFaultHandler struct {
	Logger Logger
}

// HandleFault logs the fault at error level.
func (h *LoggingFaultHandler) HandleFault(pumpName string, fault *FaultError) {
	if h == nil || h.Logger == nil {
		return
	}
	fields := []Field{
		F("pump", pumpName),
		F("item_id", fault.ItemID),
		F("item", fault.ItemName),
		F("kind", fault.Kind.String()),
		F("error", fault.Err),
	}
	if fault.Stack != nil {
		fields = append(fields, F("stack", string(fault.Stack)))
	}
	h.Logger.Error("work item faulted", fields...)
}

// FaultHandlerFunc adapts a function to FaultHandler.
type FaultHandlerFunc func(pumpName string, fault *FaultError)

func (f FaultHandlerFunc) HandleFault(pumpName string, fault *FaultError) {
	f(pumpName, fault)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting pump metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on the worker goroutine.
type Metrics interface {
	// RecordItemDuration records how long a work item took, from dispatch
	// until its continuations were drained.
	RecordItemDuration(pumpName string, kind ItemKind, duration time.Duration)

	// RecordItemFault records that a work item returned an error or panicked.
	RecordItemFault(pumpName string, kind ItemKind)

	// RecordQueueDepth records the number of items waiting in the work queue.
	RecordQueueDepth(pumpName string, depth int)

	// RecordItemRejected records that a submission was refused (e.g., after Dispose).
	RecordItemRejected(pumpName string, reason string)

	// RecordTransaction records a transaction transition: "begin", "commit" or "rollback".
	RecordTransaction(pumpName string, outcome string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordItemDuration(pumpName string, kind ItemKind, duration time.Duration) {}
func (m *NilMetrics) RecordItemFault(pumpName string, kind ItemKind)                         {}
func (m *NilMetrics) RecordQueueDepth(pumpName string, depth int)                            {}
func (m *NilMetrics) RecordItemRejected(pumpName string, reason string)                      {}
func (m *NilMetrics) RecordTransaction(pumpName string, outcome string)                      {}

// =============================================================================
// PumpConfig: Configuration for Pump
// =============================================================================

const defaultPumpName = "confined-worker"

// PumpConfig holds configuration options for a Pump.
// Zero-valued handlers are replaced by defaults in NewPump.
type PumpConfig struct {
	// Name identifies the pump in logs, metrics and history.
	Name string

	// AutoCommit decides how Dispose resolves a transaction left open:
	// commit when true, roll back when false.
	AutoCommit bool

	// AllowThreadMigration leaves the worker goroutine free to move between
	// OS threads. By default it is locked to one thread for its lifetime, which
	// resources backed by thread-local C state need.
	AllowThreadMigration bool

	// HistoryCapacity bounds the execution history ring buffer.
	HistoryCapacity int

	// Logger receives lifecycle and fault logs. Defaults to NewDefaultLogger().
	Logger Logger

	// Metrics is called to record pump metrics. Defaults to NilMetrics.
	Metrics Metrics

	// FaultHandler is called for every faulted item. Defaults to LoggingFaultHandler.
	FaultHandler FaultHandler
}

// DefaultPumpConfig returns a config with the default logger and metrics.
// FaultHandler is left nil so NewPump binds the logging handler to whatever
// Logger the caller ends up setting.
func DefaultPumpConfig() *PumpConfig {
	return &PumpConfig{
		Name:            defaultPumpName,
		HistoryCapacity: defaultHistoryCapacity,
		Logger:          NewDefaultLogger(),
		Metrics:         &NilMetrics{},
	}
}

// withDefaults returns a copy of cfg with empty fields filled in.
func (cfg *PumpConfig) withDefaults() PumpConfig {
	if cfg == nil {
		cfg = DefaultPumpConfig()
	}
	out := *cfg
	if out.Name == "" {
		out.Name = defaultPumpName
	}
	if out.HistoryCapacity < 1 {
		out.HistoryCapacity = defaultHistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.FaultHandler == nil {
		out.FaultHandler = &LoggingFaultHandler{Logger: out.Logger}
	}
	return out
}
