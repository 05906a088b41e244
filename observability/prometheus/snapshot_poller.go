package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-confined-pump/core"
)

// PumpSnapshotProvider provides current pump stats snapshots.
type PumpSnapshotProvider interface {
	Stats() core.PumpStats
}

// SnapshotPoller periodically exports pump Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	pumpsMu sync.RWMutex
	pumps   map[string]PumpSnapshotProvider

	pumpPending       *prom.GaugeVec
	pumpRunning       *prom.GaugeVec
	pumpInTransaction *prom.GaugeVec
	pumpClosed        *prom.GaugeVec
	pumpExecuted      *prom.GaugeVec
	pumpFaulted       *prom.GaugeVec
	pumpRejected      *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: defaultNamespace,
			Name:      name,
			Help:      help,
		}, []string{"pump"})
	}

	p := &SnapshotPoller{
		interval:          interval,
		pumps:             make(map[string]PumpSnapshotProvider),
		pumpPending:       gauge("pump_pending", "Number of queued work items per pump."),
		pumpRunning:       gauge("pump_running", "Pump executing an item (1=running, 0=idle)."),
		pumpInTransaction: gauge("pump_in_transaction", "Pump transaction state (1=open, 0=none)."),
		pumpClosed:        gauge("pump_closed", "Pump closed state (1=closed, 0=open)."),
		pumpExecuted:      gauge("pump_executed_total", "Pump executed item count snapshot."),
		pumpFaulted:       gauge("pump_faulted_total", "Pump faulted item count snapshot."),
		pumpRejected:      gauge("pump_rejected_total", "Pump rejected item count snapshot."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.pumpPending,
		&p.pumpRunning,
		&p.pumpInTransaction,
		&p.pumpClosed,
		&p.pumpExecuted,
		&p.pumpFaulted,
		&p.pumpRejected,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// AddPump adds or replaces a pump snapshot provider by name.
func (p *SnapshotPoller) AddPump(name string, provider PumpSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pump")
	p.pumpsMu.Lock()
	p.pumps[name] = provider
	p.pumpsMu.Unlock()
}

// RemovePump stops exporting a pump and deletes its series.
func (p *SnapshotPoller) RemovePump(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "pump")
	p.pumpsMu.Lock()
	delete(p.pumps, name)
	p.pumpsMu.Unlock()

	for _, g := range p.gauges() {
		g.DeleteLabelValues(name)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.pumpsMu.RLock()
	defer p.pumpsMu.RUnlock()

	for name, provider := range p.pumps {
		stats := provider.Stats()
		p.pumpPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.pumpRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.pumpInTransaction.WithLabelValues(name).Set(boolGauge(stats.InTransaction))
		p.pumpClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
		p.pumpExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.pumpFaulted.WithLabelValues(name).Set(float64(stats.Faulted))
		p.pumpRejected.WithLabelValues(name).Set(float64(stats.Rejected))
	}
}

func (p *SnapshotPoller) gauges() []*prom.GaugeVec {
	return []*prom.GaugeVec{
		p.pumpPending,
		p.pumpRunning,
		p.pumpInTransaction,
		p.pumpClosed,
		p.pumpExecuted,
		p.pumpFaulted,
		p.pumpRejected,
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
