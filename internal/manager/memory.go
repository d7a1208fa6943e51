package manager

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/flapjack/internal/log"
	"github.com/cuemby/flapjack/internal/metrics"
	"github.com/cuemby/flapjack/internal/types"
	"github.com/rs/zerolog"
)

// memoryObserverInterval mirrors the 5s cadence the teacher's
// HealthMonitor ticks container health checks at
// (pkg/worker/health_monitor.go).
const memoryObserverInterval = 5 * time.Second

const (
	defaultMemoryBudgetBytes    = 2 << 30 // 2GiB
	defaultConcurrentWriterCap  = 64
	criticalConcurrentWriterCap = 4
)

// MemoryObserver is the process-wide memory budget reporter of spec §5:
// it samples heap usage against a configured budget, republishes the
// usage as a watermark percentage, and applies two pieces of back-
// pressure derived from it — degrading the facet cache and shrinking
// the concurrent-writer limit — while crossing the high/critical
// thresholds. Adapted from the teacher's HealthMonitor ticker loop
// (pkg/worker/health_monitor.go), repurposed from container health
// polling to heap sampling.
type MemoryObserver struct {
	mgr         *Manager
	budgetBytes uint64
	highPercent int
	critPercent int
	logger      zerolog.Logger
	mu          sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewMemoryObserver builds an observer for mgr. budgetBytes<=0 uses a
// 2GiB default; high/critPercent<=0 fall back to 70/90.
func NewMemoryObserver(mgr *Manager, budgetBytes uint64, highPercent, critPercent int) *MemoryObserver {
	if budgetBytes == 0 {
		budgetBytes = defaultMemoryBudgetBytes
	}
	if highPercent <= 0 {
		highPercent = 70
	}
	if critPercent <= 0 {
		critPercent = 90
	}
	return &MemoryObserver{
		mgr:         mgr,
		budgetBytes: budgetBytes,
		highPercent: highPercent,
		critPercent: critPercent,
		logger:      log.WithComponent("memory-observer"),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the sampling loop in its own goroutine.
func (o *MemoryObserver) Start() {
	go o.run()
}

// Stop halts the sampling loop and waits for it to exit.
func (o *MemoryObserver) Stop() {
	close(o.stopCh)
	<-o.doneCh
}

func (o *MemoryObserver) run() {
	defer close(o.doneCh)

	ticker := time.NewTicker(memoryObserverInterval)
	defer ticker.Stop()

	o.logger.Info().Dur("interval", memoryObserverInterval).Msg("memory observer started")

	for {
		select {
		case <-ticker.C:
			o.sample()
		case <-o.stopCh:
			o.logger.Info().Msg("memory observer stopped")
			return
		}
	}
}

func (o *MemoryObserver) sample() {
	o.mu.Lock()
	defer o.mu.Unlock()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	percent := int(stats.Alloc * 100 / o.budgetBytes)
	metrics.MemoryWatermarkPercent.Set(float64(percent))

	degraded := percent >= o.highPercent
	o.mgr.facetCache.SetDegraded(degraded)

	switch {
	case percent >= o.critPercent:
		o.mgr.setWriterLimit(criticalConcurrentWriterCap)
		o.logger.Warn().Int("percent", percent).Msg("memory usage critical, writer concurrency capped")
	case percent >= o.highPercent:
		o.mgr.setWriterLimit(defaultConcurrentWriterCap / 2)
		o.logger.Warn().Int("percent", percent).Msg("memory usage high, facet cache degraded")
	default:
		o.mgr.setWriterLimit(defaultConcurrentWriterCap)
	}
}

// writerPermits is a process-wide semaphore bounding how many
// AddDocuments/DeleteDocuments calls may be building and
// enqueueing a write concurrently (spec §5: "concurrent writer limit is
// derived from the observer"). It is resized, not recreated, so
// in-flight acquires are never invalidated by a resize.
type writerPermits struct {
	limit atomic.Int64
	inUse atomic.Int64
}

func newWriterPermits(initial int64) *writerPermits {
	p := &writerPermits{}
	p.limit.Store(initial)
	return p
}

func (p *writerPermits) acquire() bool {
	for {
		limit := p.limit.Load()
		used := p.inUse.Load()
		if used >= limit {
			return false
		}
		if p.inUse.CompareAndSwap(used, used+1) {
			return true
		}
	}
}

func (p *writerPermits) release() {
	p.inUse.Add(-1)
}

func (p *writerPermits) setLimit(limit int64) {
	p.limit.Store(limit)
}

func (m *Manager) setWriterLimit(limit int64) {
	m.writerPermits.setLimit(limit)
}

// acquireWriterPermit enforces the concurrent-writer cap derived from
// the memory observer, returning ErrQueueFull (spec §7's producer-side
// backpressure error) when the process is over budget.
func (m *Manager) acquireWriterPermit() error {
	if m.writerPermits.acquire() {
		return nil
	}
	return types.ErrQueueFull
}

func (m *Manager) releaseWriterPermit() {
	m.writerPermits.release()
}
