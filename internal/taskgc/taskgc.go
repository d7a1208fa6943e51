// Package taskgc implements the periodic oldest-first task-table
// eviction sweep. Adapted from the teacher's pkg/scheduler/scheduler.go
// (ticker loop, mutex-guarded cycle, per-cycle error logging);
// repurposed from container scheduling to task-table maintenance.
//
// Admission already enforces the per-tenant cap inline at task
// creation (spec §4.8); this sweep is a periodic backstop re-asserting
// the same invariant across every loaded tenant, the same
// reconcile-even-though-usually-unnecessary shape the teacher's
// reconciler uses for node/container state.
package taskgc

import (
	"sync"
	"time"

	"github.com/cuemby/flapjack/internal/log"
	"github.com/rs/zerolog"
)

// Trimmer enumerates loaded tenants and trims one's task table to its
// configured cap. Satisfied by *manager.Manager.
type Trimmer interface {
	Tenants() []string
	TrimTasks(tenant string) int
}

// GC runs the periodic sweep.
type GC struct {
	trimmer  Trimmer
	interval time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
}

const defaultInterval = time.Minute

// New builds a GC. interval <= 0 uses the default sweep period.
func New(trimmer Trimmer, interval time.Duration) *GC {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &GC{
		trimmer:  trimmer,
		interval: interval,
		logger:   log.WithComponent("taskgc"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in its own goroutine.
func (g *GC) Start() {
	go g.run()
}

// Stop halts the sweep loop and waits for it to exit.
func (g *GC) Stop() {
	close(g.stopCh)
	<-g.doneCh
}

func (g *GC) run() {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.logger.Info().Dur("interval", g.interval).Msg("task gc started")

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.stopCh:
			g.logger.Info().Msg("task gc stopped")
			return
		}
	}
}

func (g *GC) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, tenant := range g.trimmer.Tenants() {
		if n := g.trimmer.TrimTasks(tenant); n > 0 {
			g.logger.Debug().Str("tenant", tenant).Int("evicted", n).Msg("trimmed task table")
		}
	}
}
