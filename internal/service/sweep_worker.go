package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
)

// Sweeper is the part of the guard the worker drives
type Sweeper interface {
	Sweep(ctx context.Context) ([]domain.OffendingLine, error)
}

// SweepWorker periodically sweeps the state directory and logs every
// unexpected error line it finds
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	onFound  func([]domain.OffendingLine)
	stopChan chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	stats SweepStats
}

// SweepStats summarizes the sweeps run by a worker
type SweepStats struct {
	Sweeps    int
	Failures  int
	Offending int
	LastSweep time.Time
}

// NewSweepWorker creates a new sweep worker. onFound, if not nil, receives
// every non-empty sweep result.
func NewSweepWorker(sweeper Sweeper, interval time.Duration, onFound func([]domain.OffendingLine)) *SweepWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		onFound:  onFound,
		stopChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until ctx is
// cancelled or Stop is called
func (w *SweepWorker) Start(ctx context.Context) {
	log.Info().
		Dur("interval", w.interval).
		Msg("Starting sweep worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			w.runSweep(ctx)
		case <-w.stopChan:
			log.Info().Msg("Sweep worker stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Sweep worker context cancelled")
			return
		}
	}
}

// Stop stops the worker; it is safe to call more than once
func (w *SweepWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Stats returns a snapshot of the worker counters
func (w *SweepWorker) Stats() SweepStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *SweepWorker) runSweep(ctx context.Context) {
	startTime := time.Now()
	found, err := w.sweeper.Sweep(ctx)

	w.mu.Lock()
	w.stats.Sweeps++
	w.stats.LastSweep = startTime
	if err != nil {
		w.stats.Failures++
	}
	w.stats.Offending += len(found)
	w.mu.Unlock()

	if err != nil {
		log.Error().
			Err(err).
			Int("offending", len(found)).
			Dur("duration", time.Since(startTime)).
			Msg("Sweep failed")
	}

	for _, line := range found {
		log.Error().
			Str("file", line.File).
			Str("line", line.Line).
			Msg("Unexpected error in cluster log")
	}

	if len(found) > 0 && w.onFound != nil {
		w.onFound(found)
	}

	log.Debug().
		Int("offending", len(found)).
		Dur("duration", time.Since(startTime)).
		Msg("Sweep completed")
}
