package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// runHistoryLimit is the number of cycle results kept in the run store.
const runHistoryLimit = 100

// Scheduler runs triage cycles at a fixed interval.
// Cycles never overlap: the next tick is only observed once a cycle returns.
type Scheduler struct {
	interval time.Duration
	poller   driving.Poller
	runs     driven.RunStore

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. runs may be nil to skip recording results.
func NewScheduler(interval time.Duration, poller driving.Poller, runs driven.RunStore) *Scheduler {
	if interval <= 0 {
		interval = domain.DefaultSettings().Poll.Interval
	}
	return &Scheduler{
		interval: interval,
		poller:   poller,
		runs:     runs,
	}
}

// Start runs a cycle immediately and then once per interval.
// It blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	logger.Info("scheduler started", "interval", s.interval)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// Stop ends the loop and waits for a running cycle to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
}

// runCycle executes one cycle and records its result.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	result, err := s.poller.RunCycle(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("cycle failed", "error", err)
	}
	if result == nil || s.runs == nil {
		return
	}

	// Recording must survive cancellation of the cycle context.
	rctx := context.WithoutCancel(ctx)
	if err := s.runs.Record(rctx, result); err != nil {
		logger.Warn("failed to record cycle result", "error", err)
	}
	if err := s.runs.Prune(rctx, runHistoryLimit); err != nil {
		logger.Warn("failed to prune cycle history", "error", err)
	}
}
