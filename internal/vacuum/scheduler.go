package vacuum

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cadence is one of the adaptive pacing tiers the scheduler shifts
// between based on backlog size (spec.md §4.7 "adaptive cadence shifts
// the interval between Slow/Normal/Fast based on backlog size").
type Cadence int

const (
	CadenceNormal Cadence = iota
	CadenceSlow
	CadenceFast
)

func (c Cadence) multiplier() float64 {
	switch c {
	case CadenceSlow:
		return 4
	case CadenceFast:
		return 0.25
	default:
		return 1
	}
}

// BacklogFn reports a rough backlog size (e.g. pending version-log entries
// past the horizon) the scheduler uses to pick its next cadence tier.
type BacklogFn func() int

// adaptiveSchedule implements cron.Schedule by recomputing the next run
// time from the scheduler's current backlog reading every time the cron
// runner asks — the hook cron/v3 gives us for a cadence that isn't a
// fixed expression.
type adaptiveSchedule struct {
	s *Scheduler
}

func (a adaptiveSchedule) Next(t time.Time) time.Time {
	return t.Add(a.s.nextInterval())
}

// Scheduler drives periodic vacuum passes at an adaptive cadence, grounded
// on the teacher's job scheduler (`cron.Cron` plus a no-overlap guard per
// job, see DESIGN.md) — adapted here to a single recurring retention pass
// on an adaptive schedule instead of arbitrary CRON/INTERVAL/ONCE SQL jobs.
type Scheduler struct {
	deps *Deps
	cfg  Config

	backlog BacklogFn
	logger  *zap.Logger
	cron    *cron.Cron

	running atomic.Bool

	mu        sync.Mutex
	lastStats Stats
	lastErr   error
	cadence   Cadence
}

// NewScheduler constructs a scheduler over deps. backlog may be nil, in
// which case the cadence stays at CadenceNormal.
func NewScheduler(deps *Deps, cfg Config, backlog BacklogFn) *Scheduler {
	cfg.withDefaults()
	s := &Scheduler{
		deps:    deps,
		cfg:     cfg,
		backlog: backlog,
		logger:  deps.logger(),
	}
	s.cron = cron.New(cron.WithLocation(time.UTC))
	return s
}

// Start begins the background ticking loop. It is a no-op if the
// scheduler is disabled in its config.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.logger.Info("vacuum scheduler disabled")
		return
	}
	s.cron.Schedule(adaptiveSchedule{s: s}, cron.FuncJob(s.runOnce))
	s.cron.Start()
}

// Stop halts the ticking loop and waits for any in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) nextInterval() time.Duration {
	cadence := CadenceNormal
	if s.backlog != nil {
		switch n := s.backlog(); {
		case n > s.cfg.MaxEntriesPerPass:
			cadence = CadenceFast
		case n == 0:
			cadence = CadenceSlow
		}
	}
	s.mu.Lock()
	s.cadence = cadence
	s.mu.Unlock()
	return time.Duration(float64(s.cfg.Interval) * cadence.multiplier())
}

// runOnce executes a single pass if one is not already in flight
// (spec.md §4.7 "a reentrancy guard ensures at most one pass at a time").
func (s *Scheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("vacuum pass already running, skipping tick")
		return
	}
	defer s.running.Store(false)

	stats, err := Pass(s.deps, s.cfg)
	s.mu.Lock()
	s.lastStats = stats
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("vacuum pass failed", zap.Error(err))
	}
}

// TriggerNow runs a pass immediately, outside the regular tick, honoring
// the same reentrancy guard (spec.md §6 "trigger_vacuum").
func (s *Scheduler) TriggerNow() (Stats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Stats{}, errAlreadyRunning
	}
	defer s.running.Store(false)
	stats, err := Pass(s.deps, s.cfg)
	s.mu.Lock()
	s.lastStats = stats
	s.lastErr = err
	s.mu.Unlock()
	return stats, err
}

// LastResult returns the stats and error from the most recently completed
// pass.
func (s *Scheduler) LastResult() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats, s.lastErr
}

// CurrentCadence reports the cadence tier the scheduler last selected.
func (s *Scheduler) CurrentCadence() Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}
