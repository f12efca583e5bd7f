package sla

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

const sweepLockKey = "helpdesk:sla:sweep"

// Sweeper runs the violation detection pass on a fixed interval and on
// demand. Both triggers funnel into the same pass; overlapping instances are
// kept apart by a best-effort redis lease, and per-ticket versioned writes
// keep correctness even when the lease is unavailable.
type Sweeper struct {
	detector  *Detector
	escalator *Escalator
	redis     *persistence.Redis
	metrics   *observability.Metrics
	logger    *zap.Logger
	interval  time.Duration
	workers   int
	lockTTL   time.Duration

	trigger chan struct{}
	owner   string
}

// NewSweeper builds the background sweeper.
func NewSweeper(detector *Detector, escalator *Escalator, redis *persistence.Redis, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration, workers int, lockTTL time.Duration) *Sweeper {
	if workers <= 0 {
		workers = 4
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		detector:  detector,
		escalator: escalator,
		redis:     redis,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		workers:   workers,
		lockTTL:   lockTTL,
		trigger:   make(chan struct{}, 1),
		owner:     uuid.NewString(),
	}
}

// TriggerNow requests an immediate pass, typically after a status mutation.
// Non-blocking; a pending request already covers the caller.
func (s *Sweeper) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled. An in-flight pass finishes its started
// ticket work and abandons the rest on shutdown.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sla sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("workers", s.workers))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sla sweeper stopped")
			return
		case <-ticker.C:
			s.RunPass(ctx)
		case <-s.trigger:
			s.RunPass(ctx)
		}
	}
}

// RunPass executes one detection and escalation pass. Failures are logged,
// never fatal; the next scheduled run picks up where this one left off.
func (s *Sweeper) RunPass(ctx context.Context) {
	if !s.acquireLease(ctx) {
		return
	}
	defer s.releaseLease(ctx)

	violations, err := s.detector.Detect(ctx)
	if err != nil {
		s.logger.Error("violation detection failed", zap.Error(err))
		return
	}
	if len(violations) == 0 {
		s.metrics.RecordSweep(0, 0)
		return
	}

	// Collapse per ticket: when both kinds fired in the same pass, the
	// resolution breach is the one escalated and announced.
	byTicket := make(map[string]domain.Violation, len(violations))
	for _, v := range violations {
		existing, ok := byTicket[v.Ticket.ID]
		if !ok || v.Kind == domain.ViolationResolution && existing.Kind == domain.ViolationResponse {
			byTicket[v.Ticket.ID] = v
		}
	}

	work := make(chan domain.Violation)
	var wg sync.WaitGroup
	var applied int64
	var appliedMu sync.Mutex

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for violation := range work {
				if ctx.Err() != nil {
					return
				}
				// byTicket already guarantees one attempt per ticket, so
				// workers can share a nil pass.
				outcome, err := s.escalator.Escalate(ctx, nil, violation)
				if err != nil {
					s.logger.Warn("escalation attempt failed",
						zap.String("ticket_id", violation.Ticket.ID),
						zap.Error(err))
					continue
				}
				if outcome == OutcomeApplied {
					appliedMu.Lock()
					applied++
					appliedMu.Unlock()
				}
			}
		}()
	}

dispatch:
	for _, violation := range byTicket {
		select {
		case <-ctx.Done():
			break dispatch
		case work <- violation:
		}
	}
	close(work)
	wg.Wait()

	s.metrics.RecordSweep(len(violations), int(applied))
	s.logger.Info("sla sweep complete",
		zap.Int("violations", len(violations)),
		zap.Int64("escalations", applied))
}

func (s *Sweeper) acquireLease(ctx context.Context) bool {
	if s.redis == nil || s.redis.Client == nil {
		return true
	}
	ok, err := s.redis.AcquireLock(ctx, sweepLockKey, s.owner, s.lockTTL)
	if err != nil {
		// Lease is an optimization, not a correctness requirement.
		s.logger.Warn("sweep lease unavailable; proceeding without it", zap.Error(err))
		return true
	}
	if !ok {
		s.logger.Debug("sweep skipped; another instance holds the lease")
	}
	return ok
}

func (s *Sweeper) releaseLease(ctx context.Context) {
	if s.redis == nil || s.redis.Client == nil {
		return
	}
	if err := s.redis.ReleaseLock(ctx, sweepLockKey, s.owner); err != nil {
		s.logger.Debug("sweep lease release failed", zap.Error(err))
	}
}
