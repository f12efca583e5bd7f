package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Outcome reports what an escalation attempt did.
type Outcome string

const (
	// OutcomeApplied means the ticket's priority was raised one level.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyAtMax means the ticket sits at URGENT; no raise happened.
	OutcomeAlreadyAtMax Outcome = "already_at_max"
	// OutcomeAlreadyEscalated means this pass has already escalated the
	// ticket (e.g. both violation kinds fired for it).
	OutcomeAlreadyEscalated Outcome = "already_escalated_this_pass"
	// OutcomeDiscarded means the ticket left the active states between
	// detection and escalation; the stale decision was dropped.
	OutcomeDiscarded Outcome = "discarded"
)

// Pass carries per-sweep escalation state so a ticket is escalated at most
// once per detection pass regardless of how many violation kinds matched.
// A Pass is not safe for concurrent use; the sweeper serializes access.
type Pass struct {
	seen map[string]struct{}
}

// NewPass starts a fresh escalation pass.
func NewPass() *Pass {
	return &Pass{seen: make(map[string]struct{})}
}

func (p *Pass) mark(ticketID string) bool {
	if _, ok := p.seen[ticketID]; ok {
		return false
	}
	p.seen[ticketID] = struct{}{}
	return true
}

// Escalator applies the escalation policy to detected violations. All writes
// go through the ticket repository's versioned update, so a concurrent manual
// edit or competing sweep makes the write fail and the decision is recomputed
// from a fresh read.
type Escalator struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
	retries    int
}

// NewEscalator builds an escalator. retries bounds how many times a version
// conflict is retried before the attempt is surfaced as transient failure.
func NewEscalator(tickets repository.TicketRepository, history repository.TicketHistoryRepository, dispatcher events.Dispatcher, clock Clock, logger *zap.Logger, retries int) *Escalator {
	if retries <= 0 {
		retries = 3
	}
	return &Escalator{
		tickets:    tickets,
		history:    history,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
		retries:    retries,
	}
}

// Escalate raises the violating ticket one priority level, saturating at
// URGENT. Stakeholders are notified only when the priority actually changed,
// or the first time a breach is seen on a ticket already at URGENT; a ticket
// stuck at URGENT is not re-announced on subsequent sweeps.
func (e *Escalator) Escalate(ctx context.Context, pass *Pass, violation domain.Violation) (Outcome, error) {
	if pass != nil && !pass.mark(violation.Ticket.ID) {
		return OutcomeAlreadyEscalated, nil
	}

	ticket := violation.Ticket
	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			fresh, err := e.tickets.GetByID(ctx, ticket.ID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return OutcomeDiscarded, nil
				}
				return "", err
			}
			ticket = *fresh

			// The conflicting write may have been a competing sweep's
			// escalation for the same breach. Raise again only after a
			// non-escalating edit (title, assignment, ...).
			if ticket.Priority.Above(violation.Ticket.Priority) ||
				escalatedAfter(ticket.EscalatedAt, violation.Ticket.EscalatedAt) {
				return OutcomeAlreadyEscalated, nil
			}
		}

		if !ticket.IsActive() {
			return OutcomeDiscarded, nil
		}

		now := e.clock.Now()
		next, ok := ticket.Priority.Next()
		if !ok {
			if ticket.EscalatedPriority != nil && *ticket.EscalatedPriority == ticket.Priority {
				// Breach at max priority already announced.
				return OutcomeAlreadyAtMax, nil
			}
			marked := ticket
			marked.EscalatedAt = &now
			urgent := ticket.Priority
			marked.EscalatedPriority = &urgent
			err := e.tickets.UpdateVersioned(ctx, &marked, ticket.Version)
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return OutcomeDiscarded, nil
				}
				return "", err
			}
			e.publish(ctx, &marked, violation, ticket.Priority, ticket.Priority)
			return OutcomeAlreadyAtMax, nil
		}

		updated := ticket
		updated.Priority = next
		updated.EscalatedAt = &now
		updated.EscalatedPriority = &next
		err := e.tickets.UpdateVersioned(ctx, &updated, ticket.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return OutcomeDiscarded, nil
			}
			return "", err
		}

		e.recordHistory(ctx, &updated, ticket.Priority, next, violation.Kind)
		e.publish(ctx, &updated, violation, ticket.Priority, next)
		e.logger.Info("ticket escalated",
			zap.String("ticket_id", updated.ID),
			zap.String("violation", string(violation.Kind)),
			zap.String("old_priority", string(ticket.Priority)),
			zap.String("new_priority", string(next)))
		return OutcomeApplied, nil
	}

	return "", fmt.Errorf("escalate ticket %s: %w", ticket.ID, repository.ErrVersionConflict)
}

// escalatedAfter reports whether the escalation marker moved forward
// relative to the violation snapshot.
func escalatedAfter(fresh, snapshot *time.Time) bool {
	if fresh == nil {
		return false
	}
	return snapshot == nil || fresh.After(*snapshot)
}

func (e *Escalator) recordHistory(ctx context.Context, ticket *domain.Ticket, oldPriority, newPriority domain.TicketPriority, kind domain.ViolationKind) {
	if e.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticket.ID,
		ChangeType: domain.ChangeTypeEscalation,
		OldValue: map[string]any{
			"priority": oldPriority,
		},
		NewValue: map[string]any{
			"priority":  newPriority,
			"violation": kind,
		},
	}
	if err := e.history.Create(ctx, entry); err != nil {
		e.logger.Warn("failed to record escalation history",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (e *Escalator) publish(ctx context.Context, ticket *domain.Ticket, violation domain.Violation, oldPriority, newPriority domain.TicketPriority) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLAEscalated,
		TicketID:  ticket.ID,
		Timestamp: e.clock.Now(),
		Payload: events.SLAEscalatedPayload{
			ViolationKind: violation.Kind,
			OldPriority:   oldPriority,
			NewPriority:   newPriority,
			HoursOverdue:  violation.HoursOverdue,
		},
	})
}
