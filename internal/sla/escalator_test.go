package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

func escalatorFixture(t *testing.T, now time.Time) (*Escalator, *memTicketRepo, *memHistoryRepo, *recordingDispatcher) {
	t.Helper()
	tickets := newMemTicketRepo()
	history := &memHistoryRepo{}
	dispatcher := &recordingDispatcher{}
	escalator := NewEscalator(tickets, history, dispatcher, &fixedClock{now: now}, zaptest.NewLogger(t), 3)
	return escalator, tickets, history, dispatcher
}

func violationFor(ticket *domain.Ticket, kind domain.ViolationKind) domain.Violation {
	return domain.Violation{Ticket: *ticket, Kind: kind, HoursOverdue: 2.5}
}

func TestEscalateRaisesOneLevel(t *testing.T) {
	now := time.Now()
	escalator, tickets, history, dispatcher := escalatorFixture(t, now)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityMedium, "policy-1", now.Add(-6*time.Hour))

	outcome, err := escalator.Escalate(context.Background(), NewPass(), violationFor(ticket, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	require.NotNil(t, stored.EscalatedAt)
	require.NotNil(t, stored.EscalatedPriority)
	assert.Equal(t, domain.TicketPriorityHigh, *stored.EscalatedPriority)
	assert.Equal(t, int64(2), stored.Version)

	require.Len(t, history.entries, 1)
	assert.Equal(t, domain.ChangeTypeEscalation, history.entries[0].ChangeType)
	assert.Nil(t, history.entries[0].ChangedByID)

	published := dispatcher.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventSLAEscalated, published[0].Type)
	payload, ok := published[0].Payload.(events.SLAEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.TicketPriorityMedium, payload.OldPriority)
	assert.Equal(t, domain.TicketPriorityHigh, payload.NewPriority)
}

func TestEscalateOncePerPass(t *testing.T) {
	now := time.Now()
	escalator, tickets, _, dispatcher := escalatorFixture(t, now)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityLow, "policy-1", now.Add(-6*time.Hour))

	pass := NewPass()
	outcome, err := escalator.Escalate(context.Background(), pass, violationFor(ticket, domain.ViolationResponse))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// Second kind in the same pass must not raise a second level.
	outcome, err = escalator.Escalate(context.Background(), pass, violationFor(ticket, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyEscalated, outcome)

	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, stored.Priority)
	assert.Len(t, dispatcher.published(), 1)
}

func TestEscalateSaturatesAtUrgent(t *testing.T) {
	now := time.Now()
	escalator, tickets, history, dispatcher := escalatorFixture(t, now)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityUrgent, "policy-1", now.Add(-48*time.Hour))

	// First breach at max: announced once and marked.
	outcome, err := escalator.Escalate(context.Background(), NewPass(), violationFor(ticket, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAtMax, outcome)

	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, stored.Priority)
	require.NotNil(t, stored.EscalatedPriority)
	assert.Equal(t, domain.TicketPriorityUrgent, *stored.EscalatedPriority)
	assert.Len(t, dispatcher.published(), 1)
	assert.Empty(t, history.entries)

	// Next sweep sees the marker: no write, no re-announcement.
	outcome, err = escalator.Escalate(context.Background(), NewPass(), violationFor(stored, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAtMax, outcome)
	assert.Len(t, dispatcher.published(), 1)

	final, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, final.Version)
}

func TestEscalateDiscardsResolvedTicket(t *testing.T) {
	now := time.Now()
	escalator, tickets, _, dispatcher := escalatorFixture(t, now)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityMedium, "policy-1", now.Add(-6*time.Hour))

	// Resolved between detection and escalation.
	snapshot := *ticket
	resolved, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	resolvedAt := now
	resolved.Status = domain.TicketStatusResolved
	resolved.ResolvedAt = &resolvedAt
	require.NoError(t, tickets.UpdateVersioned(context.Background(), resolved, resolved.Version))

	outcome, err := escalator.Escalate(context.Background(), NewPass(), violationFor(&snapshot, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.Empty(t, dispatcher.published())

	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, stored.Priority)
}

func TestEscalateRetriesOnStaleSnapshot(t *testing.T) {
	now := time.Now()
	escalator, tickets, _, _ := escalatorFixture(t, now)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityMedium, "policy-1", now.Add(-6*time.Hour))

	// A concurrent edit bumps the version; the snapshot the detector took is
	// now stale and the first CAS write must fail.
	stale := *ticket
	edited, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	edited.Title = "updated concurrently"
	require.NoError(t, tickets.UpdateVersioned(context.Background(), edited, edited.Version))

	outcome, err := escalator.Escalate(context.Background(), NewPass(), violationFor(&stale, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.Equal(t, "updated concurrently", stored.Title)
}

func TestEscalateCompetingSweepRaisesOnlyOneLevel(t *testing.T) {
	now := time.Now()
	escalator, tickets, history, dispatcher := escalatorFixture(t, now)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityMedium, "policy-1", now.Add(-6*time.Hour))

	// Two sweep instances detect the same breach. The first wins the CAS
	// write and raises MEDIUM to HIGH.
	stale := *ticket
	outcome, err := escalator.Escalate(context.Background(), NewPass(), violationFor(ticket, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// The loser retries from its stale snapshot and must recognize the
	// competing escalation instead of raising a second level.
	outcome, err = escalator.Escalate(context.Background(), NewPass(), violationFor(&stale, domain.ViolationResolution))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyEscalated, outcome)

	stored, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.Equal(t, int64(2), stored.Version)
	assert.Len(t, history.entries, 1)
	assert.Len(t, dispatcher.published(), 1)
}

func TestEscalateSurfacesExhaustedRetries(t *testing.T) {
	now := time.Now()
	tickets := newMemTicketRepo()
	conflicting := &alwaysConflictRepo{memTicketRepo: tickets}
	escalator := NewEscalator(conflicting, &memHistoryRepo{}, &recordingDispatcher{}, &fixedClock{now: now}, zaptest.NewLogger(t), 3)
	ticket := seedTicket(t, tickets, domain.TicketStatusOpen, domain.TicketPriorityMedium, "policy-1", now.Add(-6*time.Hour))

	_, err := escalator.Escalate(context.Background(), NewPass(), violationFor(ticket, domain.ViolationResolution))
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrVersionConflict))
	assert.Equal(t, 3, conflicting.attempts)
}

// alwaysConflictRepo simulates a row that keeps moving under the escalator.
type alwaysConflictRepo struct {
	*memTicketRepo
	attempts int
}

func (r *alwaysConflictRepo) UpdateVersioned(context.Context, *domain.Ticket, int64) error {
	r.attempts++
	return repository.ErrVersionConflict
}
