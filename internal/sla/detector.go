package sla

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Detector scans active monitored tickets and classifies each against its
// bound policy. The scan is a point-in-time read; escalation decisions are
// re-validated against the live row when applied.
type Detector struct {
	tickets  repository.TicketRepository
	policies repository.SLAPolicyRepository
	clock    Clock
	logger   *zap.Logger
}

// NewDetector builds a detector.
func NewDetector(tickets repository.TicketRepository, policies repository.SLAPolicyRepository, clock Clock, logger *zap.Logger) *Detector {
	return &Detector{tickets: tickets, policies: policies, clock: clock, logger: logger}
}

// Detect returns the violations present at the clock's current instant. A
// single ticket may yield both a response and a resolution violation in the
// same pass.
func (d *Detector) Detect(ctx context.Context) ([]domain.Violation, error) {
	candidates, err := d.tickets.ListActiveMonitored(ctx)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	cache := map[string]*domain.SLAPolicy{}
	var violations []domain.Violation

	for _, ticket := range candidates {
		if ticket.SLAPolicyID == nil {
			continue
		}
		policy, ok := cache[*ticket.SLAPolicyID]
		if !ok {
			policy, err = d.policies.GetByID(ctx, *ticket.SLAPolicyID)
			if err != nil {
				// A ticket bound to a vanished policy is unmonitorable;
				// skip it rather than abort the pass.
				d.logger.Warn("skipping ticket with unresolvable policy",
					zap.String("ticket_id", ticket.ID),
					zap.String("policy_id", *ticket.SLAPolicyID),
					zap.Error(err))
				continue
			}
			cache[*ticket.SLAPolicyID] = policy
		}

		elapsedHours := now.Sub(ticket.CreatedAt).Hours()

		if ticket.Status == domain.TicketStatusOpen && elapsedHours > float64(policy.ResponseTimeHours) {
			violations = append(violations, domain.Violation{
				Ticket:       ticket,
				Kind:         domain.ViolationResponse,
				HoursOverdue: elapsedHours - float64(policy.ResponseTimeHours),
			})
		}
		if elapsedHours > float64(policy.ResolutionTimeHours) {
			violations = append(violations, domain.Violation{
				Ticket:       ticket,
				Kind:         domain.ViolationResolution,
				HoursOverdue: elapsedHours - float64(policy.ResolutionTimeHours),
			})
		}
	}

	return violations, nil
}
