package sla

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Registry resolves the active SLA policy for a priority level. It is a pure
// lookup over the policy catalog; binding decisions and due-date math live
// here so ticket creation stays a one-liner.
type Registry struct {
	policies repository.SLAPolicyRepository
}

// NewRegistry builds a registry over the policy store.
func NewRegistry(policies repository.SLAPolicyRepository) *Registry {
	return &Registry{policies: policies}
}

// Resolve returns the active policy for the priority, or (nil, nil) when no
// active policy is configured. A missing policy is not an error: tickets
// created under an unconfigured priority proceed unmonitored.
func (r *Registry) Resolve(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	policy, err := r.policies.GetActiveByPriority(ctx, priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Bind resolves the policy for the priority and, when one exists, returns its
// ID together with the computed due date for a ticket created at createdAt.
func (r *Registry) Bind(ctx context.Context, priority domain.TicketPriority, createdAt time.Time) (*string, *time.Time, error) {
	policy, err := r.Resolve(ctx, priority)
	if err != nil {
		return nil, nil, err
	}
	if policy == nil {
		return nil, nil, nil
	}
	due := policy.DueDate(createdAt)
	return &policy.ID, &due, nil
}
