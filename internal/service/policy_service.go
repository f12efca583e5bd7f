package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// PolicyService administers the SLA policy catalog. Changes affect only
// tickets created afterwards; existing tickets keep their snapshot.
type PolicyService struct {
	policies repository.SLAPolicyRepository
	tickets  repository.TicketRepository
}

// PolicyInput describes policy create/update payload.
type PolicyInput struct {
	Name                string
	Priority            domain.TicketPriority
	ResponseTimeHours   int
	ResolutionTimeHours int
	Active              bool
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.SLAPolicyRepository, tickets repository.TicketRepository) *PolicyService {
	return &PolicyService{policies: policies, tickets: tickets}
}

// List returns the whole catalog for administration.
func (s *PolicyService) List(ctx context.Context, actor *domain.User) ([]domain.SLAPolicy, error) {
	if !auth.CanPerform(actor, auth.ActionManagePolicies, nil) {
		return nil, apperrors.NewForbidden("policy administration requires an admin role")
	}
	return s.policies.List(ctx)
}

// Create adds a policy. When marked active, any previously active policy for
// the same priority is deactivated so at most one remains eligible.
func (s *PolicyService) Create(ctx context.Context, actor *domain.User, input PolicyInput) (*domain.SLAPolicy, error) {
	if !auth.CanPerform(actor, auth.ActionManagePolicies, nil) {
		return nil, apperrors.NewForbidden("policy administration requires an admin role")
	}
	if err := validatePolicyInput(input); err != nil {
		return nil, err
	}
	if input.Active {
		if err := s.deactivateExisting(ctx, input.Priority); err != nil {
			return nil, err
		}
	}
	policy := &domain.SLAPolicy{
		Name:                strings.TrimSpace(input.Name),
		Priority:            input.Priority,
		ResponseTimeHours:   input.ResponseTimeHours,
		ResolutionTimeHours: input.ResolutionTimeHours,
		Active:              input.Active,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Update edits a policy in place.
func (s *PolicyService) Update(ctx context.Context, actor *domain.User, id string, input PolicyInput) (*domain.SLAPolicy, error) {
	if !auth.CanPerform(actor, auth.ActionManagePolicies, nil) {
		return nil, apperrors.NewForbidden("policy administration requires an admin role")
	}
	if err := validatePolicyInput(input); err != nil {
		return nil, err
	}
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if input.Active && (!policy.Active || policy.Priority != input.Priority) {
		if err := s.deactivateExisting(ctx, input.Priority); err != nil {
			return nil, err
		}
	}
	policy.Name = strings.TrimSpace(input.Name)
	policy.Priority = input.Priority
	policy.ResponseTimeHours = input.ResponseTimeHours
	policy.ResolutionTimeHours = input.ResolutionTimeHours
	policy.Active = input.Active
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Delete removes an unreferenced policy. A policy referenced by any ticket
// is never deleted: ticket due-date semantics are a frozen snapshot of it.
func (s *PolicyService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if !auth.CanPerform(actor, auth.ActionManagePolicies, nil) {
		return apperrors.NewForbidden("policy administration requires an admin role")
	}
	count, err := s.tickets.CountByPolicy(ctx, id)
	if err != nil {
		return apperrors.MapError(err)
	}
	if count > 0 {
		return apperrors.NewConflict("policy is referenced by tickets; deactivate it instead",
			map[string]any{"tickets": count})
	}
	if err := s.policies.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *PolicyService) deactivateExisting(ctx context.Context, priority domain.TicketPriority) error {
	existing, err := s.policies.GetActiveByPriority(ctx, priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	existing.Active = false
	if err := s.policies.Update(ctx, existing); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func validatePolicyInput(input PolicyInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if !input.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.ResponseTimeHours <= 0 || input.ResolutionTimeHours <= 0 {
		return apperrors.NewValidationError("time budgets must be positive hours", nil)
	}
	return nil
}
