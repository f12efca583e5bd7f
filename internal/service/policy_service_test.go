package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

func policyFixture() (*PolicyService, *memPolicyRepo, *memTicketRepo, *domain.User, *domain.User) {
	policies := newMemPolicyRepo()
	tickets := newMemTicketRepo()
	service := NewPolicyService(policies, tickets)
	admin := &domain.User{ID: "admin-1", Role: domain.RoleAdmin, Status: domain.UserStatusActive}
	agent := &domain.User{ID: "agent-1", Role: domain.RoleAgent, Status: domain.UserStatusActive}
	return service, policies, tickets, admin, agent
}

func TestPolicyCreateKeepsOneActivePerPriority(t *testing.T) {
	service, policies, _, admin, _ := policyFixture()

	first, err := service.Create(context.Background(), admin, PolicyInput{
		Name:                "high v1",
		Priority:            domain.TicketPriorityHigh,
		ResponseTimeHours:   4,
		ResolutionTimeHours: 24,
		Active:              true,
	})
	require.NoError(t, err)

	second, err := service.Create(context.Background(), admin, PolicyInput{
		Name:                "high v2",
		Priority:            domain.TicketPriorityHigh,
		ResponseTimeHours:   2,
		ResolutionTimeHours: 12,
		Active:              true,
	})
	require.NoError(t, err)

	active, err := policies.GetActiveByPriority(context.Background(), domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	stored, err := policies.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestPolicyManagementRequiresAdmin(t *testing.T) {
	service, _, _, _, agent := policyFixture()

	_, err := service.Create(context.Background(), agent, PolicyInput{
		Name:                "nope",
		Priority:            domain.TicketPriorityLow,
		ResponseTimeHours:   1,
		ResolutionTimeHours: 2,
	})
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "FORBIDDEN", domainErr.Code)
}

func TestPolicyValidation(t *testing.T) {
	service, _, _, admin, _ := policyFixture()

	_, err := service.Create(context.Background(), admin, PolicyInput{
		Name:                "zero budget",
		Priority:            domain.TicketPriorityLow,
		ResponseTimeHours:   0,
		ResolutionTimeHours: 2,
	})
	require.Error(t, err)

	_, err = service.Create(context.Background(), admin, PolicyInput{
		Name:                "bad priority",
		Priority:            "CRITICAL",
		ResponseTimeHours:   1,
		ResolutionTimeHours: 2,
	})
	require.Error(t, err)
}

func TestPolicyDeleteRejectedWhenReferenced(t *testing.T) {
	service, _, tickets, admin, _ := policyFixture()

	policy, err := service.Create(context.Background(), admin, PolicyInput{
		Name:                "referenced",
		Priority:            domain.TicketPriorityMedium,
		ResponseTimeHours:   8,
		ResolutionTimeHours: 48,
		Active:              true,
	})
	require.NoError(t, err)

	require.NoError(t, tickets.Create(context.Background(), &domain.Ticket{
		ExternalKey: "TCK-REF",
		RequesterID: "user-1",
		Title:       "bound",
		Description: "bound",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityMedium,
		SLAPolicyID: &policy.ID,
	}))

	err = service.Delete(context.Background(), admin, policy.ID)
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "CONFLICT", domainErr.Code)

	// Existing tickets keep their snapshot; the policy can only be retired.
	_, err = service.Update(context.Background(), admin, policy.ID, PolicyInput{
		Name:                "referenced",
		Priority:            domain.TicketPriorityMedium,
		ResponseTimeHours:   8,
		ResolutionTimeHours: 48,
		Active:              false,
	})
	require.NoError(t, err)
}

func TestPolicyDeleteUnreferenced(t *testing.T) {
	service, policies, _, admin, _ := policyFixture()

	policy, err := service.Create(context.Background(), admin, PolicyInput{
		Name:                "orphan",
		Priority:            domain.TicketPriorityLow,
		ResponseTimeHours:   24,
		ResolutionTimeHours: 72,
		Active:              false,
	})
	require.NoError(t, err)

	require.NoError(t, service.Delete(context.Background(), admin, policy.ID))
	_, err = policies.GetByID(context.Background(), policy.ID)
	require.Error(t, err)
}
