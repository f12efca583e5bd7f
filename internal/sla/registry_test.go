package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestRegistryBindComputesDueDate(t *testing.T) {
	policies := newMemPolicyRepo()
	require.NoError(t, policies.Create(context.Background(), &domain.SLAPolicy{
		Name:                "high default",
		Priority:            domain.TicketPriorityHigh,
		ResponseTimeHours:   4,
		ResolutionTimeHours: 24,
		Active:              true,
	}))

	registry := NewRegistry(policies)
	createdAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	policyID, dueAt, err := registry.Bind(context.Background(), domain.TicketPriorityHigh, createdAt)
	require.NoError(t, err)
	require.NotNil(t, policyID)
	require.NotNil(t, dueAt)
	assert.Equal(t, createdAt.Add(24*time.Hour), *dueAt)
}

func TestRegistryBindWithoutPolicy(t *testing.T) {
	registry := NewRegistry(newMemPolicyRepo())

	policyID, dueAt, err := registry.Bind(context.Background(), domain.TicketPriorityLow, time.Now())
	require.NoError(t, err)
	assert.Nil(t, policyID)
	assert.Nil(t, dueAt)
}

func TestRegistryResolveIgnoresInactive(t *testing.T) {
	policies := newMemPolicyRepo()
	require.NoError(t, policies.Create(context.Background(), &domain.SLAPolicy{
		Name:                "retired",
		Priority:            domain.TicketPriorityMedium,
		ResponseTimeHours:   8,
		ResolutionTimeHours: 48,
		Active:              false,
	}))

	registry := NewRegistry(policies)
	policy, err := registry.Resolve(context.Background(), domain.TicketPriorityMedium)
	require.NoError(t, err)
	assert.Nil(t, policy)
}
