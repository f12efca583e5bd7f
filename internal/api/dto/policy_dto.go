package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// PolicyRequest is the create/update payload for SLA policies.
type PolicyRequest struct {
	Name                string                `json:"name"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   int                   `json:"response_time_hours"`
	ResolutionTimeHours int                   `json:"resolution_time_hours"`
	Active              bool                  `json:"active"`
}

// PolicyResponse payload.
type PolicyResponse struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   int                   `json:"response_time_hours"`
	ResolutionTimeHours int                   `json:"resolution_time_hours"`
	Active              bool                  `json:"active"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}
