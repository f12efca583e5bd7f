package domain

import "time"

// SLAPolicy is a named time-budget pair bound to a priority level. At most
// one active policy per priority is eligible for binding to new tickets.
// Budgets are business hours; resolution >= response is recommended but not
// enforced.
type SLAPolicy struct {
	ID                  string
	Name                string
	Priority            TicketPriority
	ResponseTimeHours   int
	ResolutionTimeHours int
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DueDate computes the resolution deadline for a ticket created at the given
// instant under this policy.
func (p *SLAPolicy) DueDate(createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(p.ResolutionTimeHours) * time.Hour)
}
