package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates SLA urgency. The ladder is fixed:
// LOW < MEDIUM < HIGH < URGENT.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

var priorityLadder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// Valid reports whether the priority is one of the ladder levels.
func (p TicketPriority) Valid() bool {
	for _, level := range priorityLadder {
		if level == p {
			return true
		}
	}
	return false
}

// Next returns the priority one level up the ladder. The second result is
// false when the priority is already URGENT (or unknown).
func (p TicketPriority) Next() (TicketPriority, bool) {
	for i, level := range priorityLadder {
		if level == p && i < len(priorityLadder)-1 {
			return priorityLadder[i+1], true
		}
	}
	return p, false
}

// Above reports whether p sits higher on the ladder than other. Unknown
// priorities rank below every ladder level.
func (p TicketPriority) Above(other TicketPriority) bool {
	return p.rank() > other.rank()
}

func (p TicketPriority) rank() int {
	for i, level := range priorityLadder {
		if level == p {
			return i
		}
	}
	return -1
}

// Ticket is the aggregate for support requests. Version guards every write:
// the row is only updated when the stored version matches, so a sweep and a
// manual edit cannot both apply stale decisions.
type Ticket struct {
	ID          string
	ExternalKey string
	RequesterID string
	AssigneeID  *string
	Title       string
	Description string
	Category    string
	Status      TicketStatus
	Priority    TicketPriority

	// SLAPolicyID is snapshotted at creation and never re-resolved when the
	// policy catalog changes. Nil means the ticket is unmonitored.
	SLAPolicyID *string
	DueAt       *time.Time

	// ResolvedAt is set the first time the ticket reaches RESOLVED and is
	// never cleared afterwards.
	ResolvedAt *time.Time

	// EscalatedAt / EscalatedPriority record the last SLA escalation so a
	// ticket stuck at URGENT is not re-announced on every sweep.
	EscalatedAt       *time.Time
	EscalatedPriority *TicketPriority

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// IsActive reports whether the ticket is still subject to SLA monitoring.
func (t *Ticket) IsActive() bool {
	return t.Status == TicketStatusOpen || t.Status == TicketStatusInProgress
}
