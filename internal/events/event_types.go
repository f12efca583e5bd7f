package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketResolved      EventType = "ticket_resolved"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
	EventSLAEscalated        EventType = "sla_escalated"
)

// Event represents a domain event emitted by services. ActorID is nil for
// system-driven events such as SLA escalations.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	RequesterID string                `json:"requester_id"`
	Title       string                `json:"title"`
	Category    string                `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Monitored   bool                  `json:"monitored"`
	DueAt       *time.Time            `json:"due_at,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	ResolvedAt time.Time `json:"resolved_at"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID  string                   `json:"comment_id"`
	AuthorID   string                   `json:"author_id"`
	Visibility domain.CommentVisibility `json:"visibility"`
}

// SLAEscalatedPayload payload.
type SLAEscalatedPayload struct {
	ViolationKind domain.ViolationKind  `json:"violation_kind"`
	OldPriority   domain.TicketPriority `json:"old_priority"`
	NewPriority   domain.TicketPriority `json:"new_priority"`
	HoursOverdue  float64               `json:"hours_overdue"`
}
