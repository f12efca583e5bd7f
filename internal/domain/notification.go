package domain

import "time"

// NotificationType tags in-app notifications by the event that produced them.
type NotificationType string

const (
	NotificationTicketCreated  NotificationType = "ticket_created"
	NotificationTicketAssigned NotificationType = "ticket_assigned"
	NotificationStatusChanged  NotificationType = "ticket_status_changed"
	NotificationTicketResolved NotificationType = "ticket_resolved"
	NotificationSLAEscalated   NotificationType = "sla_escalated"
	NotificationCommentAdded   NotificationType = "ticket_comment_added"
)

// Notification is an in-app message for a single recipient. Rows are created
// exclusively by the notification service and are immutable except for the
// read flag, which belongs to the recipient. EventID dedupes delivery per
// (event, recipient).
type Notification struct {
	ID        string
	UserID    string
	TicketID  string
	EventID   string
	Type      NotificationType
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}
