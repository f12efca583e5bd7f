package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// escalationRecipientRoles receive SLA escalation broadcasts; triageRoles
// receive new-ticket broadcasts.
var (
	escalationRecipientRoles = []domain.Role{domain.RoleAdmin, domain.RoleSuperadmin}
	triageRoles              = []domain.Role{domain.RoleAdmin, domain.RoleSuperadmin}
)

// NotificationService turns domain events into in-app notification records
// and best-effort emails. Record creation is idempotent per (event,
// recipient); delivery failures are logged and never surfaced to the
// operation that produced the event.
type NotificationService struct {
	notifications repository.NotificationRepository
	tickets       repository.TicketRepository
	users         repository.UserRepository
	dispatcher    events.Dispatcher
	mailer        notify.Mailer
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	TicketRepo       repository.TicketRepository
	UserRepo         repository.UserRepository
	Dispatcher       events.Dispatcher
	Mailer           notify.Mailer
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		notifications: deps.NotificationRepo,
		tickets:       deps.TicketRepo,
		users:         deps.UserRepo,
		dispatcher:    deps.Dispatcher,
		mailer:        deps.Mailer,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}
}

// RegisterHandlers subscribes to the events this service reacts to.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketResolved, n.handleTicketResolved)
	n.dispatcher.Subscribe(events.EventSLAEscalated, n.handleSLAEscalated)
}

// ListForUser returns a user's notifications.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	return n.notifications.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkRead flips the read flag; only the recipient may do so.
func (n *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return n.notifications.MarkRead(ctx, userID, notificationID)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	ticket, err := n.ticketFor(ctx, event)
	if err != nil {
		return err
	}
	n.deliver(ctx, event, ticket, ticket.RequesterID, domain.NotificationTicketCreated,
		"Ticket created",
		fmt.Sprintf("Your ticket %s %q has been created.", ticket.ExternalKey, ticket.Title))
	n.broadcast(ctx, event, ticket, triageRoles, domain.NotificationTicketCreated,
		"New ticket filed",
		fmt.Sprintf("Ticket %s %q was filed and awaits triage.", ticket.ExternalKey, ticket.Title))
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	ticket, err := n.ticketFor(ctx, event)
	if err != nil {
		return err
	}
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	n.deliver(ctx, event, ticket, payload.AssigneeID, domain.NotificationTicketAssigned,
		"Ticket assigned to you",
		fmt.Sprintf("You have been assigned ticket %s %q.", ticket.ExternalKey, ticket.Title))
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	ticket, err := n.ticketFor(ctx, event)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Status of ticket %s changed.", ticket.ExternalKey)
	if payload, ok := event.Payload.(events.TicketStatusChangedPayload); ok {
		message = fmt.Sprintf("Status of ticket %s changed from %s to %s.",
			ticket.ExternalKey, payload.OldStatus, payload.NewStatus)
	}
	n.deliver(ctx, event, ticket, ticket.RequesterID, domain.NotificationStatusChanged,
		"Ticket status updated", message)
	return nil
}

func (n *NotificationService) handleTicketResolved(ctx context.Context, event events.Event) error {
	ticket, err := n.ticketFor(ctx, event)
	if err != nil {
		return err
	}
	n.deliver(ctx, event, ticket, ticket.RequesterID, domain.NotificationTicketResolved,
		"Ticket resolved",
		fmt.Sprintf("Your ticket %s %q has been resolved.", ticket.ExternalKey, ticket.Title))
	return nil
}

func (n *NotificationService) handleSLAEscalated(ctx context.Context, event events.Event) error {
	ticket, err := n.ticketFor(ctx, event)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Ticket %s %q breached its SLA.", ticket.ExternalKey, ticket.Title)
	if payload, ok := event.Payload.(events.SLAEscalatedPayload); ok {
		message = fmt.Sprintf("Ticket %s %q breached its %s SLA (%.1fh overdue); priority is now %s.",
			ticket.ExternalKey, ticket.Title, payload.ViolationKind, payload.HoursOverdue, payload.NewPriority)
	}
	n.broadcast(ctx, event, ticket, escalationRecipientRoles, domain.NotificationSLAEscalated,
		"SLA violation", message)
	return nil
}

func (n *NotificationService) ticketFor(ctx context.Context, event events.Event) (*domain.Ticket, error) {
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ticket, nil
}

func (n *NotificationService) broadcast(ctx context.Context, event events.Event, ticket *domain.Ticket, roles []domain.Role, kind domain.NotificationType, title, message string) {
	if ticket == nil {
		return
	}
	recipients, err := n.users.ListByRoles(ctx, roles...)
	if err != nil {
		n.logger.Warn("failed to resolve broadcast recipients",
			zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	for _, recipient := range recipients {
		n.deliver(ctx, event, ticket, recipient.ID, kind, title, message)
	}
}

// deliver creates the in-app record and attempts the email send. Both are
// independent side effects; neither failure reaches the caller.
func (n *NotificationService) deliver(ctx context.Context, event events.Event, ticket *domain.Ticket, recipientID string, kind domain.NotificationType, title, message string) {
	if ticket == nil || recipientID == "" {
		return
	}
	record := &domain.Notification{
		UserID:   recipientID,
		TicketID: ticket.ID,
		EventID:  event.ID,
		Type:     kind,
		Title:    title,
		Message:  message,
	}
	created, err := n.notifications.Create(ctx, record)
	if err != nil {
		n.logger.Warn("failed to persist notification",
			zap.String("event_id", event.ID),
			zap.String("recipient", recipientID),
			zap.Error(err))
	} else if created {
		n.metrics.RecordNotification(1)
	} else {
		// Duplicate (event, recipient); already delivered.
		return
	}

	recipient, err := n.users.GetByID(ctx, recipientID)
	if err != nil {
		n.logger.Warn("failed to load notification recipient",
			zap.String("recipient", recipientID), zap.Error(err))
		return
	}
	if err := n.mailer.Send(ctx, recipient.Email, title, message); err != nil {
		n.logger.Warn("email delivery failed",
			zap.String("recipient", recipient.Email),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}
