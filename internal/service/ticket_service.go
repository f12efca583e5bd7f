package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketService coordinates ticket workflows: creation with SLA binding,
// lifecycle transitions, assignment and the comment thread. Every mutation
// of a ticket row is a versioned conditional write retried a bounded number
// of times.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	registry   *sla.Registry
	dispatcher events.Dispatcher
	clock      sla.Clock
	retries    int

	// afterStatusChange is invoked after a successful status mutation,
	// typically to trigger an immediate SLA sweep.
	afterStatusChange func()
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Registry    *sla.Registry
	Dispatcher  events.Dispatcher
	Clock       sla.Clock
	Retries     int
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	Priority    domain.TicketPriority
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Category    *string
	AssigneeID  *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = sla.SystemClock()
	}
	retries := deps.Retries
	if retries <= 0 {
		retries = 3
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		retries:    retries,
	}
}

// OnStatusChange registers a hook run after each successful status mutation.
func (s *TicketService) OnStatusChange(hook func()) {
	s.afterStatusChange = hook
}

// CreateTicket files a new ticket for the requester, binding the active SLA
// policy for its priority. A missing policy never blocks creation; the
// ticket simply proceeds unmonitored.
func (s *TicketService) CreateTicket(ctx context.Context, requester *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	now := s.clock.Now()
	policyID, dueAt, err := s.registry.Bind(ctx, priority, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: requester.ID,
		Title:       title,
		Description: description,
		Category:    strings.TrimSpace(input.Category),
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		SLAPolicyID: policyID,
		DueAt:       dueAt,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  &requester.ID,
		Payload: events.TicketCreatedPayload{
			RequesterID: requester.ID,
			Title:       ticket.Title,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			Monitored:   policyID != nil,
			DueAt:       dueAt,
		},
	})
	return ticket, nil
}

// ListUserTickets returns tickets filed by the user.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := s.repoFilter(filter)
	repoFilter.RequesterID = &userID
	return s.tickets.ListWithFilter(ctx, repoFilter)
}

// ListStaffTickets returns tickets across all requesters.
func (s *TicketService) ListStaffTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	return s.tickets.ListWithFilter(ctx, s.repoFilter(filter))
}

// GetTicket fetches a ticket with its visible comments for the actor.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, []domain.Comment, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !auth.CanPerform(actor, auth.ActionViewTicket, ticket) {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if !actor.Role.IsStaff() {
		visible := make([]domain.Comment, 0, len(comments))
		for _, comment := range comments {
			if comment.Visibility == domain.CommentPublic {
				visible = append(visible, comment)
			}
		}
		comments = visible
	}
	return ticket, comments, nil
}

// UpdateStatus applies a lifecycle transition requested by staff. A repeat
// "resolved" request on an already-resolved ticket is a no-op, not an error.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if !auth.CanPerform(actor, auth.ActionUpdateStatus, nil) {
		return nil, apperrors.NewForbidden("status changes require a staff role")
	}

	var result *domain.Ticket
	err := s.withRetry(ctx, ticketID, func(ticket *domain.Ticket) (bool, error) {
		if ticket.Status == newStatus {
			// Idempotent re-request; nothing to write.
			result = ticket
			return false, nil
		}
		if !isValidTransition(ticket.Status, newStatus) {
			return false, apperrors.NewValidationError("invalid status transition", map[string]any{
				"from": ticket.Status,
				"to":   newStatus,
			})
		}

		oldStatus := ticket.Status
		now := s.clock.Now()
		ticket.Status = newStatus
		if newStatus == domain.TicketStatusResolved && ticket.ResolvedAt == nil {
			ticket.ResolvedAt = &now
		}
		if newStatus == domain.TicketStatusClosed {
			ticket.ClosedAt = &now
		}

		if err := s.tickets.UpdateVersioned(ctx, ticket, ticket.Version); err != nil {
			return false, err
		}

		s.recordStatusChange(ctx, &actor.ID, ticket.ID, oldStatus, newStatus, comment)
		if newStatus == domain.TicketStatusResolved {
			s.publishEvent(ctx, events.Event{
				Type:     events.EventTicketResolved,
				TicketID: ticket.ID,
				ActorID:  &actor.ID,
				Payload:  events.TicketResolvedPayload{ResolvedAt: *ticket.ResolvedAt},
			})
		} else {
			s.publishEvent(ctx, events.Event{
				Type:     events.EventTicketStatusChanged,
				TicketID: ticket.ID,
				ActorID:  &actor.ID,
				Payload: events.TicketStatusChangedPayload{
					OldStatus: oldStatus,
					NewStatus: newStatus,
					Comment:   comment,
				},
			})
		}
		result = ticket
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePriority changes ticket priority manually.
func (s *TicketService) UpdatePriority(ctx context.Context, actor *domain.User, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !auth.CanPerform(actor, auth.ActionUpdatePriority, nil) {
		return nil, apperrors.NewForbidden("priority changes require a staff role")
	}
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}

	var result *domain.Ticket
	err := s.withRetry(ctx, ticketID, func(ticket *domain.Ticket) (bool, error) {
		if ticket.Priority == newPriority {
			result = ticket
			return false, nil
		}
		oldPriority := ticket.Priority
		ticket.Priority = newPriority
		if err := s.tickets.UpdateVersioned(ctx, ticket, ticket.Version); err != nil {
			return false, err
		}
		s.recordHistory(ctx, &actor.ID, ticket.ID, domain.ChangeTypePriority,
			map[string]any{"priority": oldPriority},
			map[string]any{"priority": newPriority})
		result = ticket
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Assign places the ticket with an agent and forces IN_PROGRESS. The target
// must hold the agent capability.
func (s *TicketService) Assign(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	if !auth.CanPerform(actor, auth.ActionAssignTicket, nil) {
		return nil, apperrors.NewForbidden("assignment requires a staff role")
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assignee", map[string]any{"user_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.CanBeAssigned() {
		return nil, apperrors.NewValidationError("assignee must be an active agent", map[string]any{"user_id": assigneeID})
	}

	var result *domain.Ticket
	err = s.withRetry(ctx, ticketID, func(ticket *domain.Ticket) (bool, error) {
		if !ticket.IsActive() {
			return false, apperrors.NewConflict("ticket is no longer active", map[string]any{"status": ticket.Status})
		}
		oldAssignee := ticket.AssigneeID
		oldStatus := ticket.Status
		ticket.AssigneeID = &assignee.ID
		ticket.Status = domain.TicketStatusInProgress
		if err := s.tickets.UpdateVersioned(ctx, ticket, ticket.Version); err != nil {
			return false, err
		}
		s.recordHistory(ctx, &actor.ID, ticket.ID, domain.ChangeTypeAssignee,
			map[string]any{"assignee_id": oldAssignee, "status": oldStatus},
			map[string]any{"assignee_id": ticket.AssigneeID, "status": ticket.Status})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			ActorID:  &actor.ID,
			Payload:  events.TicketAssignedPayload{AssigneeID: assignee.ID},
		})
		result = ticket
		return oldStatus != ticket.Status, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CloseTicketAsUser lets the requester close their own resolved ticket.
func (s *TicketService) CloseTicketAsUser(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	var result *domain.Ticket
	err := s.withRetry(ctx, ticketID, func(ticket *domain.Ticket) (bool, error) {
		if !auth.CanPerform(actor, auth.ActionCloseOwn, ticket) {
			return false, apperrors.NewForbidden("access denied")
		}
		if ticket.Status != domain.TicketStatusResolved {
			return false, apperrors.NewConflict("only resolved tickets can be closed by the requester", map[string]any{"status": ticket.Status})
		}
		oldStatus := ticket.Status
		now := s.clock.Now()
		ticket.Status = domain.TicketStatusClosed
		ticket.ClosedAt = &now
		if err := s.tickets.UpdateVersioned(ctx, ticket, ticket.Version); err != nil {
			return false, err
		}
		s.recordStatusChange(ctx, &actor.ID, ticket.ID, oldStatus, ticket.Status, "closed_by_requester")
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			ActorID:  &actor.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
				Comment:   "closed_by_requester",
			},
		})
		result = ticket
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddComment appends a comment to the ticket thread.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, body string, internal bool) (*domain.Comment, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !auth.CanPerform(actor, auth.ActionCommentTicket, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	visibility := domain.CommentPublic
	if internal {
		if !auth.CanPerform(actor, auth.ActionInternalNote, ticket) {
			return nil, apperrors.NewForbidden("internal notes require a staff role")
		}
		visibility = domain.CommentInternal
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		Visibility: visibility,
		Body:       body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Payload: events.TicketCommentAddedPayload{
			CommentID:  comment.ID,
			AuthorID:   actor.ID,
			Visibility: visibility,
		},
	})
	return comment, nil
}

// ListHistory returns the audit trail for staff.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticketID, limit, offset)
}

// withRetry runs the read-decide-write cycle, retrying on version conflicts.
// fn returns whether a status-affecting write happened (to fire the sweep
// hook) and may abort with a terminal error.
func (s *TicketService) withRetry(ctx context.Context, ticketID string, fn func(*domain.Ticket) (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		ticket, err := s.getTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		changed, err := fn(ticket)
		if errors.Is(err, repository.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return apperrors.MapError(err)
		}
		if changed && s.afterStatusChange != nil {
			s.afterStatusChange()
		}
		return nil
	}
	return apperrors.NewConcurrentModification("ticket", lastErr)
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) repoFilter(filter TicketListFilter) repository.TicketFilter {
	return repository.TicketFilter{
		AssigneeID:  filter.AssigneeID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		Category:    filter.Category,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusInProgress: {domain.TicketStatusOpen, domain.TicketStatusResolved},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s *TicketService) recordStatusChange(ctx context.Context, actorID *string, ticketID string, oldStatus, newStatus domain.TicketStatus, comment string) {
	s.recordHistory(ctx, actorID, ticketID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus, "comment": comment})
}

func (s *TicketService) recordHistory(ctx context.Context, actorID *string, ticketID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.Create(ctx, &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: actorID,
		ChangeType:  changeType,
		OldValue:    oldValue,
		NewValue:    newValue,
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
