package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	nextID  int
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	ticket.Version = 1
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := ticket
	return &out, nil
}

func (r *memTicketRepo) UpdateVersioned(_ context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	ticket.Version = expectedVersion + 1
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
			continue
		}
		result = append(result, ticket)
	}
	return result, nil
}

func (r *memTicketRepo) ListActiveMonitored(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.IsActive() && ticket.SLAPolicyID != nil {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (r *memTicketRepo) CountByPolicy(_ context.Context, policyID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, ticket := range r.tickets {
		if ticket.SLAPolicyID != nil && *ticket.SLAPolicyID == policyID {
			count++
		}
	}
	return count, nil
}

type memUserRepo struct {
	mu     sync.Mutex
	users  map[string]domain.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = fmt.Sprintf("user-%d", r.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := user
	return &out, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			out := user
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListByRoles(_ context.Context, roles ...domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roleSet := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}
	var result []domain.User
	for _, user := range r.users {
		if _, ok := roleSet[user.Role]; ok && user.Status == domain.UserStatusActive {
			result = append(result, user)
		}
	}
	return result, nil
}

type memCommentRepo struct {
	mu       sync.Mutex
	comments []domain.Comment
	nextID   int
}

func (r *memCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	comment.ID = fmt.Sprintf("comment-%d", r.nextID)
	comment.CreatedAt = time.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *memCommentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	return result, nil
}

type memHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (r *memHistoryRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memHistoryRepo) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type memPolicyRepo struct {
	mu       sync.Mutex
	policies map[string]domain.SLAPolicy
	nextID   int
}

func newMemPolicyRepo() *memPolicyRepo {
	return &memPolicyRepo{policies: make(map[string]domain.SLAPolicy)}
}

func (r *memPolicyRepo) Create(_ context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	policy.ID = fmt.Sprintf("policy-%d", r.nextID)
	policy.CreatedAt = time.Now()
	policy.UpdatedAt = policy.CreatedAt
	r.policies[policy.ID] = *policy
	return nil
}

func (r *memPolicyRepo) Update(_ context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	policy.UpdatedAt = time.Now()
	r.policies[policy.ID] = *policy
	return nil
}

func (r *memPolicyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.policies, id)
	return nil
}

func (r *memPolicyRepo) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := policy
	return &out, nil
}

func (r *memPolicyRepo) GetActiveByPriority(_ context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, policy := range r.policies {
		if policy.Active && policy.Priority == priority {
			out := policy
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memPolicyRepo) List(_ context.Context) ([]domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SLAPolicy
	for _, policy := range r.policies {
		result = append(result, policy)
	}
	return result, nil
}

func (r *memPolicyRepo) ListActive(ctx context.Context) ([]domain.SLAPolicy, error) {
	all, _ := r.List(ctx)
	var result []domain.SLAPolicy
	for _, policy := range all {
		if policy.Active {
			result = append(result, policy)
		}
	}
	return result, nil
}

type memNotificationRepo struct {
	mu      sync.Mutex
	records []domain.Notification
	nextID  int
}

func (r *memNotificationRepo) Create(_ context.Context, n *domain.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.EventID == n.EventID && existing.UserID == n.UserID {
			return false, nil
		}
	}
	r.nextID++
	n.ID = fmt.Sprintf("notification-%d", r.nextID)
	n.CreatedAt = time.Now()
	r.records = append(r.records, *n)
	return true, nil
}

func (r *memNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, _, _ int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, record := range r.records {
		if record.UserID != userID {
			continue
		}
		if unreadOnly && record.Read {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, userID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == notificationID && r.records[i].UserID == userID {
			r.records[i].Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) published() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event{}, d.events...)
}

// recordingMailer captures sends and can be made to fail.
type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (m *recordingMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *recordingMailer) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.sent...)
}
