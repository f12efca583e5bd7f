package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

type notificationFixture struct {
	service       *NotificationService
	notifications *memNotificationRepo
	tickets       *memTicketRepo
	users         *memUserRepo
	dispatcher    events.Dispatcher
	mailer        *recordingMailer

	requester *domain.User
	agent     *domain.User
	admin     *domain.User
	super     *domain.User
	ticket    *domain.Ticket
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	f := &notificationFixture{
		notifications: &memNotificationRepo{},
		tickets:       newMemTicketRepo(),
		users:         newMemUserRepo(),
		dispatcher:    events.NewInMemoryDispatcher(),
		mailer:        &recordingMailer{},
	}
	f.service = NewNotificationService(NotificationDependencies{
		NotificationRepo: f.notifications,
		TicketRepo:       f.tickets,
		UserRepo:         f.users,
		Dispatcher:       f.dispatcher,
		Mailer:           f.mailer,
		Metrics:          observability.NewMetrics(),
		Logger:           zaptest.NewLogger(t),
	})
	f.service.RegisterHandlers()

	f.requester = f.seedUser(t, "requester@example.com", domain.RoleUser)
	f.agent = f.seedUser(t, "agent@example.com", domain.RoleAgent)
	f.admin = f.seedUser(t, "admin@example.com", domain.RoleAdmin)
	f.super = f.seedUser(t, "super@example.com", domain.RoleSuperadmin)

	f.ticket = &domain.Ticket{
		ExternalKey: "TCK-NOTIFY",
		RequesterID: f.requester.ID,
		Title:       "mail server down",
		Description: "bounce on every send",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityHigh,
	}
	require.NoError(t, f.tickets.Create(context.Background(), f.ticket))
	return f
}

func (f *notificationFixture) seedUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Name: email, Email: email, Role: role, Status: domain.UserStatusActive}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *notificationFixture) publish(t *testing.T, event events.Event) {
	t.Helper()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	require.NoError(t, f.dispatcher.Publish(context.Background(), event))
}

func (f *notificationFixture) listFor(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	records, err := f.service.ListForUser(context.Background(), userID, false, 50, 0)
	require.NoError(t, err)
	return records
}

func TestTicketCreatedNotifiesRequesterAndTriage(t *testing.T) {
	f := newNotificationFixture(t)

	f.publish(t, events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketCreated,
		TicketID: f.ticket.ID,
		Payload:  events.TicketCreatedPayload{RequesterID: f.requester.ID},
	})

	assert.Len(t, f.listFor(t, f.requester.ID), 1)
	assert.Len(t, f.listFor(t, f.admin.ID), 1)
	assert.Len(t, f.listFor(t, f.super.ID), 1)
	assert.Empty(t, f.listFor(t, f.agent.ID))
}

func TestSLAEscalatedBroadcastsToAdminsOnly(t *testing.T) {
	f := newNotificationFixture(t)

	f.publish(t, events.Event{
		ID:       "evt-2",
		Type:     events.EventSLAEscalated,
		TicketID: f.ticket.ID,
		Payload: events.SLAEscalatedPayload{
			ViolationKind: domain.ViolationResolution,
			OldPriority:   domain.TicketPriorityHigh,
			NewPriority:   domain.TicketPriorityUrgent,
			HoursOverdue:  3.2,
		},
	})

	adminFeed := f.listFor(t, f.admin.ID)
	require.Len(t, adminFeed, 1)
	assert.Equal(t, domain.NotificationSLAEscalated, adminFeed[0].Type)
	assert.Contains(t, adminFeed[0].Message, "URGENT")
	assert.Len(t, f.listFor(t, f.super.ID), 1)
	assert.Empty(t, f.listFor(t, f.requester.ID))
	assert.Empty(t, f.listFor(t, f.agent.ID))
}

func TestTicketAssignedNotifiesAssignee(t *testing.T) {
	f := newNotificationFixture(t)

	f.publish(t, events.Event{
		ID:       "evt-3",
		Type:     events.EventTicketAssigned,
		TicketID: f.ticket.ID,
		Payload:  events.TicketAssignedPayload{AssigneeID: f.agent.ID},
	})

	feed := f.listFor(t, f.agent.ID)
	require.Len(t, feed, 1)
	assert.Equal(t, domain.NotificationTicketAssigned, feed[0].Type)
}

func TestDuplicateEventDeliversOnce(t *testing.T) {
	f := newNotificationFixture(t)

	event := events.Event{
		ID:       "evt-dup",
		Type:     events.EventTicketResolved,
		TicketID: f.ticket.ID,
		Payload:  events.TicketResolvedPayload{ResolvedAt: time.Now()},
	}
	f.publish(t, event)
	f.publish(t, event)

	assert.Len(t, f.listFor(t, f.requester.ID), 1)
	// The duplicate must suppress the email too, not just the record.
	assert.Equal(t, []string{f.requester.Email}, f.mailer.sentTo())
}

func TestMailerFailureDoesNotDropRecord(t *testing.T) {
	f := newNotificationFixture(t)
	f.mailer.fail = true

	f.publish(t, events.Event{
		ID:       "evt-4",
		Type:     events.EventTicketResolved,
		TicketID: f.ticket.ID,
		Payload:  events.TicketResolvedPayload{ResolvedAt: time.Now()},
	})

	assert.Len(t, f.listFor(t, f.requester.ID), 1)
	assert.Empty(t, f.mailer.sentTo())
}

func TestMarkReadOnlyForRecipient(t *testing.T) {
	f := newNotificationFixture(t)

	f.publish(t, events.Event{
		ID:       "evt-5",
		Type:     events.EventTicketResolved,
		TicketID: f.ticket.ID,
		Payload:  events.TicketResolvedPayload{ResolvedAt: time.Now()},
	})

	feed := f.listFor(t, f.requester.ID)
	require.Len(t, feed, 1)

	// Someone else's mark-read does not touch the record.
	require.Error(t, f.service.MarkRead(context.Background(), f.admin.ID, feed[0].ID))

	require.NoError(t, f.service.MarkRead(context.Background(), f.requester.ID, feed[0].ID))
	unread, err := f.service.ListForUser(context.Background(), f.requester.ID, true, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
