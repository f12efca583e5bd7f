package auth

import "github.com/spec-kit/helpdesk-service/internal/domain"

// Action identifies an operation that requires authorization.
type Action string

const (
	ActionViewTicket     Action = "ticket.view"
	ActionUpdateStatus   Action = "ticket.update_status"
	ActionUpdatePriority Action = "ticket.update_priority"
	ActionAssignTicket   Action = "ticket.assign"
	ActionCloseOwn       Action = "ticket.close_own"
	ActionCommentTicket  Action = "ticket.comment"
	ActionInternalNote   Action = "ticket.internal_note"
	ActionManagePolicies Action = "sla_policy.manage"
	ActionManageUsers    Action = "user.manage"
)

// CanPerform is the single authorization decision point. Handlers and the
// ticket service consult it instead of comparing role names inline.
func CanPerform(actor *domain.User, action Action, ticket *domain.Ticket) bool {
	if actor == nil || actor.Status != domain.UserStatusActive {
		return false
	}
	switch action {
	case ActionViewTicket:
		if actor.Role.IsStaff() {
			return true
		}
		return ticket != nil && ticket.RequesterID == actor.ID
	case ActionUpdateStatus, ActionUpdatePriority, ActionAssignTicket:
		return actor.Role.IsStaff()
	case ActionCloseOwn:
		return ticket != nil && ticket.RequesterID == actor.ID
	case ActionCommentTicket:
		if actor.Role.IsStaff() {
			return true
		}
		return ticket != nil && ticket.RequesterID == actor.ID
	case ActionInternalNote:
		return actor.Role.IsStaff()
	case ActionManagePolicies:
		return actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperadmin
	case ActionManageUsers:
		return actor.Role == domain.RoleSuperadmin
	}
	return false
}
