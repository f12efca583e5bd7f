package domain

// ViolationKind distinguishes which SLA budget was breached.
type ViolationKind string

const (
	ViolationResponse   ViolationKind = "response"
	ViolationResolution ViolationKind = "resolution"
)

// Violation is a detected SLA breach on an active ticket. Violations are
// transient: they exist only for the duration of one detection pass and are
// consumed by the escalator. The ticket snapshot carries the version read at
// detection time so the escalation write can be made conditional on it.
type Violation struct {
	Ticket       Ticket
	Kind         ViolationKind
	HoursOverdue float64
}
