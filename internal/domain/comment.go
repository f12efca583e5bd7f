package domain

import "time"

// CommentVisibility controls who can read a comment.
type CommentVisibility string

const (
	CommentPublic   CommentVisibility = "PUBLIC"
	CommentInternal CommentVisibility = "INTERNAL"
)

// Comment is a message on a ticket thread. Internal comments are visible to
// staff only.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Visibility CommentVisibility
	Body       string
	CreatedAt  time.Time
}
