// internal/domain/notification/events.go
package notification

import "time"

// Event is one of MentionEvent, ReactionEvent or ClosureEvent.
// The set is closed: only types in this package implement it.
type Event interface {
	TaskRef() int64
	isEvent()
}

// MentionEvent says RecipientID was mentioned in a comment on TaskID.
type MentionEvent struct {
	TaskID      int64
	TaskTitle   string
	RecipientID int64
	CommentID   int64
	CommentText string
	OccurredAt  time.Time
	AuthorID    int64
	Author      string
}

// ReactionEvent says RecipientID responded on TaskID, acknowledging any reminder.
type ReactionEvent struct {
	TaskID      int64
	RecipientID int64
	CommentID   int64
}

// ClosureEvent says TaskID was closed.
type ClosureEvent struct {
	TaskID int64
}

func (e MentionEvent) TaskRef() int64  { return e.TaskID }
func (e ReactionEvent) TaskRef() int64 { return e.TaskID }
func (e ClosureEvent) TaskRef() int64  { return e.TaskID }

func (MentionEvent) isEvent()  {}
func (ReactionEvent) isEvent() {}
func (ClosureEvent) isEvent()  {}

func (e MentionEvent) Key() Key  { return Key{TaskID: e.TaskID, RecipientID: e.RecipientID} }
func (e ReactionEvent) Key() Key { return Key{TaskID: e.TaskID, RecipientID: e.RecipientID} }
