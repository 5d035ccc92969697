// internal/domain/notification/pending.go
package notification

import "time"

// Key identifies a pending reminder. At most one row exists per key.
type Key struct {
	TaskID      int64
	RecipientID int64
}

// Pending is one open mention cycle: a reminder owed to RecipientID for TaskID.
// Corresponds to the 'pending_notifications' table.
type Pending struct {
	TaskID                 int64
	RecipientID            int64 // Pyrus user id of the mentioned person
	TaskTitle              string
	FirstMentionAt         time.Time // set once when the row is created
	LastMentionAt          time.Time
	LastMentionCommentID   int64
	LastMentionCommentText string
	NextSendAt             time.Time
	TimesSent              int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (p *Pending) Key() Key {
	return Key{TaskID: p.TaskID, RecipientID: p.RecipientID}
}

// Age is how long the cycle has been open at now.
func (p *Pending) Age(now time.Time) time.Duration {
	return now.Sub(p.FirstMentionAt)
}

// NewPending builds the row for the first unmatched mention of a pair.
func NewPending(m MentionEvent, nextSendAt time.Time) *Pending {
	return &Pending{
		TaskID:                 m.TaskID,
		RecipientID:            m.RecipientID,
		TaskTitle:              m.TaskTitle,
		FirstMentionAt:         m.OccurredAt,
		LastMentionAt:          m.OccurredAt,
		LastMentionCommentID:   m.CommentID,
		LastMentionCommentText: m.CommentText,
		NextSendAt:             nextSendAt,
		TimesSent:              0,
	}
}

// ApplyMention folds a later mention into an open row. Timing fields are left alone
// so rapid re-mentions do not reset the reminder schedule.
func (p *Pending) ApplyMention(m MentionEvent) {
	p.LastMentionAt = m.OccurredAt
	p.LastMentionCommentID = m.CommentID
	p.LastMentionCommentText = m.CommentText
	if m.TaskTitle != "" {
		p.TaskTitle = m.TaskTitle
	}
}
