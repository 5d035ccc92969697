package app

import (
	"encoding/json"
	"fmt"
	"pyrus_reminder_bot/internal/domain/notification"
	"strings"
	"time"
)

// Pyrus webhook event names the normalizer cares about.
const (
	pyrusEventTaskClosed  = "task_closed"
	pyrusEventTaskUpdated = "task_updated"
	pyrusActionFinished   = "finished"
)

// pyrusWebhookPayload mirrors the subset of the Pyrus webhook body we read.
type pyrusWebhookPayload struct {
	Event string     `json:"event"`
	Task  *pyrusTask `json:"task"`
	Actor *pyrusUser `json:"actor"`
}

type pyrusTask struct {
	ID        int64          `json:"id"`
	Subject   string         `json:"subject"`
	CloseDate string         `json:"close_date"`
	Comments  []pyrusComment `json:"comments"`
}

type pyrusComment struct {
	ID         int64      `json:"id"`
	Text       string     `json:"text"`
	CreateDate string     `json:"create_date"`
	Author     *pyrusUser `json:"author"`
	Mentions   []int64    `json:"mentions"`
	Action     string     `json:"action"`
}

type pyrusUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u *pyrusUser) fullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// pyrusTimeLayouts are tried in order when parsing comment timestamps.
// Pyrus sends UTC; a value without zone is read as UTC.
var pyrusTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parsePyrusTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range pyrusTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Normalize turns a raw Pyrus webhook body into typed events.
//
// A closed task yields a single ClosureEvent. Otherwise the last comment of the
// task is the new one: every distinct mentioned user other than the author gets
// a MentionEvent, and the author gets a ReactionEvent since replying on the task
// answers whatever reminder they had for it.
func Normalize(raw []byte, receivedAt time.Time) ([]notification.Event, error) {
	var payload pyrusWebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", notification.ErrUnrecognizedEvent, err)
	}
	if payload.Task == nil || payload.Task.ID <= 0 {
		return nil, fmt.Errorf("%w: missing task id", notification.ErrUnrecognizedEvent)
	}
	task := payload.Task

	var last *pyrusComment
	if n := len(task.Comments); n > 0 {
		last = &task.Comments[n-1]
	}

	if payload.Event == pyrusEventTaskClosed ||
		strings.TrimSpace(task.CloseDate) != "" ||
		(last != nil && last.Action == pyrusActionFinished) {
		return []notification.Event{notification.ClosureEvent{TaskID: task.ID}}, nil
	}

	if last == nil {
		if payload.Event == pyrusEventTaskUpdated && payload.Actor != nil && payload.Actor.ID > 0 {
			return []notification.Event{notification.ReactionEvent{
				TaskID:      task.ID,
				RecipientID: payload.Actor.ID,
			}}, nil
		}
		return nil, fmt.Errorf("%w: event %q on task %d carries no comment", notification.ErrUnrecognizedEvent, payload.Event, task.ID)
	}
	if last.ID <= 0 {
		return nil, fmt.Errorf("%w: comment without id on task %d", notification.ErrUnrecognizedEvent, task.ID)
	}

	occurredAt, ok := parsePyrusTime(last.CreateDate)
	if !ok {
		occurredAt = receivedAt
	}

	var authorID int64
	var authorName string
	if last.Author != nil {
		authorID = last.Author.ID
		authorName = last.Author.fullName()
	}

	events := make([]notification.Event, 0, len(last.Mentions)+1)
	seen := make(map[int64]struct{}, len(last.Mentions))
	for _, uid := range last.Mentions {
		if uid <= 0 || uid == authorID {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		events = append(events, notification.MentionEvent{
			TaskID:      task.ID,
			TaskTitle:   task.Subject,
			RecipientID: uid,
			CommentID:   last.ID,
			CommentText: last.Text,
			OccurredAt:  occurredAt,
			AuthorID:    authorID,
			Author:      authorName,
		})
	}
	if authorID > 0 {
		events = append(events, notification.ReactionEvent{
			TaskID:      task.ID,
			RecipientID: authorID,
			CommentID:   last.ID,
		})
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("%w: comment %d on task %d has no author and no mentions", notification.ErrUnrecognizedEvent, last.ID, task.ID)
	}
	return events, nil
}
