package app

import (
	"context"
	"errors"
	"fmt"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/infra/metrics"
	"time"

	"github.com/sirupsen/logrus"
)

// IngestResult summarizes what one batch of events did to the queue.
type IngestResult struct {
	Created   int
	Merged    int
	Cancelled int64
}

// IngestService folds normalized events into the pending queue.
type IngestService struct {
	store  notification.Store
	delay  time.Duration
	logger *logrus.Entry
	now    func() time.Time
}

func NewIngestService(store notification.Store, delay time.Duration, logger *logrus.Entry) *IngestService {
	return &IngestService{
		store:  store,
		delay:  delay,
		logger: logger,
		now:    time.Now,
	}
}

type commentKey struct {
	taskID    int64
	commentID int64
}

// commentEvents are the mentions and reactions carried by one comment.
type commentEvents struct {
	mentions  []notification.MentionEvent
	reactions []notification.ReactionEvent
}

// Handle applies the events produced from one webhook delivery.
//
// Each comment that mentions someone passes the idempotency guard once, and its
// mentions and reactions are applied in the same transaction as the admission. A
// replayed comment returns ErrDuplicateComment and leaves the queue as it was; a
// failed write rolls the admission back so the retry is processed again.
// Reactions without mentions and closures are idempotent and applied directly.
func (s *IngestService) Handle(ctx context.Context, events []notification.Event) (IngestResult, error) {
	var res IngestResult

	var order []commentKey
	comments := make(map[commentKey]*commentEvents)
	var reactions []notification.ReactionEvent
	var closures []notification.ClosureEvent

	for _, ev := range events {
		switch e := ev.(type) {
		case notification.MentionEvent:
			k := commentKey{taskID: e.TaskID, commentID: e.CommentID}
			c, ok := comments[k]
			if !ok {
				c = &commentEvents{}
				comments[k] = c
				order = append(order, k)
			}
			c.mentions = append(c.mentions, e)
		case notification.ReactionEvent:
			reactions = append(reactions, e)
		case notification.ClosureEvent:
			closures = append(closures, e)
		default:
			return res, fmt.Errorf("%w: %T", notification.ErrUnrecognizedEvent, ev)
		}
	}

	var standalone []notification.ReactionEvent
	for _, r := range reactions {
		if c, ok := comments[commentKey{taskID: r.TaskID, commentID: r.CommentID}]; ok {
			c.reactions = append(c.reactions, r)
			continue
		}
		standalone = append(standalone, r)
	}

	duplicates := 0
	for _, k := range order {
		c := comments[k]
		cr, err := s.AdmitComment(ctx, c.mentions, c.reactions)
		if errors.Is(err, notification.ErrDuplicateComment) {
			duplicates++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Created += cr.Created
		res.Merged += cr.Merged
		res.Cancelled += cr.Cancelled
	}

	for _, r := range standalone {
		removed, err := s.Cancel(ctx, r)
		if err != nil {
			return res, err
		}
		if removed {
			res.Cancelled++
		}
	}

	for _, c := range closures {
		n, err := s.Close(ctx, c)
		if err != nil {
			return res, err
		}
		res.Cancelled += n
	}

	if duplicates > 0 && res.Created == 0 && res.Merged == 0 && res.Cancelled == 0 {
		return res, notification.ErrDuplicateComment
	}
	return res, nil
}

// AdmitComment admits one comment through the guard, merges its mentions and
// applies its reactions in a single transaction. All events must share the task
// and comment id.
func (s *IngestService) AdmitComment(ctx context.Context, mentions []notification.MentionEvent, reactions []notification.ReactionEvent) (IngestResult, error) {
	var res IngestResult
	if len(mentions) == 0 {
		return res, nil
	}
	taskID, commentID := mentions[0].TaskID, mentions[0].CommentID
	for _, m := range mentions[1:] {
		if m.TaskID != taskID || m.CommentID != commentID {
			return res, fmt.Errorf("mentions of task %d comment %d mixed with task %d comment %d", taskID, commentID, m.TaskID, m.CommentID)
		}
	}
	for _, r := range reactions {
		if r.TaskID != taskID || r.CommentID != commentID {
			return res, fmt.Errorf("reaction of task %d comment %d mixed with task %d comment %d", r.TaskID, r.CommentID, taskID, commentID)
		}
	}

	logCtx := s.logger.WithFields(logrus.Fields{
		"task_id":    taskID,
		"comment_id": commentID,
	})

	err := s.store.WithinTx(ctx, func(tx notification.Tx) error {
		res = IngestResult{}
		admitted, err := tx.Admit(ctx, taskID, commentID, s.now())
		if err != nil {
			return fmt.Errorf("%w: admit comment %d of task %d: %v", notification.ErrRecordFailure, commentID, taskID, err)
		}
		if !admitted {
			return notification.ErrDuplicateComment
		}
		for _, m := range mentions {
			isNew, err := tx.Merge(ctx, m, m.OccurredAt.Add(s.delay))
			if err != nil {
				return fmt.Errorf("%w: merge mention of %d: %v", notification.ErrRecordFailure, m.RecipientID, err)
			}
			if isNew {
				res.Created++
			} else {
				res.Merged++
			}
		}
		for _, r := range reactions {
			removed, err := tx.Delete(ctx, r.Key())
			if err != nil {
				return fmt.Errorf("%w: cancel task %d recipient %d: %v", notification.ErrRecordFailure, r.TaskID, r.RecipientID, err)
			}
			if removed {
				res.Cancelled++
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, notification.ErrDuplicateComment):
		logCtx.Debug("Comment already processed, skipping")
		metrics.WebhookEventsTotal.WithLabelValues("mention", "duplicate").Add(float64(len(mentions)))
		return IngestResult{}, err
	case err != nil:
		if !errors.Is(err, notification.ErrRecordFailure) {
			err = fmt.Errorf("%w: %v", notification.ErrRecordFailure, err)
		}
		logCtx.WithError(err).Error("Failed to record comment")
		metrics.WebhookEventsTotal.WithLabelValues("mention", "error").Add(float64(len(mentions)))
		return IngestResult{}, err
	}

	logCtx.WithFields(logrus.Fields{
		"created":   res.Created,
		"merged":    res.Merged,
		"cancelled": res.Cancelled,
	}).Info("Comment applied")
	metrics.WebhookEventsTotal.WithLabelValues("mention", "created").Add(float64(res.Created))
	metrics.WebhookEventsTotal.WithLabelValues("mention", "merged").Add(float64(res.Merged))
	metrics.WebhookEventsTotal.WithLabelValues("reaction", "cancelled").Add(float64(res.Cancelled))
	metrics.WebhookEventsTotal.WithLabelValues("reaction", "noop").Add(float64(len(reactions) - int(res.Cancelled)))
	return res, nil
}

// Cancel removes the reminder the reaction answers. A missing row is a no-op.
func (s *IngestService) Cancel(ctx context.Context, r notification.ReactionEvent) (bool, error) {
	removed, err := s.store.Delete(ctx, r.Key())
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"task_id":      r.TaskID,
			"recipient_id": r.RecipientID,
		}).WithError(err).Error("Failed to cancel pending reminder")
		metrics.WebhookEventsTotal.WithLabelValues("reaction", "error").Inc()
		return false, fmt.Errorf("%w: cancel task %d recipient %d: %v", notification.ErrRecordFailure, r.TaskID, r.RecipientID, err)
	}
	if removed {
		s.logger.WithFields(logrus.Fields{
			"task_id":      r.TaskID,
			"recipient_id": r.RecipientID,
		}).Info("Pending reminder cancelled by reaction")
		metrics.WebhookEventsTotal.WithLabelValues("reaction", "cancelled").Inc()
	} else {
		metrics.WebhookEventsTotal.WithLabelValues("reaction", "noop").Inc()
	}
	return removed, nil
}

// Close removes every reminder of a closed task.
func (s *IngestService) Close(ctx context.Context, c notification.ClosureEvent) (int64, error) {
	n, err := s.store.DeleteByTask(ctx, c.TaskID)
	if err != nil {
		s.logger.WithField("task_id", c.TaskID).WithError(err).Error("Failed to cancel reminders of closed task")
		metrics.WebhookEventsTotal.WithLabelValues("closure", "error").Inc()
		return 0, fmt.Errorf("%w: close task %d: %v", notification.ErrRecordFailure, c.TaskID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"task_id":   c.TaskID,
		"cancelled": n,
	}).Info("Task closed")
	metrics.WebhookEventsTotal.WithLabelValues("closure", "cancelled").Add(float64(n))
	return n, nil
}
