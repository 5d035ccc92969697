package app

import (
	"fmt"
	"pyrus_reminder_bot/internal/domain/notification"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"
)

const (
	reminderHeader   = "👋 Привет! У вас есть неотвеченная задача 📋"
	emptyCommentText = "(без текста)"
	maxFireIcons     = 5

	// AckUnique identifies the "accepted" button; its payload is <task>_<recipient>.
	AckUnique = "ack"
)

var (
	atMentionRe  = regexp.MustCompile(`@[\p{L}\p{N}_\-.]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// RenderOptions controls reminder formatting.
type RenderOptions struct {
	TaskURLBase     string
	TaskTitleMaxLen int
	CommentMaxLen   int
}

// StripMentions removes @name tokens and collapses whitespace.
func StripMentions(text string) string {
	cleaned := atMentionRe.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return emptyCommentText
	}
	return cleaned
}

// FireIcons grows with every repeat, capped at five.
func FireIcons(timesSent int) string {
	n := timesSent + 1
	if n < 1 {
		n = 1
	}
	if n > maxFireIcons {
		n = maxFireIcons
	}
	return strings.Repeat("🔥", n)
}

// truncateRunes cuts s to at most max characters. max <= 0 disables truncation.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// RenderReminder builds the message text for a pending row.
func RenderReminder(p *notification.Pending, opts RenderOptions) string {
	title := strings.TrimSpace(p.TaskTitle)
	if title == "" {
		title = fmt.Sprintf("Задача #%d", p.TaskID)
	}
	title = truncateRunes(title, opts.TaskTitleMaxLen)
	comment := truncateRunes(StripMentions(p.LastMentionCommentText), opts.CommentMaxLen)

	var b strings.Builder
	b.WriteString(reminderHeader)
	b.WriteString("\n\n")
	b.WriteString(FireIcons(p.TimesSent))
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n💬 ")
	b.WriteString(comment)
	b.WriteString("\n🔗 ")
	b.WriteString(opts.TaskURLBase)
	b.WriteString(strconv.FormatInt(p.TaskID, 10))
	return b.String()
}

// ReminderMarkup attaches the "accepted" button that cancels the reminder.
func ReminderMarkup(key notification.Key) *telebot.SendOptions {
	markup := &telebot.ReplyMarkup{}
	btnAck := markup.Data("✅ Принято", AckUnique, AckCallbackData(key))
	markup.Inline(markup.Row(btnAck))
	return &telebot.SendOptions{ReplyMarkup: markup, DisableWebPagePreview: true}
}

func AckCallbackData(key notification.Key) string {
	return fmt.Sprintf("%d_%d", key.TaskID, key.RecipientID)
}

// ParseAckCallback reverses AckCallbackData.
func ParseAckCallback(data string) (notification.Key, error) {
	parts := strings.Split(strings.TrimSpace(data), "_")
	if len(parts) != 2 {
		return notification.Key{}, fmt.Errorf("invalid ack callback format: %q", data)
	}
	taskID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return notification.Key{}, fmt.Errorf("invalid task id in ack callback %q: %w", data, err)
	}
	recipientID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return notification.Key{}, fmt.Errorf("invalid recipient id in ack callback %q: %w", data, err)
	}
	return notification.Key{TaskID: taskID, RecipientID: recipientID}, nil
}
