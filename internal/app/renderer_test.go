package app

import (
	"strings"
	"testing"

	"pyrus_reminder_bot/internal/domain/notification"
)

func TestStripMentions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@Иван.Петров посмотри   договор", "посмотри договор"},
		{"@anna @bob-2", emptyCommentText},
		{"", emptyCommentText},
		{"  без упоминаний  ", "без упоминаний"},
		{"mail@host тоже режется", "mail тоже режется"},
	}
	for _, tt := range tests {
		if got := StripMentions(tt.in); got != tt.want {
			t.Errorf("StripMentions(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFireIcons(t *testing.T) {
	tests := []struct {
		timesSent int
		want      int
	}{
		{0, 1}, {1, 2}, {4, 5}, {9, 5}, {-3, 1},
	}
	for _, tt := range tests {
		if got := strings.Count(FireIcons(tt.timesSent), "🔥"); got != tt.want {
			t.Errorf("FireIcons(%d) has %d icons, want %d", tt.timesSent, got, tt.want)
		}
	}
}

func TestRenderReminder(t *testing.T) {
	p := &notification.Pending{
		TaskID:                 100,
		TaskTitle:              "Очень длинное название задачи",
		LastMentionCommentText: "@Ivan проверь, пожалуйста",
		TimesSent:              1,
	}
	got := RenderReminder(p, RenderOptions{TaskURLBase: "https://pyrus.com/t#id", TaskTitleMaxLen: 12, CommentMaxLen: 7})
	want := reminderHeader + "\n\n🔥🔥\nОчень длинно\n💬 проверь\n🔗 https://pyrus.com/t#id100"
	if got != want {
		t.Errorf("RenderReminder() =\n%s\nwant\n%s", got, want)
	}

	p.TaskTitle = ""
	if got := RenderReminder(p, RenderOptions{}); !strings.Contains(got, "Задача #100") {
		t.Errorf("untitled task not rendered with placeholder:\n%s", got)
	}
}

func TestAckCallbackRoundTrip(t *testing.T) {
	key := notification.Key{TaskID: 100, RecipientID: 7}
	got, err := ParseAckCallback(AckCallbackData(key))
	if err != nil {
		t.Fatalf("ParseAckCallback: %v", err)
	}
	if got != key {
		t.Errorf("ParseAckCallback() = %+v, want %+v", got, key)
	}

	for _, bad := range []string{"", "1", "x_2", "1_y", "1_2_3"} {
		if _, err := ParseAckCallback(bad); err == nil {
			t.Errorf("ParseAckCallback(%q) succeeded, want error", bad)
		}
	}
}

func TestReminderMarkup(t *testing.T) {
	opts := ReminderMarkup(notification.Key{TaskID: 1, RecipientID: 2})
	rows := opts.ReplyMarkup.InlineKeyboard
	if len(rows) != 1 || len(rows[0]) != 1 {
		t.Fatalf("keyboard = %+v, want a single button", rows)
	}
	btn := rows[0][0]
	if btn.Unique != AckUnique || btn.Data != "1_2" {
		t.Errorf("button = %+v", btn)
	}
}
