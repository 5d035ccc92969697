package recipient

import (
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned when a Pyrus user has no linked Telegram chat.
var ErrNotFound = errors.New("recipient not found")

// ErrTelegramIDTaken is returned when a chat is already linked to another Pyrus user.
var ErrTelegramIDTaken = errors.New("telegram chat already linked to another recipient")

// ErrUserAlreadyLinked is returned when the Pyrus user is already linked to another chat.
var ErrUserAlreadyLinked = errors.New("pyrus user already linked to another telegram chat")

// Recipient links a Pyrus user to the Telegram chat that receives their reminders.
type Recipient struct {
	ID         int64 // Pyrus user id
	TelegramID int64
	FullName   sql.NullString // To handle optional name
	UpdatedAt  time.Time
}

// DisplayName returns the full name or a placeholder built from the Pyrus id.
func (r *Recipient) DisplayName() string {
	if r.FullName.Valid && r.FullName.String != "" {
		return r.FullName.String
	}
	return "User " + strconv.FormatInt(r.ID, 10)
}
