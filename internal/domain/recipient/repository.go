package recipient

import (
	"context"
)

// Repository is the identity directory: Pyrus user -> Telegram chat.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Recipient, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*Recipient, error)
	// Upsert links r.ID to r.TelegramID or refreshes the name of an existing link.
	// It never moves a user to another chat: that is ErrUserAlreadyLinked.
	Upsert(ctx context.Context, r *Recipient) error
	ListAll(ctx context.Context) ([]*Recipient, error)
}
