package notification

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kwanza/darasa/core"
)

// Types
const (
	TypeAnnouncement = "announcement"
	TypeSystem       = "system"
)

// Notification is one recipient's copy of a message. Rows are immutable once
// created except for IsRead.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Broadcast is a message sent to every active user.
type Broadcast struct {
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
	Type    string `json:"type"`
}

func (b *Broadcast) Validate(validate *validator.Validate) error {
	b.Title = core.CleanString(b.Title)
	b.Message = core.CleanString(b.Message)
	if b.Type == "" {
		b.Type = TypeAnnouncement
	}
	return validate.Struct(b)
}
