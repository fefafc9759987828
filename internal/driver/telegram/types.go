package telegram

import "time"

// DriverType is the stable driver identifier.
const DriverType = "telegram"

// UpdateType identifies the Telegram update semantic category.
type UpdateType string

const (
	// UpdateTypeText identifies plain text message updates.
	UpdateTypeText UpdateType = "text"
	// UpdateTypeImage identifies sticker and photo message updates.
	UpdateTypeImage UpdateType = "image"
	// UpdateTypeButton identifies inline button callback updates.
	UpdateTypeButton UpdateType = "button"
)

// Update is the adapter's internal DTO before neutral decoding.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Sender     SenderRef
	Text       *TextPayload
	Image      *ImagePayload
	Button     *ButtonPayload
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID      string
	Private bool
}

// SenderRef identifies the Telegram account behind an update.
type SenderRef struct {
	ID       int64
	Username string
	IsBot    bool
}

// TextPayload carries message text.
type TextPayload struct {
	Text string
}

// ImagePayload carries the encoded stable image reference.
type ImagePayload struct {
	Ref string
}

// ButtonPayload carries inline button callback metadata.
type ButtonPayload struct {
	QueryID   string
	MessageID string
	Data      string
}
