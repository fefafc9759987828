package stickerbot

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral inbound event type.
type EventKind string

const (
	// EventKindText is emitted when a sender posts a plain text message.
	EventKindText EventKind = "message.text"
	// EventKindImage is emitted when a sender posts a resendable image
	// (sticker or photo).
	EventKindImage EventKind = "message.image"
	// EventKindButton is emitted when a sender presses an inline button.
	EventKindButton EventKind = "button.pressed"
)

// Chat identifies the conversation an event occurred in.
type Chat struct {
	// ID is the stable conversation identifier on the platform.
	ID string
	// Private reports whether the conversation is a one-to-one chat.
	// All bot flows are restricted to private chats; group events are
	// dropped at the dispatch boundary.
	Private bool
}

// Sender identifies the account that produced an event.
type Sender struct {
	// ID is the numeric platform identity of the sender.
	ID int64
	// Username is the platform handle when available.
	Username string
	// IsBot reports whether the sender is an automated account.
	IsBot bool
}

// TextMessage carries the body of a plain text event.
type TextMessage struct {
	// Text is the raw message text as received.
	Text string
}

// ImageMessage carries a stable reference to a received image.
type ImageMessage struct {
	// Ref is the opaque, transport-issued image reference. It stays valid
	// across sends and is the only handle the core keeps for an image.
	Ref string
}

// ButtonPress carries the compact data token of an inline button press.
type ButtonPress struct {
	// QueryID is the platform acknowledgement handle for this press.
	QueryID string
	// MessageID identifies the message the pressed button is attached to.
	MessageID string
	// Data is the compact callback token (for example "del_3_0" or "page_1").
	Data string
}

// Event is the neutral envelope the telegram driver publishes and the
// dispatcher consumes. Exactly one payload branch is set, selected by Kind.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects the payload branch.
	Kind EventKind
	// OccurredAt is the source-platform timestamp for the event.
	OccurredAt time.Time
	// Chat identifies where the event happened.
	Chat Chat
	// Sender identifies who produced the event.
	Sender Sender
	// Text carries the payload for text events.
	Text *TextMessage
	// Image carries the payload for image events.
	Image *ImageMessage
	// Button carries the payload for button press events.
	Button *ButtonPress
}

// Validate checks envelope and payload coherence.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Chat.ID == "" {
		return fmt.Errorf("%w: missing chat id", ErrInvalidEvent)
	}
	if e.Sender.ID == 0 {
		return fmt.Errorf("%w: missing sender id", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindText:
		if e.Text == nil {
			return fmt.Errorf("%w: text event requires text payload", ErrInvalidEvent)
		}
	case EventKindImage:
		if e.Image == nil || e.Image.Ref == "" {
			return fmt.Errorf("%w: image event requires image payload", ErrInvalidEvent)
		}
	case EventKindButton:
		if e.Button == nil || e.Button.Data == "" {
			return fmt.Errorf("%w: button event requires button payload", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
