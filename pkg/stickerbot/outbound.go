package stickerbot

import (
	"context"
	"fmt"
)

// Button is one inline keyboard button carrying a compact callback token.
type Button struct {
	// Label is the visible button text.
	Label string
	// Data is the callback token delivered back in a ButtonPress event.
	Data string
}

// Keyboard is an inline keyboard layout: rows of buttons.
type Keyboard struct {
	Rows [][]Button
}

// Empty reports whether the keyboard has no buttons.
func (k Keyboard) Empty() bool {
	return len(k.Rows) == 0
}

// Validate checks that every button carries a label and token.
func (k Keyboard) Validate() error {
	for rowIndex, row := range k.Rows {
		if len(row) == 0 {
			return fmt.Errorf("%w: empty keyboard row %d", ErrInvalidOutboundRequest, rowIndex)
		}
		for buttonIndex, button := range row {
			if button.Label == "" {
				return fmt.Errorf("%w: keyboard[%d][%d] missing label", ErrInvalidOutboundRequest, rowIndex, buttonIndex)
			}
			if button.Data == "" {
				return fmt.Errorf("%w: keyboard[%d][%d] missing data", ErrInvalidOutboundRequest, rowIndex, buttonIndex)
			}
		}
	}

	return nil
}

// SendTextRequest describes a new outbound text message.
type SendTextRequest struct {
	// ChatID identifies the destination conversation.
	ChatID string
	// Text is the message body.
	Text string
	// Keyboard optionally attaches an inline keyboard.
	Keyboard Keyboard
	// MenuLabels optionally attaches a persistent reply keyboard with one
	// label per row. Used once on /start.
	MenuLabels []string
}

// Validate checks the request envelope before dispatch.
func (r SendTextRequest) Validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("%w: missing chat id", ErrInvalidOutboundRequest)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := r.Keyboard.Validate(); err != nil {
		return fmt.Errorf("validate send text keyboard: %w", err)
	}

	return nil
}

// SendImageRequest describes an outbound image send by stable reference.
type SendImageRequest struct {
	// ChatID identifies the destination conversation.
	ChatID string
	// ImageRef is the opaque reference of a previously received image.
	ImageRef string
}

// Validate checks the request envelope before dispatch.
func (r SendImageRequest) Validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("%w: missing chat id", ErrInvalidOutboundRequest)
	}
	if r.ImageRef == "" {
		return fmt.Errorf("%w: missing image ref", ErrInvalidOutboundRequest)
	}

	return nil
}

// AnswerButtonRequest acknowledges an inline button press.
type AnswerButtonRequest struct {
	// QueryID is the acknowledgement handle from the ButtonPress event.
	QueryID string
	// Text is an optional short notice shown to the sender.
	Text string
}

// Validate checks the request envelope before dispatch.
func (r AnswerButtonRequest) Validate() error {
	if r.QueryID == "" {
		return fmt.Errorf("%w: missing query id", ErrInvalidOutboundRequest)
	}

	return nil
}

// EditTextRequest replaces the text (and keyboard) of an existing message.
type EditTextRequest struct {
	ChatID    string
	MessageID string
	Text      string
	Keyboard  Keyboard
}

// Validate checks the request envelope before dispatch.
func (r EditTextRequest) Validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("%w: missing chat id", ErrInvalidOutboundRequest)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := r.Keyboard.Validate(); err != nil {
		return fmt.Errorf("validate edit text keyboard: %w", err)
	}

	return nil
}

// EditButtonsRequest replaces only the inline keyboard of an existing message.
type EditButtonsRequest struct {
	ChatID    string
	MessageID string
	Keyboard  Keyboard
}

// Validate checks the request envelope before dispatch.
func (r EditButtonsRequest) Validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("%w: missing chat id", ErrInvalidOutboundRequest)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}
	if err := r.Keyboard.Validate(); err != nil {
		return fmt.Errorf("validate edit buttons keyboard: %w", err)
	}

	return nil
}

// SentMessage identifies a message successfully emitted by the messenger.
type SentMessage struct {
	// ID is the destination-platform message identifier.
	ID string
	// ChatID is the conversation the message was delivered to.
	ChatID string
}

// Messenger is the outbound side-effect surface the core requests from the
// transport. Implementations enforce platform constraints while preserving
// these request semantics.
type Messenger interface {
	// SendText publishes a new text message.
	SendText(ctx context.Context, request SendTextRequest) (*SentMessage, error)
	// SendImage re-sends a previously seen image by stable reference.
	SendImage(ctx context.Context, request SendImageRequest) error
	// AnswerButton acknowledges an inline button press.
	AnswerButton(ctx context.Context, request AnswerButtonRequest) error
	// EditText replaces the text and keyboard of an existing message.
	EditText(ctx context.Context, request EditTextRequest) error
	// EditButtons replaces only the keyboard of an existing message.
	EditButtons(ctx context.Context, request EditButtonsRequest) error
}
