package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// Decoder converts Telegram update DTOs into neutral events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*stickerbot.Event, error)
}

// DefaultDecoder provides the default Telegram-to-neutral mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*stickerbot.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeText:
		event.Kind = stickerbot.EventKindText
		if update.Text == nil {
			return nil, fmt.Errorf("decode text update: missing text payload")
		}
		event.Text = &stickerbot.TextMessage{Text: update.Text.Text}
	case UpdateTypeImage:
		event.Kind = stickerbot.EventKindImage
		if update.Image == nil {
			return nil, fmt.Errorf("decode image update: missing image payload")
		}
		event.Image = &stickerbot.ImageMessage{Ref: update.Image.Ref}
	case UpdateTypeButton:
		event.Kind = stickerbot.EventKindButton
		if update.Button == nil {
			return nil, fmt.Errorf("decode button update: missing button payload")
		}
		event.Button = &stickerbot.ButtonPress{
			QueryID:   update.Button.QueryID,
			MessageID: update.Button.MessageID,
			Data:      update.Button.Data,
		}
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

// newBaseEvent builds the shared envelope fields used by all update mappings.
func newBaseEvent(update Update) *stickerbot.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &stickerbot.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Chat: stickerbot.Chat{
			ID:      update.Chat.ID,
			Private: update.Chat.Private,
		},
		Sender: stickerbot.Sender{
			ID:       update.Sender.ID,
			Username: update.Sender.Username,
			IsBot:    update.Sender.IsBot,
		},
	}
}
