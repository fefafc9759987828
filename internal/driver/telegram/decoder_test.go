package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

func TestDefaultDecoderDecode(t *testing.T) {
	t.Parallel()

	occurredAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		update   Update
		wantKind stickerbot.EventKind
		wantErr  bool
	}{
		{
			name: "text update",
			update: Update{
				ID:         "u-1",
				Type:       UpdateTypeText,
				OccurredAt: occurredAt,
				Chat:       ChatRef{ID: "42", Private: true},
				Sender:     SenderRef{ID: 42, Username: "sender"},
				Text:       &TextPayload{Text: "hello"},
			},
			wantKind: stickerbot.EventKindText,
		},
		{
			name: "image update",
			update: Update{
				ID:         "u-2",
				Type:       UpdateTypeImage,
				OccurredAt: occurredAt,
				Chat:       ChatRef{ID: "42", Private: true},
				Sender:     SenderRef{ID: 42},
				Image:      &ImagePayload{Ref: "doc:5021:99"},
			},
			wantKind: stickerbot.EventKindImage,
		},
		{
			name: "button update",
			update: Update{
				ID:         "u-3",
				Type:       UpdateTypeButton,
				OccurredAt: occurredAt,
				Chat:       ChatRef{ID: "42", Private: true},
				Sender:     SenderRef{ID: 42},
				Button:     &ButtonPayload{QueryID: "77", MessageID: "9", Data: "page_1"},
			},
			wantKind: stickerbot.EventKindButton,
		},
		{
			name: "text update without payload",
			update: Update{
				ID:         "u-4",
				Type:       UpdateTypeText,
				OccurredAt: occurredAt,
				Chat:       ChatRef{ID: "42", Private: true},
				Sender:     SenderRef{ID: 42},
			},
			wantErr: true,
		},
		{
			name: "unsupported type",
			update: Update{
				ID:         "u-5",
				Type:       UpdateType("voice"),
				OccurredAt: occurredAt,
				Chat:       ChatRef{ID: "42", Private: true},
				Sender:     SenderRef{ID: 42},
			},
			wantErr: true,
		},
		{
			name: "missing chat id fails validation",
			update: Update{
				ID:         "u-6",
				Type:       UpdateTypeText,
				OccurredAt: occurredAt,
				Sender:     SenderRef{ID: 42},
				Text:       &TextPayload{Text: "hello"},
			},
			wantErr: true,
		},
	}

	decoder := NewDefaultDecoder()
	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event, err := decoder.Decode(context.Background(), testCase.update)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if event.Kind != testCase.wantKind {
				t.Fatalf("kind = %s, want %s", event.Kind, testCase.wantKind)
			}
			if event.ID != testCase.update.ID {
				t.Fatalf("id = %s, want %s", event.ID, testCase.update.ID)
			}
			if !event.OccurredAt.Equal(occurredAt) {
				t.Fatalf("occurred_at = %v, want %v", event.OccurredAt, occurredAt)
			}
			if event.Chat.ID != testCase.update.Chat.ID {
				t.Fatalf("chat id = %s, want %s", event.Chat.ID, testCase.update.Chat.ID)
			}
			if event.Sender.ID != testCase.update.Sender.ID {
				t.Fatalf("sender id = %d, want %d", event.Sender.ID, testCase.update.Sender.ID)
			}
		})
	}
}

func TestDefaultDecoderFillsMissingTimestamp(t *testing.T) {
	t.Parallel()

	decoder := NewDefaultDecoder()
	event, err := decoder.Decode(context.Background(), Update{
		ID:     "u-7",
		Type:   UpdateTypeText,
		Chat:   ChatRef{ID: "42", Private: true},
		Sender: SenderRef{ID: 42},
		Text:   &TextPayload{Text: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be filled")
	}
}
