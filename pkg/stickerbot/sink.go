package stickerbot

import "context"

// EventSink receives neutral events published by transport drivers.
type EventSink interface {
	// Publish delivers one validated event for handling.
	Publish(ctx context.Context, event *Event) error
}
