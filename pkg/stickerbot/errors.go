package stickerbot

import "errors"

var (
	// ErrInvalidEvent indicates that an inbound event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("stickerbot: invalid event")
	// ErrInvalidOutboundRequest indicates that an outbound request is malformed.
	ErrInvalidOutboundRequest = errors.New("stickerbot: invalid outbound request")
	// ErrInvalidImageRef indicates that an image reference cannot be parsed.
	ErrInvalidImageRef = errors.New("stickerbot: invalid image reference")
	// ErrMalformedToken indicates that a button callback token cannot be parsed.
	ErrMalformedToken = errors.New("stickerbot: malformed callback token")
)
