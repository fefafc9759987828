package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// ImageKind distinguishes the Telegram media class behind an image reference.
type ImageKind string

const (
	// ImageKindDocument covers stickers and other document-backed media.
	ImageKindDocument ImageKind = "doc"
	// ImageKindPhoto covers compressed photo media.
	ImageKindPhoto ImageKind = "photo"
)

// ImageRef is the decoded form of the opaque reference the core stores.
// ID and AccessHash together let the bot re-send the media without having
// the file locally.
type ImageRef struct {
	Kind       ImageKind
	ID         int64
	AccessHash int64
}

// FormatImageRef encodes a media identity into the stable string form.
func FormatImageRef(ref ImageRef) string {
	return fmt.Sprintf("%s:%d:%d", ref.Kind, ref.ID, ref.AccessHash)
}

// ParseImageRef decodes a stored reference back into media identity.
func ParseImageRef(raw string) (ImageRef, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return ImageRef{}, fmt.Errorf("%w: %q", stickerbot.ErrInvalidImageRef, raw)
	}

	kind := ImageKind(parts[0])
	switch kind {
	case ImageKindDocument, ImageKindPhoto:
	default:
		return ImageRef{}, fmt.Errorf("%w: unknown kind %q", stickerbot.ErrInvalidImageRef, parts[0])
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ImageRef{}, fmt.Errorf("%w: parse id: %w", stickerbot.ErrInvalidImageRef, err)
	}
	accessHash, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ImageRef{}, fmt.Errorf("%w: parse access hash: %w", stickerbot.ErrInvalidImageRef, err)
	}

	return ImageRef{
		Kind:       kind,
		ID:         id,
		AccessHash: accessHash,
	}, nil
}
