package browse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// Button callback tokens are compact enough to fit platform payload limits:
// "del_<index>_<page>" deletes the association at snapshot position <index>
// and re-renders page <page>; "page_<n>" re-renders page <n>.
const (
	tokenDelete = "del"
	tokenPage   = "page"
)

// Action is one decoded button operation.
type Action struct {
	// Delete reports whether this is a delete action; otherwise page turn.
	Delete bool
	// Index is the snapshot position to delete (delete actions only).
	Index int
	// Page is the page to render after the action.
	Page int
}

// FormatDelete encodes a delete token for snapshot position index on page.
func FormatDelete(index, page int) string {
	return fmt.Sprintf("%s_%d_%d", tokenDelete, index, page)
}

// FormatPage encodes a page-turn token.
func FormatPage(page int) string {
	return fmt.Sprintf("%s_%d", tokenPage, page)
}

// ParseToken decodes a button token. Malformed tokens (wrong segment count,
// non-numeric fields, negative values) return ErrMalformedToken and must be
// answered with a user-visible error acknowledgment, never a crash.
func ParseToken(data string) (Action, error) {
	segments := strings.Split(data, "_")

	switch segments[0] {
	case tokenDelete:
		if len(segments) != 3 {
			return Action{}, fmt.Errorf("%w: delete token %q needs 3 segments", stickerbot.ErrMalformedToken, data)
		}
		index, err := parseTokenNumber(segments[1])
		if err != nil {
			return Action{}, fmt.Errorf("%w: delete token %q index: %v", stickerbot.ErrMalformedToken, data, err)
		}
		page, err := parseTokenNumber(segments[2])
		if err != nil {
			return Action{}, fmt.Errorf("%w: delete token %q page: %v", stickerbot.ErrMalformedToken, data, err)
		}

		return Action{Delete: true, Index: index, Page: page}, nil
	case tokenPage:
		if len(segments) != 2 {
			return Action{}, fmt.Errorf("%w: page token %q needs 2 segments", stickerbot.ErrMalformedToken, data)
		}
		page, err := parseTokenNumber(segments[1])
		if err != nil {
			return Action{}, fmt.Errorf("%w: page token %q: %v", stickerbot.ErrMalformedToken, data, err)
		}

		return Action{Page: page}, nil
	default:
		return Action{}, fmt.Errorf("%w: unknown token %q", stickerbot.ErrMalformedToken, data)
	}
}

func parseTokenNumber(raw string) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative: %d", value)
	}

	return value, nil
}
