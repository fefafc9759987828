// Package search resolves free text to a stored image reference.
//
// The matching strategy is deliberately loose substring search with a
// recency tie-break; it is not a ranked or fuzzy search.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// Short substrings produce too many false positives, so tokens under this
// rune count are never looked up.
const minTokenRunes = 2

// Resolver is the store subset the matcher queries.
type Resolver interface {
	// FindImageByTrigger returns the most recent association whose trigger
	// contains the normalized text as a substring.
	FindImageByTrigger(ctx context.Context, text string) (string, bool)
	// RecordUsage appends a usage event; it never fails the caller.
	RecordUsage(ctx context.Context, owner int64, imageRef, trigger string)
}

// Option mutates matcher configuration.
type Option func(*Matcher)

// WithLogger injects structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithReservedLabels registers menu-label strings that must never be searched.
func WithReservedLabels(labels []string) Option {
	return func(m *Matcher) {
		for _, label := range labels {
			m.reserved[stickerbot.NormalizeTrigger(label)] = struct{}{}
		}
	}
}

// Matcher orchestrates normalization and substring lookup with
// first-match-wins semantics.
type Matcher struct {
	store     Resolver
	messenger stickerbot.Messenger
	logger    *slog.Logger
	reserved  map[string]struct{}
}

// New creates a matcher over the given store and messenger.
func New(store Resolver, messenger stickerbot.Messenger, options ...Option) (*Matcher, error) {
	if store == nil {
		return nil, fmt.Errorf("new matcher: nil store")
	}
	if messenger == nil {
		return nil, fmt.Errorf("new matcher: nil messenger")
	}

	m := &Matcher{
		store:     store,
		messenger: messenger,
		logger:    slog.Default(),
		reserved:  make(map[string]struct{}),
	}
	for _, option := range options {
		option(m)
	}

	return m, nil
}

// Handle resolves text for one sender. On a hit it sends the image to chatID
// and records a usage event attributed to the searching sender. No hit means
// no observable effect. The returned bool reports whether a hit occurred.
func (m *Matcher) Handle(ctx context.Context, sender int64, chatID, text string) (bool, error) {
	normalized := stickerbot.NormalizeTrigger(text)
	if normalized == "" {
		return false, nil
	}
	if strings.HasPrefix(normalized, "/") {
		return false, nil
	}
	if _, isReserved := m.reserved[normalized]; isReserved {
		return false, nil
	}

	imageRef, trigger, found := m.resolve(ctx, normalized)
	if !found {
		return false, nil
	}

	if err := m.messenger.SendImage(ctx, stickerbot.SendImageRequest{
		ChatID:   chatID,
		ImageRef: imageRef,
	}); err != nil {
		return false, fmt.Errorf("search send image to %s: %w", chatID, err)
	}

	m.store.RecordUsage(ctx, sender, imageRef, trigger)
	m.logger.InfoContext(ctx,
		"search resolved",
		"sender", sender,
		"trigger", trigger,
	)

	return true, nil
}

// resolve attempts the whole text first, then word-boundary tokens in
// left-to-right order, stopping at the first hit.
func (m *Matcher) resolve(ctx context.Context, normalized string) (imageRef, trigger string, found bool) {
	if ref, ok := m.store.FindImageByTrigger(ctx, normalized); ok {
		return ref, normalized, true
	}

	for _, token := range tokenize(normalized) {
		if ref, ok := m.store.FindImageByTrigger(ctx, token); ok {
			return ref, token, true
		}
	}

	return "", "", false
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, field := range fields {
		if utf8.RuneCountInString(field) < minTokenRunes {
			continue
		}
		tokens = append(tokens, field)
	}

	return tokens
}
