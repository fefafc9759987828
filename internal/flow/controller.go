// Package flow drives the multi-step add-association conversation.
//
// Per-sender state lives in a bounded keyed store with lazy TTL expiry, so an
// abandoned flow falls back to Idle after the configured idle timeout instead
// of pinning memory forever.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// State identifies the sender's position in the add flow.
type State string

const (
	// StateIdle means no add flow is in progress.
	StateIdle State = "idle"
	// StateAwaitingTriggers means the sender was asked for trigger words.
	StateAwaitingTriggers State = "awaiting_triggers"
	// StateAwaitingImage means triggers are pending and an image is expected.
	StateAwaitingImage State = "awaiting_image"
)

const (
	minTriggerRunes = 3
	maxTriggers     = 20

	defaultIdleTimeout = 15 * time.Minute
	defaultMaxEntries  = 4096
)

// Adder is the store subset the flow writes through.
type Adder interface {
	// AddAssociation returns whether a new binding was inserted; false on
	// duplicate.
	AddAssociation(ctx context.Context, owner int64, imageRef, trigger string) bool
}

// Reply is the user-visible outcome of one flow step.
type Reply struct {
	// Text is the message to send back to the sender.
	Text string
}

// Option mutates controller configuration.
type Option func(*Controller)

// WithLogger injects structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIdleTimeout sets how long an abandoned flow survives before it is
// treated as Idle again.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.idleTimeout = timeout
		}
	}
}

// WithMaxEntries caps how many senders can hold flow state at once.
func WithMaxEntries(maxEntries int) Option {
	return func(c *Controller) {
		if maxEntries > 0 {
			c.maxEntries = maxEntries
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

type senderState struct {
	state     State
	pending   []string
	touchedAt time.Time
}

// Controller is the finite-state machine for the add-association flow.
type Controller struct {
	store       Adder
	logger      *slog.Logger
	clock       func() time.Time
	idleTimeout time.Duration
	maxEntries  int

	mu     sync.Mutex
	states map[int64]*senderState
}

// New creates a flow controller writing through the given store.
func New(store Adder, options ...Option) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("new flow controller: nil store")
	}

	c := &Controller{
		store:       store,
		logger:      slog.Default(),
		clock:       time.Now,
		idleTimeout: defaultIdleTimeout,
		maxEntries:  defaultMaxEntries,
		states:      make(map[int64]*senderState),
	}
	for _, option := range options {
		option(c)
	}

	return c, nil
}

// State returns the sender's current flow state. Expired entries read as Idle.
func (c *Controller) State(owner int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.liveEntry(owner)
	if !ok {
		return StateIdle
	}

	return entry.state
}

// Begin starts the add flow: Idle -> AwaitingTriggers. Restarting mid-flow
// discards any pending triggers and asks again.
func (c *Controller) Begin(_ context.Context, owner int64) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setState(owner, &senderState{
		state:     StateAwaitingTriggers,
		touchedAt: c.clock(),
	})

	return Reply{Text: "Send me the trigger words for your sticker, separated by commas.\nExample: hello, hi there, greetings"}
}

// Cancel aborts the flow from any state back to Idle.
func (c *Controller) Cancel(_ context.Context, owner int64) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.liveEntry(owner); !ok {
		return Reply{Text: "Nothing to cancel."}
	}
	delete(c.states, owner)

	return Reply{Text: "Okay, cancelled."}
}

// HandleText consumes a text event for a sender who is mid-flow.
//
// In AwaitingTriggers the text is parsed as a comma-separated trigger list;
// validation failures report the violated constraint and leave state
// unchanged. In AwaitingImage any text is wrong content: reported, state
// unchanged, the sender may retry indefinitely.
func (c *Controller) HandleText(_ context.Context, owner int64, text string) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.liveEntry(owner)
	if !ok {
		return Reply{Text: "We weren't in the middle of anything. Use the menu to add a sticker."}
	}

	switch entry.state {
	case StateAwaitingTriggers:
		triggers, reply, ok := parseTriggerList(text)
		if !ok {
			return reply
		}
		entry.pending = triggers
		entry.state = StateAwaitingImage
		entry.touchedAt = c.clock()

		return Reply{Text: fmt.Sprintf("Got %d trigger(s). Now send me the sticker or photo to bind them to.", len(triggers))}
	case StateAwaitingImage:
		return Reply{Text: "I'm waiting for a sticker or photo. Send an image, or /cancel to abort."}
	default:
		return Reply{Text: "We weren't in the middle of anything. Use the menu to add a sticker."}
	}
}

// HandleImage consumes an image event for a sender who is mid-flow.
//
// In AwaitingImage every pending trigger is bound to the image and the flow
// returns to Idle regardless of how many inserts were duplicates. An image
// sent while triggers are still expected is wrong content.
func (c *Controller) HandleImage(ctx context.Context, owner int64, imageRef string) Reply {
	c.mu.Lock()
	entry, ok := c.liveEntry(owner)
	if !ok || entry.state != StateAwaitingImage {
		c.mu.Unlock()
		if ok && entry.state == StateAwaitingTriggers {
			return Reply{Text: "Trigger words first: send a comma-separated list before the image."}
		}

		return Reply{Text: "We weren't in the middle of anything. Use the menu to add a sticker."}
	}
	pending := entry.pending
	delete(c.states, owner)
	c.mu.Unlock()

	added := 0
	for _, trigger := range pending {
		if c.store.AddAssociation(ctx, owner, imageRef, trigger) {
			added++
		}
	}

	c.logger.InfoContext(ctx,
		"add flow completed",
		"owner", owner,
		"added", added,
		"attempted", len(pending),
	)

	if added == 0 {
		return Reply{Text: "Nothing added: all of those triggers are already bound to this image."}
	}

	return Reply{Text: fmt.Sprintf("Done! Added %d of %d trigger(s).", added, len(pending))}
}

// liveEntry returns the sender's entry, lazily expiring it when the idle
// timeout has passed. Callers hold c.mu.
func (c *Controller) liveEntry(owner int64) (*senderState, bool) {
	entry, ok := c.states[owner]
	if !ok {
		return nil, false
	}
	if c.clock().Sub(entry.touchedAt) > c.idleTimeout {
		delete(c.states, owner)
		return nil, false
	}

	return entry, true
}

// setState stores a fresh entry, sweeping expired ones and evicting the
// stalest entry when the cap is hit. Callers hold c.mu.
func (c *Controller) setState(owner int64, entry *senderState) {
	now := c.clock()
	for key, existing := range c.states {
		if now.Sub(existing.touchedAt) > c.idleTimeout {
			delete(c.states, key)
		}
	}

	if _, exists := c.states[owner]; !exists && len(c.states) >= c.maxEntries {
		var oldestKey int64
		var oldestAt time.Time
		first := true
		for key, existing := range c.states {
			if first || existing.touchedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = existing.touchedAt
				first = false
			}
		}
		if !first {
			delete(c.states, oldestKey)
		}
	}

	c.states[owner] = entry
}

// parseTriggerList normalizes a comma-separated trigger list. Empty items
// (stray commas) are dropped; the remaining list must be non-empty, each item
// at least minTriggerRunes runes, and at most maxTriggers items long.
func parseTriggerList(text string) ([]string, Reply, bool) {
	var triggers []string
	for _, item := range strings.Split(text, ",") {
		normalized := stickerbot.NormalizeTrigger(item)
		if normalized == "" {
			continue
		}
		triggers = append(triggers, normalized)
	}

	if len(triggers) == 0 {
		return nil, Reply{Text: "I couldn't find any trigger words there. Send a comma-separated list, for example: hello, hi there"}, false
	}
	if len(triggers) > maxTriggers {
		return nil, Reply{Text: fmt.Sprintf("That's too many: send at most %d triggers at a time.", maxTriggers)}, false
	}
	for _, trigger := range triggers {
		if utf8.RuneCountInString(trigger) < minTriggerRunes {
			return nil, Reply{Text: fmt.Sprintf("Trigger %q is too short: triggers need at least %d characters.", trigger, minTriggerRunes)}, false
		}
	}

	return triggers, Reply{}, true
}
