// Package browse serves paginated review and targeted deletion of a sender's
// associations.
//
// Each sender gets an ephemeral snapshot of their associations, captured when
// browsing opens. Button presses carry snapshot positions, so a stale press
// (rendered before a concurrent deletion) resolves to "not found" instead of
// deleting the wrong row. The snapshot is unconditionally refreshed from the
// store after every deletion.
package browse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// PageSize is the fixed number of associations rendered per page.
const PageSize = 8

const (
	defaultSessionTTL = 30 * time.Minute
	defaultMaxEntries = 4096
)

// Lister is the store subset the browsing cache reads and writes.
type Lister interface {
	// ListAssociationsForOwner returns the owner's associations, newest first.
	ListAssociationsForOwner(ctx context.Context, owner int64) []stickerbot.Association
	// DeleteAssociation removes one exact binding scoped to owner.
	DeleteAssociation(ctx context.Context, owner int64, imageRef, trigger string) bool
}

// Page is one rendered browsing view.
type Page struct {
	// Text is the page body listing the visible associations.
	Text string
	// Keyboard carries delete buttons per item plus page navigation.
	Keyboard stickerbot.Keyboard
}

// DeleteOutcome reports the result of a delete button press.
type DeleteOutcome struct {
	// Deleted reports whether a row was removed from the store.
	Deleted bool
	// Ack is the short acknowledgment shown on the button press.
	Ack string
	// Page is the refreshed view to render afterwards.
	Page Page
}

// Option mutates cache configuration.
type Option func(*Cache)

// WithLogger injects structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionTTL sets how long an untouched snapshot survives.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries caps how many senders can hold a snapshot at once.
func WithMaxEntries(maxEntries int) Option {
	return func(c *Cache) {
		if maxEntries > 0 {
			c.maxEntries = maxEntries
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

type session struct {
	items     []stickerbot.Association
	touchedAt time.Time
}

// Cache holds per-sender browsing snapshots.
type Cache struct {
	store      Lister
	logger     *slog.Logger
	clock      func() time.Time
	ttl        time.Duration
	maxEntries int

	mu       sync.Mutex
	sessions map[int64]*session
}

// New creates a browsing session cache over the given store.
func New(store Lister, options ...Option) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("new browse cache: nil store")
	}

	c := &Cache{
		store:      store,
		logger:     slog.Default(),
		clock:      time.Now,
		ttl:        defaultSessionTTL,
		maxEntries: defaultMaxEntries,
		sessions:   make(map[int64]*session),
	}
	for _, option := range options {
		option(c)
	}

	return c, nil
}

// OpenSession captures a fresh snapshot for owner, superseding any prior one,
// and renders page 0.
func (c *Cache) OpenSession(ctx context.Context, owner int64) Page {
	snapshot := c.refresh(ctx, owner)

	return renderPage(snapshot, 0)
}

// RenderPage renders the requested page of the cached snapshot, lazily
// opening a session when none is cached. Out-of-range pages clamp to the
// last page.
func (c *Cache) RenderPage(ctx context.Context, owner int64, page int) Page {
	snapshot, ok := c.cached(owner)
	if !ok {
		snapshot = c.refresh(ctx, owner)
	}

	return renderPage(snapshot, page)
}

// ResolvePosition returns the association at the snapshot position, lazily
// opening a session when none is cached. A stale or out-of-bounds index
// returns found=false.
func (c *Cache) ResolvePosition(ctx context.Context, owner int64, index int) (stickerbot.Association, bool) {
	snapshot, ok := c.cached(owner)
	if !ok {
		snapshot = c.refresh(ctx, owner)
	}
	if index < 0 || index >= len(snapshot) {
		return stickerbot.Association{}, false
	}

	return snapshot[index], true
}

// DeleteAtPosition deletes the association at the snapshot position, then
// unconditionally refreshes the snapshot from the store before rendering the
// next view, so the view reflects true persisted state even if the deletion
// itself failed.
func (c *Cache) DeleteAtPosition(ctx context.Context, owner int64, index, page int) DeleteOutcome {
	target, found := c.ResolvePosition(ctx, owner, index)
	if !found {
		// Stale reference: a neutral outcome, storage untouched.
		return DeleteOutcome{
			Ack:  "Not found",
			Page: renderPage(c.refresh(ctx, owner), page),
		}
	}

	deleted := c.store.DeleteAssociation(ctx, owner, target.ImageRef, target.Trigger)
	snapshot := c.refresh(ctx, owner)

	c.logger.InfoContext(ctx,
		"browse delete",
		"owner", owner,
		"trigger", target.Trigger,
		"deleted", deleted,
	)

	ack := "Deleted"
	if !deleted {
		ack = "Not found"
	}

	return DeleteOutcome{
		Deleted: deleted,
		Ack:     ack,
		Page:    renderPage(snapshot, page),
	}
}

// Forget drops the cached snapshot for owner.
func (c *Cache) Forget(owner int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, owner)
}

func (c *Cache) cached(owner int64) ([]stickerbot.Association, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.sessions[owner]
	if !ok {
		return nil, false
	}
	if c.clock().Sub(entry.touchedAt) > c.ttl {
		delete(c.sessions, owner)
		return nil, false
	}
	entry.touchedAt = c.clock()

	return entry.items, true
}

func (c *Cache) refresh(ctx context.Context, owner int64) []stickerbot.Association {
	items := c.store.ListAssociationsForOwner(ctx, owner)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	for key, entry := range c.sessions {
		if now.Sub(entry.touchedAt) > c.ttl {
			delete(c.sessions, key)
		}
	}
	if _, exists := c.sessions[owner]; !exists && len(c.sessions) >= c.maxEntries {
		var oldestKey int64
		var oldestAt time.Time
		first := true
		for key, entry := range c.sessions {
			if first || entry.touchedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.touchedAt
				first = false
			}
		}
		if !first {
			delete(c.sessions, oldestKey)
		}
	}
	c.sessions[owner] = &session{items: items, touchedAt: now}

	return items
}

func renderPage(snapshot []stickerbot.Association, page int) Page {
	if len(snapshot) == 0 {
		return Page{Text: "You have no stickers yet. Use the menu to add one."}
	}

	pageCount := (len(snapshot) + PageSize - 1) / PageSize
	if page >= pageCount {
		page = pageCount - 1
	}
	if page < 0 {
		page = 0
	}

	start := page * PageSize
	end := start + PageSize
	if end > len(snapshot) {
		end = len(snapshot)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Your stickers (%d), page %d/%d:\n", len(snapshot), page+1, pageCount)

	var rows [][]stickerbot.Button
	for position := start; position < end; position++ {
		association := snapshot[position]
		fmt.Fprintf(&body, "%d. %s\n", position+1, association.Trigger)
		rows = append(rows, []stickerbot.Button{{
			Label: fmt.Sprintf("❌ %s", association.Trigger),
			Data:  FormatDelete(position, page),
		}})
	}

	var navigation []stickerbot.Button
	if page > 0 {
		navigation = append(navigation, stickerbot.Button{Label: "⬅️ Prev", Data: FormatPage(page - 1)})
	}
	if page < pageCount-1 {
		navigation = append(navigation, stickerbot.Button{Label: "Next ➡️", Data: FormatPage(page + 1)})
	}
	if len(navigation) > 0 {
		rows = append(rows, navigation)
	}

	return Page{
		Text:     strings.TrimRight(body.String(), "\n"),
		Keyboard: stickerbot.Keyboard{Rows: rows},
	}
}
