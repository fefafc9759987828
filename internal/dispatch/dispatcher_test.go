package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/earhater/shumaxer-bot/internal/browse"
	"github.com/earhater/shumaxer-bot/internal/flow"
	"github.com/earhater/shumaxer-bot/internal/search"
	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// memStore is an in-memory stand-in for the SQLite store, preserving its
// insertion-order recency semantics.
type memStore struct {
	rows   []stickerbot.Association
	usages []stickerbot.UsageEvent
}

func (m *memStore) AddAssociation(_ context.Context, owner int64, imageRef, trigger string) bool {
	normalized := stickerbot.NormalizeTrigger(trigger)
	for _, row := range m.rows {
		if row.ImageRef == imageRef && row.Trigger == normalized {
			return false
		}
	}
	m.rows = append(m.rows, stickerbot.Association{OwnerID: owner, ImageRef: imageRef, Trigger: normalized})

	return true
}

func (m *memStore) FindImageByTrigger(_ context.Context, text string) (string, bool) {
	normalized := stickerbot.NormalizeTrigger(text)
	if normalized == "" {
		return "", false
	}
	for i := len(m.rows) - 1; i >= 0; i-- {
		if strings.Contains(m.rows[i].Trigger, normalized) {
			return m.rows[i].ImageRef, true
		}
	}

	return "", false
}

func (m *memStore) ListAssociationsForOwner(_ context.Context, owner int64) []stickerbot.Association {
	var owned []stickerbot.Association
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].OwnerID == owner {
			owned = append(owned, m.rows[i])
		}
	}

	return owned
}

func (m *memStore) DeleteAssociation(_ context.Context, owner int64, imageRef, trigger string) bool {
	normalized := stickerbot.NormalizeTrigger(trigger)
	for i, row := range m.rows {
		if row.OwnerID == owner && row.ImageRef == imageRef && row.Trigger == normalized {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return true
		}
	}

	return false
}

func (m *memStore) RecordUsage(_ context.Context, owner int64, imageRef, trigger string) {
	m.usages = append(m.usages, stickerbot.UsageEvent{OwnerID: owner, ImageRef: imageRef, Trigger: trigger})
}

func (m *memStore) GetStats(_ context.Context) stickerbot.Stats {
	images := make(map[string]struct{})
	owners := make(map[int64]struct{})
	for _, row := range m.rows {
		images[row.ImageRef] = struct{}{}
		owners[row.OwnerID] = struct{}{}
	}
	counts := make(map[string]int64)
	for _, usage := range m.usages {
		counts[usage.Trigger]++
	}
	var top []stickerbot.TriggerUsage
	for trigger, count := range counts {
		top = append(top, stickerbot.TriggerUsage{Trigger: trigger, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Trigger < top[j].Trigger
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return stickerbot.Stats{
		TotalAssociations: int64(len(m.rows)),
		UniqueImages:      int64(len(images)),
		TotalOwners:       int64(len(owners)),
		TopTriggers:       top,
	}
}

type captureMessenger struct {
	texts       []stickerbot.SendTextRequest
	images      []stickerbot.SendImageRequest
	answers     []stickerbot.AnswerButtonRequest
	edits       []stickerbot.EditTextRequest
	buttonEdits []stickerbot.EditButtonsRequest
}

func (c *captureMessenger) SendText(_ context.Context, request stickerbot.SendTextRequest) (*stickerbot.SentMessage, error) {
	c.texts = append(c.texts, request)
	return &stickerbot.SentMessage{ID: fmt.Sprintf("%d", len(c.texts)), ChatID: request.ChatID}, nil
}

func (c *captureMessenger) SendImage(_ context.Context, request stickerbot.SendImageRequest) error {
	c.images = append(c.images, request)
	return nil
}

func (c *captureMessenger) AnswerButton(_ context.Context, request stickerbot.AnswerButtonRequest) error {
	c.answers = append(c.answers, request)
	return nil
}

func (c *captureMessenger) EditText(_ context.Context, request stickerbot.EditTextRequest) error {
	c.edits = append(c.edits, request)
	return nil
}

func (c *captureMessenger) EditButtons(_ context.Context, request stickerbot.EditButtonsRequest) error {
	c.buttonEdits = append(c.buttonEdits, request)
	return nil
}

func (c *captureMessenger) lastText(t *testing.T) string {
	t.Helper()
	if len(c.texts) == 0 {
		t.Fatal("no text was sent")
	}

	return c.texts[len(c.texts)-1].Text
}

type harness struct {
	dispatcher *Dispatcher
	messenger  *captureMessenger
	store      *memStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := &memStore{}
	messenger := &captureMessenger{}

	matcher, err := search.New(store, messenger, search.WithReservedLabels(MenuLabels()))
	if err != nil {
		t.Fatalf("new matcher failed: %v", err)
	}
	flows, err := flow.New(store)
	if err != nil {
		t.Fatalf("new flow controller failed: %v", err)
	}
	sessions, err := browse.New(store)
	if err != nil {
		t.Fatalf("new browse cache failed: %v", err)
	}
	dispatcher, err := New(messenger, matcher, flows, sessions, store)
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	return &harness{dispatcher: dispatcher, messenger: messenger, store: store}
}

func (h *harness) publish(t *testing.T, event *stickerbot.Event) {
	t.Helper()
	if err := h.dispatcher.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

var eventSequence int

func textEvent(sender int64, text string) *stickerbot.Event {
	eventSequence++
	return &stickerbot.Event{
		ID:         fmt.Sprintf("evt-%d", eventSequence),
		Kind:       stickerbot.EventKindText,
		OccurredAt: time.Now(),
		Chat:       stickerbot.Chat{ID: fmt.Sprintf("chat-%d", sender), Private: true},
		Sender:     stickerbot.Sender{ID: sender},
		Text:       &stickerbot.TextMessage{Text: text},
	}
}

func imageEvent(sender int64, ref string) *stickerbot.Event {
	eventSequence++
	return &stickerbot.Event{
		ID:         fmt.Sprintf("evt-%d", eventSequence),
		Kind:       stickerbot.EventKindImage,
		OccurredAt: time.Now(),
		Chat:       stickerbot.Chat{ID: fmt.Sprintf("chat-%d", sender), Private: true},
		Sender:     stickerbot.Sender{ID: sender},
		Image:      &stickerbot.ImageMessage{Ref: ref},
	}
}

func buttonEvent(sender int64, data string) *stickerbot.Event {
	eventSequence++
	return &stickerbot.Event{
		ID:         fmt.Sprintf("evt-%d", eventSequence),
		Kind:       stickerbot.EventKindButton,
		OccurredAt: time.Now(),
		Chat:       stickerbot.Chat{ID: fmt.Sprintf("chat-%d", sender), Private: true},
		Sender:     stickerbot.Sender{ID: sender},
		Button:     &stickerbot.ButtonPress{QueryID: "q-1", MessageID: "m-1", Data: data},
	}
}

func TestEndToEndAddThenSearch(t *testing.T) {
	h := newHarness(t)

	h.publish(t, textEvent(1, "/add"))
	h.publish(t, textEvent(1, "hi, hello"))
	h.publish(t, imageEvent(1, "doc:10:20"))

	if !strings.Contains(h.messenger.lastText(t), "Added 2 of 2") {
		t.Fatalf("confirmation = %q", h.messenger.lastText(t))
	}
	if len(h.store.rows) != 2 {
		t.Fatalf("store rows = %d, want 2", len(h.store.rows))
	}

	// "hello there" has no whole-text row, so the token "hello" resolves.
	h.publish(t, textEvent(1, "hello there"))

	if len(h.messenger.images) != 1 || h.messenger.images[0].ImageRef != "doc:10:20" {
		t.Fatalf("sent images = %+v, want doc:10:20", h.messenger.images)
	}
	if len(h.store.usages) != 1 {
		t.Fatalf("usage events = %d, want exactly 1", len(h.store.usages))
	}
	usage := h.store.usages[0]
	if usage.Trigger != "hello" || usage.OwnerID != 1 {
		t.Fatalf("usage = %+v, want token match on hello by sender 1", usage)
	}
}

func TestSearchMissIsSilent(t *testing.T) {
	h := newHarness(t)

	h.publish(t, textEvent(1, "nothing here"))

	if len(h.messenger.texts) != 0 || len(h.messenger.images) != 0 {
		t.Fatalf("miss must have no observable effect, sent %d texts %d images",
			len(h.messenger.texts), len(h.messenger.images))
	}
}

func TestGroupChatIgnored(t *testing.T) {
	h := newHarness(t)

	event := textEvent(1, "/add")
	event.Chat.Private = false
	h.publish(t, event)

	if len(h.messenger.texts) != 0 {
		t.Fatalf("group event must be dropped, sent %+v", h.messenger.texts)
	}
}

func TestMidFlowTextIsNotSearched(t *testing.T) {
	h := newHarness(t)
	h.store.AddAssociation(context.Background(), 2, "doc:1:1", "hello")

	h.publish(t, textEvent(1, "/add"))
	h.publish(t, textEvent(1, "hello"))

	if len(h.messenger.images) != 0 {
		t.Fatal("mid-flow text must be consumed by the flow, not searched")
	}
	if !strings.Contains(h.messenger.lastText(t), "Got 1 trigger(s)") {
		t.Fatalf("flow reply = %q", h.messenger.lastText(t))
	}
}

func TestMidFlowCommandRefusedExceptCancel(t *testing.T) {
	h := newHarness(t)

	h.publish(t, textEvent(1, "/add"))
	h.publish(t, textEvent(1, "/stats"))
	if !strings.Contains(h.messenger.lastText(t), "middle of adding") {
		t.Fatalf("mid-flow command reply = %q", h.messenger.lastText(t))
	}

	h.publish(t, textEvent(1, "/cancel"))
	if !strings.Contains(h.messenger.lastText(t), "cancelled") {
		t.Fatalf("cancel reply = %q", h.messenger.lastText(t))
	}

	// Back to Idle: stats works again.
	h.publish(t, textEvent(1, "/stats"))
	if !strings.Contains(h.messenger.lastText(t), "Stickers: 0") {
		t.Fatalf("stats reply = %q", h.messenger.lastText(t))
	}
}

func TestMenuLabelsNeverSearched(t *testing.T) {
	h := newHarness(t)
	h.store.AddAssociation(context.Background(), 1, "doc:1:1", stickerbot.NormalizeTrigger(MenuStats))

	h.publish(t, textEvent(1, MenuStats))

	if len(h.messenger.images) != 0 {
		t.Fatal("menu label must route to the menu handler, not search")
	}
	if !strings.Contains(h.messenger.lastText(t), "Stickers: 1") {
		t.Fatalf("stats reply = %q", h.messenger.lastText(t))
	}
}

func TestStartSendsMenuKeyboard(t *testing.T) {
	h := newHarness(t)

	h.publish(t, textEvent(1, "/start"))

	if len(h.messenger.texts) != 1 {
		t.Fatalf("want one greeting, got %d", len(h.messenger.texts))
	}
	if got := h.messenger.texts[0].MenuLabels; len(got) != 4 {
		t.Fatalf("menu labels = %v, want the four reserved labels", got)
	}
}

func TestImageOutsideFlowIgnored(t *testing.T) {
	h := newHarness(t)

	h.publish(t, imageEvent(1, "doc:10:20"))

	if len(h.messenger.texts) != 0 {
		t.Fatalf("image outside flow must be silent, sent %+v", h.messenger.texts)
	}
	if len(h.store.rows) != 0 {
		t.Fatal("image outside flow must not store anything")
	}
}

func TestButtonPaginationRefreshAfterDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		h.store.AddAssociation(ctx, 1, fmt.Sprintf("doc:%d:%d", i, i), fmt.Sprintf("trigger%02d", i))
	}

	h.publish(t, textEvent(1, MenuBrowse))
	if !strings.Contains(h.messenger.lastText(t), "Your stickers (10), page 1/2") {
		t.Fatalf("browse page = %q", h.messenger.lastText(t))
	}

	// Delete item at snapshot position 3 from page 0.
	h.publish(t, buttonEvent(1, "del_3_0"))

	if len(h.messenger.answers) != 1 || h.messenger.answers[0].Text != "Deleted" {
		t.Fatalf("answers = %+v, want Deleted ack", h.messenger.answers)
	}
	if len(h.messenger.edits) != 1 {
		t.Fatalf("edits = %d, want re-render", len(h.messenger.edits))
	}
	edit := h.messenger.edits[0]
	if !strings.Contains(edit.Text, "Your stickers (9), page 1/2") {
		t.Fatalf("re-rendered page = %q, want 9 items", edit.Text)
	}
	if edit.Keyboard.Rows[0][0].Data != browse.FormatDelete(0, 0) {
		t.Fatalf("first token after refresh = %s, positions must renumber", edit.Keyboard.Rows[0][0].Data)
	}

	// Page navigation against the refreshed snapshot.
	h.publish(t, buttonEvent(1, "page_1"))
	if !strings.Contains(h.messenger.edits[1].Text, "page 2/2") {
		t.Fatalf("page 2 render = %q", h.messenger.edits[1].Text)
	}
}

func TestButtonStaleDelete(t *testing.T) {
	h := newHarness(t)
	h.store.AddAssociation(context.Background(), 1, "doc:1:1", "hello")

	h.publish(t, textEvent(1, MenuBrowse))
	h.publish(t, buttonEvent(1, "del_9_0"))

	if h.messenger.answers[0].Text != "Not found" {
		t.Fatalf("ack = %q, want Not found", h.messenger.answers[0].Text)
	}
	if len(h.store.rows) != 1 {
		t.Fatal("stale delete must not mutate storage")
	}
}

func TestButtonMalformedToken(t *testing.T) {
	tests := []string{"del_x_0", "del_1", "page_", "bogus", "page_1_2"}

	for _, data := range tests {
		data := data
		t.Run(data, func(t *testing.T) {
			h := newHarness(t)

			h.publish(t, buttonEvent(1, data))

			if len(h.messenger.answers) != 1 || h.messenger.answers[0].Text != "Error" {
				t.Fatalf("answers = %+v, want error ack", h.messenger.answers)
			}
			if len(h.messenger.edits) != 0 {
				t.Fatal("malformed token must not edit anything")
			}
		})
	}
}

func TestDeletingLastItemClearsKeyboard(t *testing.T) {
	h := newHarness(t)
	h.store.AddAssociation(context.Background(), 1, "doc:1:1", "hello")

	h.publish(t, textEvent(1, MenuBrowse))
	h.publish(t, buttonEvent(1, "del_0_0"))

	if len(h.messenger.buttonEdits) != 1 {
		t.Fatalf("want keyboard-clearing edit, got %d", len(h.messenger.buttonEdits))
	}
	if !strings.Contains(h.messenger.edits[0].Text, "no stickers yet") {
		t.Fatalf("empty view = %q", h.messenger.edits[0].Text)
	}
}

type panicSearcher struct{}

func (panicSearcher) Handle(context.Context, int64, string, string) (bool, error) {
	panic("boom")
}

func TestPanicBecomesApology(t *testing.T) {
	store := &memStore{}
	messenger := &captureMessenger{}
	flows, err := flow.New(store)
	if err != nil {
		t.Fatalf("new flow controller failed: %v", err)
	}
	sessions, err := browse.New(store)
	if err != nil {
		t.Fatalf("new browse cache failed: %v", err)
	}
	dispatcher, err := New(messenger, panicSearcher{}, flows, sessions, store)
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	if err := dispatcher.Publish(context.Background(), textEvent(1, "anything")); err != nil {
		t.Fatalf("publish must survive handler panic, got %v", err)
	}
	if len(messenger.texts) != 1 || !strings.Contains(messenger.texts[0].Text, "went wrong") {
		t.Fatalf("apology = %+v", messenger.texts)
	}
}
