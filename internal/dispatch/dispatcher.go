// Package dispatch routes inbound events to exactly one handler.
//
// The router reads the sender's conversation state as a precondition and then
// hands the event to one of the flow, menu, search, or browse handlers, so
// whether free text is a flow input or a search query is decided in a single
// place. One event is fully handled before the next starts.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/earhater/shumaxer-bot/internal/browse"
	"github.com/earhater/shumaxer-bot/internal/flow"
	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

// Searcher resolves free text to an image send.
type Searcher interface {
	// Handle returns whether the text resolved to a hit.
	Handle(ctx context.Context, sender int64, chatID, text string) (bool, error)
}

// FlowController drives the add-association conversation.
type FlowController interface {
	State(owner int64) flow.State
	Begin(ctx context.Context, owner int64) flow.Reply
	Cancel(ctx context.Context, owner int64) flow.Reply
	HandleText(ctx context.Context, owner int64, text string) flow.Reply
	HandleImage(ctx context.Context, owner int64, imageRef string) flow.Reply
}

// Browser serves paginated review and deletion of associations.
type Browser interface {
	OpenSession(ctx context.Context, owner int64) browse.Page
	RenderPage(ctx context.Context, owner int64, page int) browse.Page
	DeleteAtPosition(ctx context.Context, owner int64, index, page int) browse.DeleteOutcome
}

// StatsReader aggregates store-wide statistics.
type StatsReader interface {
	GetStats(ctx context.Context) stickerbot.Stats
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithLogger injects structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher is the single entry point for all inbound events.
type Dispatcher struct {
	logger    *slog.Logger
	messenger stickerbot.Messenger
	matcher   Searcher
	flows     FlowController
	sessions  Browser
	stats     StatsReader

	// Serializes event handling so the "one event fully handled before the
	// next starts" contract holds even under a concurrent transport.
	mu sync.Mutex
}

// New creates a dispatcher over the core components.
func New(
	messenger stickerbot.Messenger,
	matcher Searcher,
	flows FlowController,
	sessions Browser,
	stats StatsReader,
	options ...Option,
) (*Dispatcher, error) {
	if messenger == nil {
		return nil, fmt.Errorf("new dispatcher: nil messenger")
	}
	if matcher == nil {
		return nil, fmt.Errorf("new dispatcher: nil matcher")
	}
	if flows == nil {
		return nil, fmt.Errorf("new dispatcher: nil flow controller")
	}
	if sessions == nil {
		return nil, fmt.Errorf("new dispatcher: nil browser")
	}
	if stats == nil {
		return nil, fmt.Errorf("new dispatcher: nil stats reader")
	}

	d := &Dispatcher{
		logger:    slog.Default(),
		messenger: messenger,
		matcher:   matcher,
		flows:     flows,
		sessions:  sessions,
		stats:     stats,
	}
	for _, option := range options {
		option(d)
	}

	return d, nil
}

// Publish consumes one inbound event to completion. A failing or panicking
// handler is logged and converted into a generic apology; Publish itself
// never propagates handler failures, so the event loop keeps serving.
func (d *Dispatcher) Publish(ctx context.Context, event *stickerbot.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("dispatch event: %w", err)
	}
	if !event.Chat.Private || event.Sender.IsBot {
		// Flows are private-only; group and bot traffic stops at the boundary.
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handleSafely(ctx, event); err != nil {
		d.logger.ErrorContext(ctx,
			"event handler failed",
			"event_id", event.ID,
			"kind", event.Kind,
			"sender", event.Sender.ID,
			"error", err,
		)
		d.apologize(ctx, event)
	}

	return nil
}

func (d *Dispatcher) handleSafely(ctx context.Context, event *stickerbot.Event) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("handle %s: panic recovered: %v", event.Kind, recovered)
	}()

	switch event.Kind {
	case stickerbot.EventKindText:
		return d.handleText(ctx, event)
	case stickerbot.EventKindImage:
		return d.handleImage(ctx, event)
	case stickerbot.EventKindButton:
		return d.handleButton(ctx, event)
	default:
		return fmt.Errorf("handle event: unsupported kind %q", event.Kind)
	}
}

// handleText routes one text event: commands first, then the mid-flow check,
// then menu labels, then search.
func (d *Dispatcher) handleText(ctx context.Context, event *stickerbot.Event) error {
	sender := event.Sender.ID
	chatID := event.Chat.ID
	text := strings.TrimSpace(event.Text.Text)

	if strings.HasPrefix(text, CommandMarker) {
		return d.handleCommand(ctx, sender, chatID, text)
	}

	if d.flows.State(sender) != flow.StateIdle {
		reply := d.flows.HandleText(ctx, sender, text)
		return d.sendText(ctx, chatID, reply.Text)
	}

	switch text {
	case MenuAdd:
		reply := d.flows.Begin(ctx, sender)
		return d.sendText(ctx, chatID, reply.Text)
	case MenuBrowse:
		return d.sendPage(ctx, chatID, d.sessions.OpenSession(ctx, sender))
	case MenuStats:
		return d.sendText(ctx, chatID, renderStats(d.stats.GetStats(ctx)))
	case MenuHelp:
		return d.sendText(ctx, chatID, helpText)
	}

	// A miss has no observable effect.
	if _, err := d.matcher.Handle(ctx, sender, chatID, text); err != nil {
		return fmt.Errorf("search text: %w", err)
	}

	return nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, sender int64, chatID, text string) error {
	command := strings.ToLower(strings.TrimPrefix(strings.Fields(text)[0], CommandMarker))
	// Telegram appends the bot handle in some clients: "/add@bot".
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}

	if command == "cancel" {
		reply := d.flows.Cancel(ctx, sender)
		return d.sendText(ctx, chatID, reply.Text)
	}

	// Mid-flow, every other command is refused so the flow stays the single
	// consumer of the conversation.
	if d.flows.State(sender) != flow.StateIdle {
		return d.sendText(ctx, chatID, midFlowCommandText)
	}

	switch command {
	case "start":
		if _, err := d.messenger.SendText(ctx, stickerbot.SendTextRequest{
			ChatID:     chatID,
			Text:       greetingText,
			MenuLabels: MenuLabels(),
		}); err != nil {
			return fmt.Errorf("send greeting: %w", err)
		}
		return nil
	case "help":
		return d.sendText(ctx, chatID, helpText)
	case "add":
		reply := d.flows.Begin(ctx, sender)
		return d.sendText(ctx, chatID, reply.Text)
	case "mine", "list":
		return d.sendPage(ctx, chatID, d.sessions.OpenSession(ctx, sender))
	case "stats":
		return d.sendText(ctx, chatID, renderStats(d.stats.GetStats(ctx)))
	default:
		return d.sendText(ctx, chatID, unknownCommandText)
	}
}

// handleImage feeds the add flow; an image outside the flow is ignored.
func (d *Dispatcher) handleImage(ctx context.Context, event *stickerbot.Event) error {
	sender := event.Sender.ID
	if d.flows.State(sender) == flow.StateIdle {
		return nil
	}

	reply := d.flows.HandleImage(ctx, sender, event.Image.Ref)

	return d.sendText(ctx, event.Chat.ID, reply.Text)
}

// handleButton serves pagination and deletion presses. Malformed tokens get a
// user-visible error acknowledgment instead of crashing the handler.
func (d *Dispatcher) handleButton(ctx context.Context, event *stickerbot.Event) error {
	press := event.Button
	sender := event.Sender.ID

	action, err := browse.ParseToken(press.Data)
	if err != nil {
		d.logger.WarnContext(ctx,
			"malformed button token",
			"sender", sender,
			"data", press.Data,
			"error", err,
		)
		if answerErr := d.messenger.AnswerButton(ctx, stickerbot.AnswerButtonRequest{
			QueryID: press.QueryID,
			Text:    "Error",
		}); answerErr != nil {
			return fmt.Errorf("answer malformed token: %w", answerErr)
		}

		return nil
	}

	var ack string
	var page browse.Page
	if action.Delete {
		outcome := d.sessions.DeleteAtPosition(ctx, sender, action.Index, action.Page)
		ack = outcome.Ack
		page = outcome.Page
	} else {
		page = d.sessions.RenderPage(ctx, sender, action.Page)
	}

	if err := d.messenger.AnswerButton(ctx, stickerbot.AnswerButtonRequest{
		QueryID: press.QueryID,
		Text:    ack,
	}); err != nil {
		return fmt.Errorf("answer button press: %w", err)
	}

	if err := d.messenger.EditText(ctx, stickerbot.EditTextRequest{
		ChatID:    event.Chat.ID,
		MessageID: press.MessageID,
		Text:      page.Text,
		Keyboard:  page.Keyboard,
	}); err != nil {
		return fmt.Errorf("edit browse view: %w", err)
	}

	if page.Keyboard.Empty() {
		// A text edit leaves the previous inline keyboard in place; an
		// explicit empty-markup edit clears it.
		if err := d.messenger.EditButtons(ctx, stickerbot.EditButtonsRequest{
			ChatID:    event.Chat.ID,
			MessageID: press.MessageID,
		}); err != nil {
			return fmt.Errorf("clear browse keyboard: %w", err)
		}
	}

	return nil
}

func (d *Dispatcher) sendText(ctx context.Context, chatID, text string) error {
	if _, err := d.messenger.SendText(ctx, stickerbot.SendTextRequest{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	return nil
}

func (d *Dispatcher) sendPage(ctx context.Context, chatID string, page browse.Page) error {
	if _, err := d.messenger.SendText(ctx, stickerbot.SendTextRequest{
		ChatID:   chatID,
		Text:     page.Text,
		Keyboard: page.Keyboard,
	}); err != nil {
		return fmt.Errorf("send browse page: %w", err)
	}

	return nil
}

// apologize sends the generic failure notice, best effort.
func (d *Dispatcher) apologize(ctx context.Context, event *stickerbot.Event) {
	if event.Kind == stickerbot.EventKindButton && event.Button != nil {
		if err := d.messenger.AnswerButton(ctx, stickerbot.AnswerButtonRequest{
			QueryID: event.Button.QueryID,
			Text:    "Error",
		}); err != nil {
			d.logger.ErrorContext(ctx, "apology answer failed", "error", err)
		}
		return
	}

	if _, err := d.messenger.SendText(ctx, stickerbot.SendTextRequest{
		ChatID: event.Chat.ID,
		Text:   apologyText,
	}); err != nil {
		d.logger.ErrorContext(ctx, "apology send failed", "error", err)
	}
}

func renderStats(stats stickerbot.Stats) string {
	var body strings.Builder
	fmt.Fprintf(&body, "Stickers: %d\nImages: %d\nOwners: %d\n", stats.TotalAssociations, stats.UniqueImages, stats.TotalOwners)

	if len(stats.TopTriggers) > 0 {
		body.WriteString("\nTop triggers:\n")
		for rank, usage := range stats.TopTriggers {
			fmt.Fprintf(&body, "%d. %s: %d\n", rank+1, usage.Trigger, usage.Count)
		}
	}

	return strings.TrimRight(body.String(), "\n")
}
