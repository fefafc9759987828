package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"
)

const defaultOutboundTimeout = 3 * time.Second

// OutboundOption mutates outbound messenger configuration.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout configures a timeout bound for each outbound RPC call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger configures structured logging for outbound operations.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// OutboundMessenger adapts neutral outbound requests to Telegram RPC calls.
type OutboundMessenger struct {
	cfg      outboundConfig
	peers    *PeerCache
	telegram outboundRPC
}

var _ stickerbot.Messenger = (*OutboundMessenger)(nil)

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
}

// NewOutboundMessenger creates a Telegram outbound messenger using gotd client APIs.
func NewOutboundMessenger(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*OutboundMessenger, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound messenger: nil client")
	}

	return newOutboundMessengerWithRPC(newGotdOutboundRPC(client), peers, options...)
}

func newOutboundMessengerWithRPC(
	rpc outboundRPC,
	peers *PeerCache,
	options ...OutboundOption,
) (*OutboundMessenger, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram outbound messenger: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram outbound messenger: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout: defaultOutboundTimeout,
	}
	for _, option := range options {
		option(&cfg)
	}

	return &OutboundMessenger{
		cfg:      cfg,
		peers:    peers,
		telegram: rpc,
	}, nil
}

// SendText publishes a text message to a Telegram chat.
func (m *OutboundMessenger) SendText(
	ctx context.Context,
	request stickerbot.SendTextRequest,
) (*stickerbot.SentMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send text validate: %w", err)
	}

	peer, err := m.peers.Resolve(request.ChatID)
	if err != nil {
		return nil, fmt.Errorf("send text resolve peer: %w", err)
	}

	rpcCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	id, err := m.telegram.SendText(rpcCtx, peer, request.Text, buildReplyMarkup(request))
	if err != nil {
		return nil, fmt.Errorf("send text to %s: %w", request.ChatID, err)
	}

	m.logOutbound(ctx, "send_text", "chat", request.ChatID, "message_id", id)

	return &stickerbot.SentMessage{
		ID:     strconv.Itoa(id),
		ChatID: request.ChatID,
	}, nil
}

// SendImage re-sends a previously seen sticker or photo by stable reference.
func (m *OutboundMessenger) SendImage(ctx context.Context, request stickerbot.SendImageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("send image validate: %w", err)
	}

	peer, err := m.peers.Resolve(request.ChatID)
	if err != nil {
		return fmt.Errorf("send image resolve peer: %w", err)
	}

	ref, err := ParseImageRef(request.ImageRef)
	if err != nil {
		return fmt.Errorf("send image parse ref: %w", err)
	}

	rpcCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.telegram.SendMedia(rpcCtx, peer, inputMediaFromRef(ref)); err != nil {
		return fmt.Errorf("send image to %s: %w", request.ChatID, err)
	}

	m.logOutbound(ctx, "send_image", "chat", request.ChatID, "kind", string(ref.Kind))

	return nil
}

// AnswerButton acknowledges an inline button press.
func (m *OutboundMessenger) AnswerButton(ctx context.Context, request stickerbot.AnswerButtonRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("answer button validate: %w", err)
	}

	queryID, err := strconv.ParseInt(strings.TrimSpace(request.QueryID), 10, 64)
	if err != nil {
		return fmt.Errorf("answer button parse query id %s: %w", request.QueryID, err)
	}

	rpcCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.telegram.AnswerCallback(rpcCtx, queryID, request.Text); err != nil {
		return fmt.Errorf("answer button %s: %w", request.QueryID, err)
	}

	m.logOutbound(ctx, "answer_button", "query_id", request.QueryID)

	return nil
}

// EditText replaces the text and keyboard of an existing message.
func (m *OutboundMessenger) EditText(ctx context.Context, request stickerbot.EditTextRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("edit text validate: %w", err)
	}

	peer, err := m.peers.Resolve(request.ChatID)
	if err != nil {
		return fmt.Errorf("edit text resolve peer: %w", err)
	}

	messageID, err := parseMessageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("edit text parse id %s: %w", request.MessageID, err)
	}

	rpcCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.telegram.EditMessage(rpcCtx, peer, messageID, request.Text, buildInlineMarkup(request.Keyboard)); err != nil {
		return fmt.Errorf("edit text %s: %w", request.MessageID, err)
	}

	m.logOutbound(ctx, "edit_text", "chat", request.ChatID, "message_id", request.MessageID)

	return nil
}

// EditButtons replaces only the inline keyboard of an existing message.
// An empty keyboard clears any keyboard left on the message.
func (m *OutboundMessenger) EditButtons(ctx context.Context, request stickerbot.EditButtonsRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("edit buttons validate: %w", err)
	}

	peer, err := m.peers.Resolve(request.ChatID)
	if err != nil {
		return fmt.Errorf("edit buttons resolve peer: %w", err)
	}

	messageID, err := parseMessageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("edit buttons parse id %s: %w", request.MessageID, err)
	}

	markup := buildInlineMarkup(request.Keyboard)
	if markup == nil {
		markup = &tg.ReplyInlineMarkup{}
	}

	rpcCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.telegram.EditMarkup(rpcCtx, peer, messageID, markup); err != nil {
		return fmt.Errorf("edit buttons %s: %w", request.MessageID, err)
	}

	m.logOutbound(ctx, "edit_buttons", "chat", request.ChatID, "message_id", request.MessageID)

	return nil
}

func (m *OutboundMessenger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.rpcTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, m.cfg.rpcTimeout)
}

func (m *OutboundMessenger) logOutbound(ctx context.Context, operation string, attrs ...any) {
	if m.cfg.logger == nil {
		return
	}

	values := make([]any, 0, 2+len(attrs))
	values = append(values, "operation", operation)
	values = append(values, attrs...)
	m.cfg.logger.InfoContext(ctx, "telegram outbound operation", values...)
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid message id: %w", stickerbot.ErrInvalidOutboundRequest, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: invalid message id", stickerbot.ErrInvalidOutboundRequest)
	}

	return value, nil
}

// buildReplyMarkup selects the markup class for a new message. Menu labels
// take precedence and produce a persistent reply keyboard.
func buildReplyMarkup(request stickerbot.SendTextRequest) tg.ReplyMarkupClass {
	if len(request.MenuLabels) > 0 {
		rows := make([]tg.KeyboardButtonRow, 0, len(request.MenuLabels))
		for _, label := range request.MenuLabels {
			rows = append(rows, tg.KeyboardButtonRow{
				Buttons: []tg.KeyboardButtonClass{
					&tg.KeyboardButton{Text: label},
				},
			})
		}

		return &tg.ReplyKeyboardMarkup{
			Resize: true,
			Rows:   rows,
		}
	}

	return buildInlineMarkup(request.Keyboard)
}

func buildInlineMarkup(keyboard stickerbot.Keyboard) tg.ReplyMarkupClass {
	if keyboard.Empty() {
		return nil
	}

	rows := make([]tg.KeyboardButtonRow, 0, len(keyboard.Rows))
	for _, row := range keyboard.Rows {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, &tg.KeyboardButtonCallback{
				Text: button.Label,
				Data: []byte(button.Data),
			})
		}
		rows = append(rows, tg.KeyboardButtonRow{Buttons: buttons})
	}

	return &tg.ReplyInlineMarkup{Rows: rows}
}

func inputMediaFromRef(ref ImageRef) tg.InputMediaClass {
	if ref.Kind == ImageKindPhoto {
		return &tg.InputMediaPhoto{
			ID: &tg.InputPhoto{
				ID:         ref.ID,
				AccessHash: ref.AccessHash,
			},
		}
	}

	return &tg.InputMediaDocument{
		ID: &tg.InputDocument{
			ID:         ref.ID,
			AccessHash: ref.AccessHash,
		},
	}
}

type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, text string, markup tg.ReplyMarkupClass) (int, error)
	SendMedia(ctx context.Context, peer tg.InputPeerClass, media tg.InputMediaClass) error
	AnswerCallback(ctx context.Context, queryID int64, notice string) error
	EditMessage(ctx context.Context, peer tg.InputPeerClass, messageID int, text string, markup tg.ReplyMarkupClass) error
	EditMarkup(ctx context.Context, peer tg.InputPeerClass, messageID int, markup tg.ReplyMarkupClass) error
}

type gotdOutboundRPC struct {
	raw  *tg.Client
	rand io.Reader
}

func newGotdOutboundRPC(client *gotdtelegram.Client) gotdOutboundRPC {
	return gotdOutboundRPC{
		raw:  client.API(),
		rand: crypto.DefaultRand(),
	}
}

func (r gotdOutboundRPC) SendText(
	ctx context.Context,
	peer tg.InputPeerClass,
	text string,
	markup tg.ReplyMarkupClass,
) (int, error) {
	request := &tg.MessagesSendMessageRequest{
		Peer:    peer,
		Message: text,
	}
	if markup != nil {
		request.SetReplyMarkup(markup)
	}

	randomID, err := crypto.RandInt64(r.rand)
	if err != nil {
		return 0, fmt.Errorf("send text random id: %w", err)
	}
	request.RandomID = randomID

	updates, err := r.raw.MessagesSendMessage(ctx, request)
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}

	messageID, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent message id: %w", err)
	}

	return messageID, nil
}

func (r gotdOutboundRPC) SendMedia(
	ctx context.Context,
	peer tg.InputPeerClass,
	media tg.InputMediaClass,
) error {
	randomID, err := crypto.RandInt64(r.rand)
	if err != nil {
		return fmt.Errorf("send media random id: %w", err)
	}

	if _, err := r.raw.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    media,
		RandomID: randomID,
	}); err != nil {
		return fmt.Errorf("send media: %w", err)
	}

	return nil
}

func (r gotdOutboundRPC) AnswerCallback(ctx context.Context, queryID int64, notice string) error {
	request := &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
	}
	if notice != "" {
		request.SetMessage(notice)
	}

	if _, err := r.raw.MessagesSetBotCallbackAnswer(ctx, request); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	return nil
}

func (r gotdOutboundRPC) EditMessage(
	ctx context.Context,
	peer tg.InputPeerClass,
	messageID int,
	text string,
	markup tg.ReplyMarkupClass,
) error {
	request := &tg.MessagesEditMessageRequest{
		Peer: peer,
		ID:   messageID,
	}
	request.SetMessage(text)
	if markup != nil {
		request.SetReplyMarkup(markup)
	}

	if _, err := r.raw.MessagesEditMessage(ctx, request); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	return nil
}

func (r gotdOutboundRPC) EditMarkup(
	ctx context.Context,
	peer tg.InputPeerClass,
	messageID int,
	markup tg.ReplyMarkupClass,
) error {
	request := &tg.MessagesEditMessageRequest{
		Peer: peer,
		ID:   messageID,
	}
	request.SetReplyMarkup(markup)

	if _, err := r.raw.MessagesEditMessage(ctx, request); err != nil {
		return fmt.Errorf("edit markup: %w", err)
	}

	return nil
}
