package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/tg"
)

// gotdUpdateEnvelope carries one raw update with the entity context of its batch.
type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	updateClass string
}

// DefaultGotdUpdateMapper maps gotd updates into adapter DTO updates.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
}

// GotdUpdateMapperOption mutates DefaultGotdUpdateMapper behavior.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache records entity-derived peer mappings for outbound dispatch.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// NewDefaultGotdUpdateMapper creates the default gotd mapper.
func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	mapper := DefaultGotdUpdateMapper{}
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map converts a gotd raw update value into an adapter update.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, raw any) (Update, bool, error) {
	select {
	case <-ctx.Done():
		return Update{}, false, fmt.Errorf("map gotd update context: %w", ctx.Err())
	default:
	}

	envelope, err := normalizeGotdRaw(raw)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd raw update: %w", err)
	}
	m.rememberEnvelope(envelope)

	switch update := envelope.update.(type) {
	case *tg.UpdateNewMessage:
		return m.mapNewMessage(update, envelope)
	case *tg.UpdateBotCallbackQuery:
		return m.mapCallbackQuery(update, envelope)
	default:
		return Update{}, false, nil
	}
}

func (m DefaultGotdUpdateMapper) rememberEnvelope(envelope gotdUpdateEnvelope) {
	if m.peerCache != nil {
		m.peerCache.RememberEnvelope(envelope)
	}
}

func normalizeGotdRaw(raw any) (gotdUpdateEnvelope, error) {
	switch typed := raw.(type) {
	case gotdUpdateEnvelope:
		return typed, nil
	case *gotdUpdateEnvelope:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil envelope")
		}
		return *typed, nil
	case tg.UpdateClass:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil update class")
		}
		return gotdUpdateEnvelope{
			update:      typed,
			occurredAt:  time.Now().UTC(),
			updateClass: typed.TypeName(),
		}, nil
	default:
		return gotdUpdateEnvelope{}, fmt.Errorf("unsupported raw type %T", raw)
	}
}

func (m DefaultGotdUpdateMapper) mapNewMessage(
	update *tg.UpdateNewMessage,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	if update == nil {
		return Update{}, false, fmt.Errorf("map new message: nil update")
	}

	message, ok := update.Message.(*tg.Message)
	if !ok {
		return Update{}, false, nil
	}
	if message.Out {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(message.PeerID)
	sender := resolveSenderFromMessage(message, envelope)
	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}

	base := Update{
		ID:         uuid.NewString(),
		OccurredAt: occurredAt,
		Chat:       chat,
		Sender:     sender,
	}

	if ref, ok := imageRefFromMedia(message.Media); ok {
		base.Type = UpdateTypeImage
		base.Image = &ImagePayload{Ref: ref}
		return base, true, nil
	}
	if strings.TrimSpace(message.Message) != "" {
		base.Type = UpdateTypeText
		base.Text = &TextPayload{Text: message.Message}
		return base, true, nil
	}

	// Voice notes, videos and other media the bot cannot re-send by reference.
	return Update{}, false, nil
}

func (m DefaultGotdUpdateMapper) mapCallbackQuery(
	update *tg.UpdateBotCallbackQuery,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	if update == nil {
		return Update{}, false, fmt.Errorf("map callback query: nil update")
	}

	data, ok := update.GetData()
	if !ok || len(data) == 0 {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(update.Peer)
	occurredAt := envelope.occurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Update{
		ID:         uuid.NewString(),
		Type:       UpdateTypeButton,
		OccurredAt: occurredAt,
		Chat:       chat,
		Sender:     resolveSenderByUserID(update.UserID, envelope),
		Button: &ButtonPayload{
			QueryID:   strconv.FormatInt(update.QueryID, 10),
			MessageID: strconv.Itoa(update.MsgID),
			Data:      string(data),
		},
	}, true, nil
}

func resolveChatFromPeer(peer tg.PeerClass) ChatRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return ChatRef{
			ID:      strconv.FormatInt(typed.UserID, 10),
			Private: true,
		}
	case *tg.PeerChat:
		return ChatRef{ID: strconv.FormatInt(typed.ChatID, 10)}
	case *tg.PeerChannel:
		return ChatRef{ID: strconv.FormatInt(typed.ChannelID, 10)}
	default:
		return ChatRef{}
	}
}

func resolveSenderFromMessage(message *tg.Message, envelope gotdUpdateEnvelope) SenderRef {
	if from, ok := message.GetFromID(); ok {
		if user, ok := from.(*tg.PeerUser); ok {
			return resolveSenderByUserID(user.UserID, envelope)
		}
	}

	// Private messages may omit FromID; the peer user is the sender.
	if user, ok := message.PeerID.(*tg.PeerUser); ok {
		return resolveSenderByUserID(user.UserID, envelope)
	}

	return SenderRef{}
}

func resolveSenderByUserID(userID int64, envelope gotdUpdateEnvelope) SenderRef {
	if userID == 0 {
		return SenderRef{}
	}

	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return SenderRef{ID: userID}
	}

	username, _ := user.GetUsername()

	return SenderRef{
		ID:       userID,
		Username: username,
		IsBot:    user.Bot,
	}
}

// imageRefFromMedia encodes sticker documents and photos into stable references.
func imageRefFromMedia(media tg.MessageMediaClass) (string, bool) {
	switch typed := media.(type) {
	case *tg.MessageMediaDocument:
		document, ok := typed.GetDocument()
		if !ok {
			return "", false
		}
		typedDocument, ok := document.(*tg.Document)
		if !ok {
			return "", false
		}
		if !isStickerDocument(typedDocument.Attributes) {
			return "", false
		}
		return FormatImageRef(ImageRef{
			Kind:       ImageKindDocument,
			ID:         typedDocument.ID,
			AccessHash: typedDocument.AccessHash,
		}), true
	case *tg.MessageMediaPhoto:
		photo, ok := typed.GetPhoto()
		if !ok {
			return "", false
		}
		typedPhoto, ok := photo.(*tg.Photo)
		if !ok {
			return "", false
		}
		return FormatImageRef(ImageRef{
			Kind:       ImageKindPhoto,
			ID:         typedPhoto.ID,
			AccessHash: typedPhoto.AccessHash,
		}), true
	default:
		return "", false
	}
}

func isStickerDocument(attributes []tg.DocumentAttributeClass) bool {
	for _, attribute := range attributes {
		if _, ok := attribute.(*tg.DocumentAttributeSticker); ok {
			return true
		}
	}

	return false
}
