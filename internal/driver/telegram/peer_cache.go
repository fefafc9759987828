package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gotd/td/tg"
)

// PeerCache stores Telegram input peers discovered from inbound updates.
//
// Outbound dispatch uses it to resolve neutral chat identifiers back into
// Telegram input peers. All bot conversations are private, so the cache
// holds user peers keyed by their chat identifier.
type PeerCache struct {
	mu     sync.RWMutex
	byChat map[string]tg.InputPeerClass
}

// NewPeerCache creates an empty, concurrency-safe Telegram peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{
		byChat: make(map[string]tg.InputPeerClass),
	}
}

// RememberEnvelope ingests user entities attached to one gotd update envelope.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		peer := user.AsInputPeer()
		if peer == nil {
			continue
		}
		c.byChat[strconv.FormatInt(userID, 10)] = cloneInputPeer(peer)
	}
}

// RememberChat stores one explicit chat-to-peer mapping.
func (c *PeerCache) RememberChat(chatID string, peer tg.InputPeerClass) {
	if c == nil || peer == nil || chatID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byChat[chatID] = cloneInputPeer(peer)
}

// Resolve returns an input peer for an outbound chat identifier.
func (c *PeerCache) Resolve(chatID string) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if chatID == "" {
		return nil, fmt.Errorf("resolve peer: empty chat id")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	peer, ok := c.byChat[chatID]
	if !ok {
		return nil, fmt.Errorf("resolve peer: chat %s not found", chatID)
	}

	return cloneInputPeer(peer), nil
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChat:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChannel:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerSelf:
		copyPeer := *typed
		return &copyPeer
	default:
		return peer
	}
}
