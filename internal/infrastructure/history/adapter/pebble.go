package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"go-hivechat/internal/infrastructure/history/port"
	chat "go-hivechat/internal/pkg/chat/domain"
)

// PebbleHistory satisfies port.History on top of a local pebble database.
//
// Key layout:
//
//	conv:<conversationID>                         -> Conversation JSON
//	msg:<conversationID>:<padded-unix-nanos>-<id> -> Message JSON
//
// The timestamp prefix keeps messages iterable in chronological order
// without a secondary index.
type PebbleHistory struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

var _ port.History = (*PebbleHistory)(nil)

// NewPebbleHistory opens (or creates) the archive at path.
func NewPebbleHistory(path string) (*PebbleHistory, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	return &PebbleHistory{db: db}, nil
}

func convKey(id string) []byte {
	return []byte("conv:" + id)
}

func msgKey(m chat.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d-%s", m.ConversationID, m.Timestamp.UnixNano(), m.ID))
}

func msgPrefix(conversationID string) ([]byte, []byte) {
	lower := []byte("msg:" + conversationID + ":")
	upper := []byte("msg:" + conversationID + ";") // ';' sorts just after ':'
	return lower, upper
}

func (h *PebbleHistory) SaveConversation(conv chat.Conversation) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return port.ErrClosed
	}
	buf, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("history: encode conversation %s: %w", conv.ID, err)
	}
	return h.db.Set(convKey(conv.ID), buf, pebble.NoSync)
}

func (h *PebbleHistory) SaveMessage(msg chat.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return port.ErrClosed
	}
	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history: encode message %s: %w", msg.ID, err)
	}
	return h.db.Set(msgKey(msg), buf, pebble.NoSync)
}

func (h *PebbleHistory) DeleteMessage(conversationID, messageID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return port.ErrClosed
	}
	lower, upper := msgPrefix(conversationID)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("history: iterate %s: %w", conversationID, err)
	}
	defer iter.Close()

	suffix := "-" + messageID
	for iter.First(); iter.Valid(); iter.Next() {
		if strings.HasSuffix(string(iter.Key()), suffix) {
			key := append([]byte(nil), iter.Key()...)
			return h.db.Delete(key, pebble.NoSync)
		}
	}
	return nil
}

func (h *PebbleHistory) Conversations() ([]chat.Conversation, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, port.ErrClosed
	}
	iter, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("conv:"),
		UpperBound: []byte("conv;"),
	})
	if err != nil {
		return nil, fmt.Errorf("history: iterate conversations: %w", err)
	}
	defer iter.Close()

	var out []chat.Conversation
	for iter.First(); iter.Valid(); iter.Next() {
		var conv chat.Conversation
		if err := json.Unmarshal(iter.Value(), &conv); err != nil {
			// Skip undecodable rows rather than failing hydration.
			continue
		}
		out = append(out, conv)
	}
	return out, iter.Error()
}

func (h *PebbleHistory) Messages(conversationID string, limit int) ([]chat.Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, port.ErrClosed
	}
	lower, upper := msgPrefix(conversationID)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("history: iterate %s: %w", conversationID, err)
	}
	defer iter.Close()

	// Walk backwards so the limit keeps the newest entries, then reverse.
	var out []chat.Message
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if limit > 0 && len(out) == limit {
			break
		}
		var msg chat.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			continue
		}
		msg.Status = chat.DeliveryDelivered
		out = append(out, msg)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, iter.Error()
}

func (h *PebbleHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}
