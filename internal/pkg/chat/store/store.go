// Package store holds the client's single source of truth for conversations
// and messages. Both locally-issued optimistic mutations and server-pushed
// events funnel into it, producing one consistent view for the UI layer.
//
// The original event-loop model guaranteed single-owner mutation by
// scheduling; here mutations arrive from the transport reader goroutine and
// from REST completions concurrently, so the store serializes them with a
// mutex. Every mutation is idempotent: a stale REST completion or a
// duplicate push applies safely regardless of what interleaved before it.
package store

import (
	"sort"
	"sync"
	"time"

	"go-hivechat/internal/infrastructure/logging"
	chat "go-hivechat/internal/pkg/chat/domain"
)

// Archiver receives applied entities for local persistence. Implementations
// must tolerate being called from multiple goroutines; errors are logged by
// the store and never fail a mutation.
type Archiver interface {
	SaveConversation(conv chat.Conversation) error
	SaveMessage(msg chat.Message) error
	DeleteMessage(conversationID, messageID string) error
}

// Store is the authoritative in-memory conversation/message state.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*chat.Conversation
	messages      map[string][]chat.Message // conversationID -> sorted by Timestamp asc
	messageConv   map[string]string         // messageID -> conversationID
	typing        map[string]map[string]time.Time
	online        map[string]struct{}

	typingTTL time.Duration
	archive   Archiver

	subMu sync.Mutex
	subs  []func()
}

// Option configures a Store.
type Option func(*Store)

// WithArchiver attaches a write-behind persistence sink.
func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archive = a }
}

// WithTypingTTL enables client-side expiry of typing entries that never saw
// a TYPING_STOP. Zero (the default) keeps entries until a stop arrives,
// matching the backend's contract.
func WithTypingTTL(ttl time.Duration) Option {
	return func(s *Store) { s.typingTTL = ttl }
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string][]chat.Message),
		messageConv:   make(map[string]string),
		typing:        make(map[string]map[string]time.Time),
		online:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to run after every applied mutation. Returns an
// unsubscribe function.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if idx < len(s.subs) {
			s.subs[idx] = nil
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

// PutConversations upserts conversations loaded from the backend or the
// local history cache. Existing message lists are kept.
func (s *Store) PutConversations(convs []chat.Conversation) {
	s.mu.Lock()
	for i := range convs {
		c := convs[i]
		s.conversations[c.ID] = &c
		s.archiveConversation(c)
	}
	s.mu.Unlock()
	s.notify()
}

// PutConversation upserts a single conversation (the create-group path).
func (s *Store) PutConversation(conv chat.Conversation) {
	s.PutConversations([]chat.Conversation{conv})
}

// PutMessages merges a loaded page of history into a conversation. Per-id
// idempotent and order-preserving, so pages may arrive in any order.
func (s *Store) PutMessages(conversationID string, msgs []chat.Message) {
	s.mu.Lock()
	if _, ok := s.conversations[conversationID]; !ok {
		s.mu.Unlock()
		return
	}
	for i := range msgs {
		s.insertLocked(msgs[i])
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyRemoteMessage folds a NEW_MESSAGE push into the store. Duplicate
// delivery of the same id is a no-op. Events for conversations the client
// has not loaded are dropped silently; conversations are only created via
// the load/create-group path.
func (s *Store) ApplyRemoteMessage(msg chat.Message) {
	s.mu.Lock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		s.mu.Unlock()
		logging.Log.Debug("message for unknown conversation dropped",
			"conversation", msg.ConversationID, "message", msg.ID)
		return
	}
	msg.Status = chat.DeliveryDelivered
	s.insertLocked(msg)
	s.mu.Unlock()
	s.notify()
}

// insertLocked adds msg in timestamp order unless its id is already known,
// then advances the conversation watermark. Caller holds s.mu.
func (s *Store) insertLocked(msg chat.Message) {
	if _, dup := s.messageConv[msg.ID]; dup {
		return
	}
	list := s.messages[msg.ConversationID]
	// Equal timestamps keep arrival order.
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Timestamp.After(msg.Timestamp)
	})
	list = append(list, chat.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	s.messages[msg.ConversationID] = list
	s.messageConv[msg.ID] = msg.ConversationID
	s.touchLocked(msg)
	s.archiveMessage(msg)
}

// touchLocked advances LastMessage/LastActivity if msg is the newest seen.
// Caller holds s.mu.
func (s *Store) touchLocked(msg chat.Message) {
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return
	}
	if msg.Timestamp.After(conv.LastActivity) {
		m := msg
		conv.LastMessage = &m
		conv.LastActivity = msg.Timestamp
		s.archiveConversation(*conv)
	}
}

// ApplyReadReceipt marks the message read. A receipt for a message that is
// not currently loaded is a silent no-op, not an error.
func (s *Store) ApplyReadReceipt(messageID, userID string) {
	s.mu.Lock()
	msg := s.findLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	msg.IsRead = true
	s.archiveMessage(*msg)
	s.mu.Unlock()
	s.notify()
}

// ApplyTypingStart records userID as typing in the conversation. Re-adding
// an already-present user refreshes its entry.
func (s *Store) ApplyTypingStart(conversationID, userID string) {
	s.mu.Lock()
	set, ok := s.typing[conversationID]
	if !ok {
		set = make(map[string]time.Time)
		s.typing[conversationID] = set
	}
	set[userID] = time.Now()
	s.mu.Unlock()
	s.notify()
}

// ApplyTypingStop removes userID from the conversation's typing set.
// Stopping a user that was never added is a no-op.
func (s *Store) ApplyTypingStop(conversationID, userID string) {
	s.mu.Lock()
	if set, ok := s.typing[conversationID]; ok {
		delete(set, userID)
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyReaction attaches a reaction to a message. A user holds at most one
// reaction per message: a later reaction from the same user replaces the
// earlier one, and re-delivery of the same reaction id is a no-op.
func (s *Store) ApplyReaction(messageID string, r chat.Reaction) {
	s.mu.Lock()
	msg := s.findLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	replaced := false
	for i := range msg.Reactions {
		if msg.Reactions[i].UserID == r.UserID {
			msg.Reactions[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		msg.Reactions = append(msg.Reactions, r)
	}
	s.archiveMessage(*msg)
	s.mu.Unlock()
	s.notify()
}

// ApplyReactionRemoved detaches a reaction by id. Unknown message or
// reaction ids are silent no-ops.
func (s *Store) ApplyReactionRemoved(messageID, reactionID string) {
	s.mu.Lock()
	msg := s.findLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	for i := range msg.Reactions {
		if msg.Reactions[i].ID == reactionID {
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
			s.archiveMessage(*msg)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyLocalSend inserts an optimistic, provisionally-identified message.
func (s *Store) ApplyLocalSend(msg chat.Message) {
	s.mu.Lock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		s.mu.Unlock()
		return
	}
	msg.Status = chat.DeliverySending
	s.insertLocked(msg)
	s.mu.Unlock()
	s.notify()
}

// ReconcileSend replaces the provisional entry with its server-confirmed
// counterpart, in place: already-settled entries are never reordered. If the
// canonical message already arrived over the push channel the provisional
// entry is simply removed.
func (s *Store) ReconcileSend(conversationID, provisionalID string, canonical chat.Message) {
	s.mu.Lock()
	defer func() { s.mu.Unlock(); s.notify() }()

	canonical.Status = chat.DeliveryDelivered

	list := s.messages[conversationID]
	idx := -1
	for i := range list {
		if list[i].ID == provisionalID {
			idx = i
			break
		}
	}
	if idx == -1 {
		// Provisional entry is gone (e.g. discarded); fall back to a
		// plain idempotent insert.
		if _, ok := s.conversations[conversationID]; ok {
			s.insertLocked(canonical)
		}
		return
	}

	delete(s.messageConv, provisionalID)
	if _, dup := s.messageConv[canonical.ID]; dup {
		// Push beat the REST response; drop the provisional copy.
		s.messages[conversationID] = append(list[:idx], list[idx+1:]...)
		return
	}

	list[idx] = canonical
	s.messageConv[canonical.ID] = conversationID
	s.touchLocked(canonical)
	s.archiveMessage(canonical)
}

// MarkSendFailed flags the provisional entry so the UI can offer retry or
// discard. The entry stays in the list.
func (s *Store) MarkSendFailed(conversationID, provisionalID string) {
	s.mu.Lock()
	for i, m := range s.messages[conversationID] {
		if m.ID == provisionalID {
			s.messages[conversationID][i].Status = chat.DeliveryFailed
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// MarkSendPending flips a failed provisional entry back to Sending for the
// duration of a retry.
func (s *Store) MarkSendPending(conversationID, provisionalID string) {
	s.mu.Lock()
	for i, m := range s.messages[conversationID] {
		if m.ID == provisionalID {
			s.messages[conversationID][i].Status = chat.DeliverySending
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// DiscardLocal removes a provisional (typically failed) entry.
func (s *Store) DiscardLocal(conversationID, provisionalID string) {
	s.mu.Lock()
	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == provisionalID && list[i].Status != chat.DeliveryDelivered {
			s.messages[conversationID] = append(list[:i], list[i+1:]...)
			delete(s.messageConv, provisionalID)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyEdit replaces a message body after a confirmed edit.
func (s *Store) ApplyEdit(updated chat.Message) {
	s.mu.Lock()
	msg := s.findLocked(updated.ID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	msg.Content = updated.Content
	msg.IsEdited = true
	msg.EditedAt = updated.EditedAt
	s.archiveMessage(*msg)
	s.mu.Unlock()
	s.notify()
}

// ApplyDelete removes a message after a confirmed delete.
func (s *Store) ApplyDelete(messageID string) {
	s.mu.Lock()
	convID, ok := s.messageConv[messageID]
	if !ok {
		s.mu.Unlock()
		return
	}
	list := s.messages[convID]
	for i := range list {
		if list[i].ID == messageID {
			s.messages[convID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(s.messageConv, messageID)
	if s.archive != nil {
		if err := s.archive.DeleteMessage(convID, messageID); err != nil {
			logging.Log.Warn("history delete failed", "message", messageID, "err", err)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// SetPresence records a user's online state.
func (s *Store) SetPresence(userID string, isOnline bool) {
	s.mu.Lock()
	if isOnline {
		s.online[userID] = struct{}{}
	} else {
		delete(s.online, userID)
	}
	s.mu.Unlock()
	s.notify()
}

// IsOnline reports the last-known presence of userID.
func (s *Store) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// Conversations returns a snapshot sorted by last activity, newest first,
// pinned conversations ahead of the rest.
func (s *Store) Conversations() []chat.Conversation {
	s.mu.Lock()
	out := make([]chat.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Conversation returns a snapshot of one conversation.
func (s *Store) Conversation(id string) (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, false
	}
	return *c, true
}

// Messages returns a snapshot of a conversation's messages, timestamp
// ascending.
func (s *Store) Messages(conversationID string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	out := make([]chat.Message, len(list))
	copy(out, list)
	return out
}

// Message looks a message up by its globally-unique id.
func (s *Store) Message(messageID string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.findLocked(messageID); msg != nil {
		return *msg, true
	}
	return chat.Message{}, false
}

// TypingUsers returns the users currently typing in a conversation. With a
// typing TTL configured, stale entries are dropped on read.
func (s *Store) TypingUsers(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.typing[conversationID]
	out := make([]string, 0, len(set))
	now := time.Now()
	for id, since := range set {
		if s.typingTTL > 0 && now.Sub(since) > s.typingTTL {
			delete(set, id)
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// findLocked returns a pointer into the live message slice. Caller holds
// s.mu and must not retain the pointer past the unlock.
func (s *Store) findLocked(messageID string) *chat.Message {
	convID, ok := s.messageConv[messageID]
	if !ok {
		return nil
	}
	list := s.messages[convID]
	for i := range list {
		if list[i].ID == messageID {
			return &list[i]
		}
	}
	return nil
}

func (s *Store) archiveMessage(msg chat.Message) {
	if s.archive == nil || msg.Status != chat.DeliveryDelivered {
		return
	}
	if err := s.archive.SaveMessage(msg); err != nil {
		logging.Log.Warn("history write failed", "message", msg.ID, "err", err)
	}
}

func (s *Store) archiveConversation(conv chat.Conversation) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveConversation(conv); err != nil {
		logging.Log.Warn("history write failed", "conversation", conv.ID, "err", err)
	}
}
