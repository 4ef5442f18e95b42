package events

import (
	"encoding/json"
	"fmt"

	chat "go-hivechat/internal/pkg/chat/domain"
)

// Kind identifies the semantic class of a server-pushed event.
type Kind string

const (
	KindNewMessage      Kind = "NEW_MESSAGE"
	KindMessageRead     Kind = "MESSAGE_READ"
	KindTypingStart     Kind = "TYPING_START"
	KindTypingStop      Kind = "TYPING_STOP"
	KindUserOnline      Kind = "USER_ONLINE"
	KindUserOffline     Kind = "USER_OFFLINE"
	KindMessageReaction Kind = "MESSAGE_REACTION"
)

// knownKinds is the fixed set the router dispatches; anything else is
// ignored for forward compatibility.
var knownKinds = map[Kind]struct{}{
	KindNewMessage:      {},
	KindMessageRead:     {},
	KindTypingStart:     {},
	KindTypingStop:      {},
	KindUserOnline:      {},
	KindUserOffline:     {},
	KindMessageReaction: {},
}

// Envelope is the wire shape of every inbound frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is a decoded frame. Exactly one payload field is non-zero,
// determined by Kind.
type Event struct {
	Kind     Kind
	Message  *chat.Message
	Receipt  *ReadReceipt
	Typing   *TypingChange
	Presence *PresenceChange
	Reaction *ReactionAdded
}

// ReadReceipt is the MESSAGE_READ payload.
type ReadReceipt struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// TypingChange is the TYPING_START / TYPING_STOP payload.
type TypingChange struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
}

// PresenceChange is the USER_ONLINE / USER_OFFLINE payload.
type PresenceChange struct {
	UserID string `json:"userId"`
}

// ReactionAdded is the MESSAGE_REACTION payload.
type ReactionAdded struct {
	MessageID string        `json:"messageId"`
	Reaction  chat.Reaction `json:"reaction"`
}

// Decode parses a raw frame into a typed Event. A missing type field or an
// undecodable payload yields an error wrapping chat.ErrProtocol; an unknown
// but well-formed type yields (nil, nil) so callers can skip it silently.
func Decode(data []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid frame: %v", chat.ErrProtocol, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: frame without type", chat.ErrProtocol)
	}

	kind := Kind(env.Type)
	if _, ok := knownKinds[kind]; !ok {
		return nil, nil
	}

	ev := &Event{Kind: kind}
	var err error
	switch kind {
	case KindNewMessage:
		ev.Message = &chat.Message{}
		err = json.Unmarshal(env.Payload, ev.Message)
		if err == nil {
			ev.Message.Status = chat.DeliveryDelivered
		}
	case KindMessageRead:
		ev.Receipt = &ReadReceipt{}
		err = json.Unmarshal(env.Payload, ev.Receipt)
	case KindTypingStart, KindTypingStop:
		ev.Typing = &TypingChange{}
		err = json.Unmarshal(env.Payload, ev.Typing)
	case KindUserOnline, KindUserOffline:
		ev.Presence = &PresenceChange{}
		err = json.Unmarshal(env.Payload, ev.Presence)
	case KindMessageReaction:
		ev.Reaction = &ReactionAdded{}
		err = json.Unmarshal(env.Payload, ev.Reaction)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s payload: %v", chat.ErrProtocol, env.Type, err)
	}
	return ev, nil
}
