// Package application issues the REST calls for state-changing chat actions
// and folds their results back into the conversation store.
package application

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go-hivechat/internal/infrastructure/logging"
	"go-hivechat/internal/infrastructure/metrics"
	"go-hivechat/internal/infrastructure/rest"
	chat "go-hivechat/internal/pkg/chat/domain"
	"go-hivechat/internal/pkg/chat/store"
)

// typingRate caps fire-and-forget typing indicator calls per conversation.
const (
	typingRate  = rate.Limit(1) // one call per second
	typingBurst = 2
)

// Gateway is the outbound action boundary. Send is optimistic; every other
// mutation touches the store only after the server confirmed it.
type Gateway struct {
	rest    *rest.Client
	store   *store.Store
	selfID  string
	metrics *metrics.Set

	mu     sync.Mutex
	typing map[string]*rate.Limiter
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics attaches action counters.
func WithMetrics(m *metrics.Set) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway constructs a Gateway acting on behalf of selfID.
func NewGateway(rc *rest.Client, st *store.Store, selfID string, opts ...Option) *Gateway {
	g := &Gateway{
		rest:   rc,
		store:  st,
		selfID: selfID,
		typing: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoadConversations fetches the conversation list and replaces the store's
// view of it.
func (g *Gateway) LoadConversations(ctx context.Context) ([]chat.Conversation, error) {
	var convs []chat.Conversation
	if err := g.rest.Get(ctx, "/api/chat/groups", &convs); err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	g.store.PutConversations(convs)
	return convs, nil
}

// pagedMessages is the backend's paginated list envelope.
type pagedMessages struct {
	Data       []chat.Message `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

// LoadMessages fetches one page of a conversation's history and merges it
// into the store. Returns the page plus whether more pages remain.
func (g *Gateway) LoadMessages(ctx context.Context, conversationID string, page, limit int) ([]chat.Message, bool, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	path := fmt.Sprintf("/api/chat/conversations/%s/messages?page=%d&limit=%d",
		url.PathEscape(conversationID), page, limit)

	var resp pagedMessages
	if err := g.rest.Get(ctx, path, &resp); err != nil {
		return nil, false, fmt.Errorf("load messages %s: %w", conversationID, err)
	}
	g.store.PutMessages(conversationID, resp.Data)
	more := resp.Pagination.TotalPages > page
	return resp.Data, more, nil
}

// SendRequest carries the optional fields of a send.
type SendRequest struct {
	ConversationID string            `json:"conversationId"`
	Content        string            `json:"content"`
	MessageType    chat.MessageType  `json:"messageType"`
	ReplyTo        string            `json:"replyTo,omitempty"`
	Attachments    []chat.Attachment `json:"attachments,omitempty"`
}

// SendMessage inserts an optimistic entry under a provisional id, posts the
// message, and reconciles the entry with the canonical result. On failure
// the entry stays in the list flagged Failed so the caller can retry or
// discard it, and the error is returned.
func (g *Gateway) SendMessage(ctx context.Context, req SendRequest) (*chat.Message, error) {
	if req.MessageType == "" {
		req.MessageType = chat.MessageTypeText
	}
	provisional, err := chat.NewMessage(chat.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       g.selfID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		ReplyTo:        req.ReplyTo,
		Attachments:    req.Attachments,
		Timestamp:      time.Now().UTC(),
		Status:         chat.DeliverySending,
	})
	if err != nil {
		return nil, err
	}

	g.store.ApplyLocalSend(*provisional)

	var canonical chat.Message
	if err := g.rest.Post(ctx, "/api/chat/send", req, &canonical); err != nil {
		g.store.MarkSendFailed(req.ConversationID, provisional.ID)
		if g.metrics != nil {
			g.metrics.SendFailures.Inc()
		}
		return nil, fmt.Errorf("send message: %w", err)
	}

	g.store.ReconcileSend(req.ConversationID, provisional.ID, canonical)
	return &canonical, nil
}

// RetrySend re-issues a failed optimistic entry. While the round-trip is in
// flight the entry shows Sending again; it is reconciled away on success
// and flipped back to Failed otherwise.
func (g *Gateway) RetrySend(ctx context.Context, conversationID, provisionalID string) (*chat.Message, error) {
	msg, ok := g.store.Message(provisionalID)
	if !ok || msg.Status != chat.DeliveryFailed {
		return nil, fmt.Errorf("%w: no failed entry %s", chat.ErrNotFound, provisionalID)
	}

	g.store.MarkSendPending(conversationID, provisionalID)

	req := SendRequest{
		ConversationID: conversationID,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		ReplyTo:        msg.ReplyTo,
		Attachments:    msg.Attachments,
	}
	var canonical chat.Message
	if err := g.rest.Post(ctx, "/api/chat/send", req, &canonical); err != nil {
		g.store.MarkSendFailed(conversationID, provisionalID)
		if g.metrics != nil {
			g.metrics.SendFailures.Inc()
		}
		return nil, fmt.Errorf("retry send: %w", err)
	}
	g.store.ReconcileSend(conversationID, provisionalID, canonical)
	return &canonical, nil
}

// DiscardFailed drops a failed optimistic entry.
func (g *Gateway) DiscardFailed(conversationID, provisionalID string) {
	g.store.DiscardLocal(conversationID, provisionalID)
}

// MarkMessageAsRead confirms the read with the backend first, then flips
// the local flag.
func (g *Gateway) MarkMessageAsRead(ctx context.Context, messageID string) error {
	path := "/api/chat/messages/" + url.PathEscape(messageID)
	if err := g.rest.Put(ctx, path, map[string]bool{"isRead": true}, nil); err != nil {
		return fmt.Errorf("mark read %s: %w", messageID, err)
	}
	g.store.ApplyReadReceipt(messageID, g.selfID)
	return nil
}

// EditMessage updates a message body server-side, then mirrors the
// confirmed result locally.
func (g *Gateway) EditMessage(ctx context.Context, messageID, content string) (*chat.Message, error) {
	path := "/api/chat/messages/" + url.PathEscape(messageID)
	var updated chat.Message
	if err := g.rest.Put(ctx, path, map[string]string{"content": content}, &updated); err != nil {
		return nil, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	if updated.EditedAt == nil {
		now := time.Now().UTC()
		updated.EditedAt = &now
	}
	g.store.ApplyEdit(updated)
	return &updated, nil
}

// DeleteMessage removes a message server-side, then locally.
func (g *Gateway) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/api/chat/messages/" + url.PathEscape(messageID)
	if err := g.rest.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	g.store.ApplyDelete(messageID)
	return nil
}

// AddReaction posts a reaction and attaches the confirmed result.
func (g *Gateway) AddReaction(ctx context.Context, messageID, emoji string) (*chat.Reaction, error) {
	path := "/api/chat/messages/" + url.PathEscape(messageID) + "/reactions"
	var reaction chat.Reaction
	if err := g.rest.Post(ctx, path, map[string]string{"emoji": emoji}, &reaction); err != nil {
		return nil, fmt.Errorf("add reaction %s: %w", messageID, err)
	}
	g.store.ApplyReaction(messageID, reaction)
	return &reaction, nil
}

// RemoveReaction deletes a reaction server-side, then locally.
func (g *Gateway) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	path := "/api/chat/messages/" + url.PathEscape(messageID) + "/reactions/" + url.PathEscape(reactionID)
	if err := g.rest.Delete(ctx, path); err != nil {
		return fmt.Errorf("remove reaction %s: %w", reactionID, err)
	}
	g.store.ApplyReactionRemoved(messageID, reactionID)
	return nil
}

// SendTypingIndicator is fire-and-forget: rate-limited per conversation,
// failures swallowed with a log, never surfaced.
func (g *Gateway) SendTypingIndicator(ctx context.Context, conversationID string, isTyping bool) {
	if !g.typingLimiter(conversationID).Allow() {
		return
	}
	body := map[string]any{"conversationId": conversationID, "isTyping": isTyping}
	if err := g.rest.Post(ctx, "/api/chat/typing", body, nil); err != nil {
		logging.Log.Debug("typing indicator dropped", "conversation", conversationID, "err", err)
	}
}

func (g *Gateway) typingLimiter(conversationID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.typing[conversationID]
	if !ok {
		l = rate.NewLimiter(typingRate, typingBurst)
		g.typing[conversationID] = l
	}
	return l
}

// GroupRequest creates a group conversation.
type GroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	Avatar      string   `json:"avatar,omitempty"`
}

// CreateGroup creates a group and registers it locally so pushed events for
// it are no longer dropped.
func (g *Gateway) CreateGroup(ctx context.Context, req GroupRequest) (*chat.Group, error) {
	var group chat.Group
	if err := g.rest.Post(ctx, "/api/chat/groups", req, &group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	g.store.PutConversation(group.Conversation)
	return &group, nil
}

// AddGroupMember adds userID to a group.
func (g *Gateway) AddGroupMember(ctx context.Context, groupID, userID string) error {
	path := "/api/chat/groups/" + url.PathEscape(groupID) + "/members"
	if err := g.rest.Post(ctx, path, map[string]string{"userId": userID}, nil); err != nil {
		return fmt.Errorf("add member %s: %w", userID, err)
	}
	return nil
}

// RemoveGroupMember removes userID from a group.
func (g *Gateway) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	path := "/api/chat/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(userID)
	if err := g.rest.Delete(ctx, path); err != nil {
		return fmt.Errorf("remove member %s: %w", userID, err)
	}
	return nil
}
