// Package session assembles the synchronization core for one authenticated
// user: token source, transport, event router, conversation store, action
// gateway and the optional history cache. Everything is constructed here
// and torn down on Close; nothing is process-global.
package session

import (
	"context"
	"fmt"

	"go-hivechat/internal/infrastructure/config"
	historyadapter "go-hivechat/internal/infrastructure/history/adapter"
	historyport "go-hivechat/internal/infrastructure/history/port"
	"go-hivechat/internal/infrastructure/logging"
	"go-hivechat/internal/infrastructure/metrics"
	"go-hivechat/internal/infrastructure/ops"
	"go-hivechat/internal/infrastructure/realtime"
	"go-hivechat/internal/infrastructure/rest"
	"go-hivechat/internal/pkg/auth"
	"go-hivechat/internal/pkg/chat/application"
	chat "go-hivechat/internal/pkg/chat/domain"
	"go-hivechat/internal/pkg/chat/events"
	"go-hivechat/internal/pkg/chat/store"
	"go-hivechat/internal/pkg/user"
)

// hydrateLimit bounds how many archived messages per conversation are
// loaded into memory at startup.
const hydrateLimit = 200

// Session owns the live synchronization core for one authenticated user.
type Session struct {
	User    auth.User
	Store   *store.Store
	Router  *events.Router
	Gateway *application.Gateway
	Users   *user.Client
	Metrics *metrics.Set

	transport *realtime.Session
	history   historyport.History
	ops       *ops.Server
	unsubs    []func()
}

// New wires a session for the already-authenticated client. It fails with
// the auth error when no user is logged in.
func New(cfg *config.Config, authClient *auth.Client) (*Session, error) {
	account, ok := authClient.CurrentUser()
	if !ok {
		return nil, fmt.Errorf("%w: login before opening a session", chat.ErrAuth)
	}

	m := metrics.New()
	s := &Session{
		User:    account,
		Metrics: m,
		Router: events.NewRouter(events.WithCounters(
			func(kind events.Kind) { m.EventsDispatched.WithLabelValues(string(kind)).Inc() },
			m.FramesDropped.Inc,
		)),
	}

	if cfg.HistoryPath != "" {
		h, err := historyadapter.NewPebbleHistory(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		s.history = h
	}

	storeOpts := []store.Option{store.WithTypingTTL(cfg.TypingTTL)}
	if s.history != nil {
		storeOpts = append(storeOpts, store.WithArchiver(s.history))
	}
	s.Store = store.New(storeOpts...)

	restClient := rest.New(cfg.ServerURL, authClient)
	s.Gateway = application.NewGateway(restClient, s.Store, account.ID,
		application.WithMetrics(s.Metrics))
	s.Users = user.NewClient(restClient)

	s.transport = realtime.NewSession(cfg.WebSocketURL(), authClient, s.Router.Dispatch,
		realtime.WithBackoff(cfg.ReconnectBase, cfg.ReconnectMax),
		realtime.WithMetrics(s.Metrics))

	s.bindStore()

	if cfg.OpsAddr != "" {
		s.ops = ops.NewServer(cfg.OpsAddr, s.Status, s.Metrics.Registry)
	}

	return s, nil
}

// bindStore subscribes the store's appliers to every event kind. Consumers
// may add their own subscribers alongside; the router fans out to all.
func (s *Session) bindStore() {
	sub := func(kind events.Kind, fn events.Handler) {
		s.unsubs = append(s.unsubs, s.Router.Subscribe(kind, fn))
	}

	sub(events.KindNewMessage, func(ev *events.Event) {
		s.Store.ApplyRemoteMessage(*ev.Message)
	})
	sub(events.KindMessageRead, func(ev *events.Event) {
		s.Store.ApplyReadReceipt(ev.Receipt.MessageID, ev.Receipt.UserID)
	})
	sub(events.KindTypingStart, func(ev *events.Event) {
		s.Store.ApplyTypingStart(ev.Typing.ConversationID, ev.Typing.UserID)
	})
	sub(events.KindTypingStop, func(ev *events.Event) {
		s.Store.ApplyTypingStop(ev.Typing.ConversationID, ev.Typing.UserID)
	})
	sub(events.KindUserOnline, func(ev *events.Event) {
		s.Store.SetPresence(ev.Presence.UserID, true)
	})
	sub(events.KindUserOffline, func(ev *events.Event) {
		s.Store.SetPresence(ev.Presence.UserID, false)
	})
	sub(events.KindMessageReaction, func(ev *events.Event) {
		s.Store.ApplyReaction(ev.Reaction.MessageID, ev.Reaction.Reaction)
	})
}

// Start hydrates the store from the local archive, opens the push channel
// and refreshes the conversation list. A failed refresh is logged but not
// fatal: the cached view stays usable and pushes keep it warm.
func (s *Session) Start(ctx context.Context) error {
	s.hydrate()

	if err := s.transport.Open(ctx); err != nil {
		return err
	}
	if s.ops != nil {
		s.ops.Start()
	}

	if _, err := s.Gateway.LoadConversations(ctx); err != nil {
		logging.Log.Warn("conversation refresh failed, serving cached view", "err", err)
	}
	return nil
}

// hydrate preloads the store from the history archive.
func (s *Session) hydrate() {
	if s.history == nil {
		return
	}
	convs, err := s.history.Conversations()
	if err != nil {
		logging.Log.Warn("history hydrate failed", "err", err)
		return
	}
	s.Store.PutConversations(convs)
	for _, c := range convs {
		msgs, err := s.history.Messages(c.ID, hydrateLimit)
		if err != nil {
			logging.Log.Warn("history hydrate failed", "conversation", c.ID, "err", err)
			continue
		}
		s.Store.PutMessages(c.ID, msgs)
	}
}

// ConnectionState exposes the transport lifecycle position.
func (s *Session) ConnectionState() realtime.State {
	return s.transport.State()
}

// OnConnectionState registers a transport state observer.
func (s *Session) OnConnectionState(fn realtime.StateHandler) func() {
	return s.transport.OnState(fn)
}

// Status is the view rendered by the ops surface.
func (s *Session) Status() map[string]any {
	return map[string]any{
		"user":          s.User.Username,
		"connection":    s.ConnectionState().String(),
		"conversations": len(s.Store.Conversations()),
	}
}

// Close tears the session down: subscriptions, transport, ops server and
// history archive.
func (s *Session) Close(ctx context.Context) {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.transport.Close()
	if s.ops != nil {
		if err := s.ops.Shutdown(ctx); err != nil {
			logging.Log.Warn("ops shutdown", "err", err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			logging.Log.Warn("history close", "err", err)
		}
	}
}
