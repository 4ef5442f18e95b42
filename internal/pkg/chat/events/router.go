package events

import (
	"sync"

	"go-hivechat/internal/infrastructure/logging"
)

// Handler consumes one decoded event.
type Handler func(ev *Event)

// Router fans decoded frames out to subscribers by event kind. Multiple
// subscribers per kind are supported; delivery order within a kind follows
// subscription order. A Router is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscription

	onDispatched func(Kind)
	onDropped    func()
}

type subscription struct {
	id int
	fn Handler
}

// Option configures a Router.
type Option func(*Router)

// WithCounters hooks the dispatch path: dispatched fires once per delivered
// event, dropped once per malformed or unknown frame.
func WithCounters(dispatched func(Kind), dropped func()) Option {
	return func(r *Router) {
		r.onDispatched = dispatched
		r.onDropped = dropped
	}
}

// NewRouter constructs an initialized Router.
func NewRouter(opts ...Option) *Router {
	r := &Router{subs: make(map[Kind][]subscription)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers fn for the given kind and returns an unsubscribe
// function. Unsubscribing twice is harmless.
func (r *Router) Subscribe(kind Kind, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[kind] = append(r.subs[kind], subscription{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subs[kind]
		for i, s := range subs {
			if s.id == id {
				r.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch decodes a raw frame and delivers it to every subscriber of its
// kind. Malformed frames and unknown types are logged and dropped; they
// never stop delivery of subsequent frames.
func (r *Router) Dispatch(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		if r.onDropped != nil {
			r.onDropped()
		}
		logging.Log.Warn("dropping malformed frame", "err", err)
		return
	}
	if ev == nil {
		if r.onDropped != nil {
			r.onDropped()
		}
		logging.Log.Debug("ignoring unknown event type")
		return
	}
	if r.onDispatched != nil {
		r.onDispatched(ev.Kind)
	}
	r.Deliver(ev)
}

// Deliver hands an already-decoded event to subscribers of its kind.
func (r *Router) Deliver(ev *Event) {
	r.mu.RLock()
	subs := make([]subscription, len(r.subs[ev.Kind]))
	copy(subs, r.subs[ev.Kind])
	r.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
