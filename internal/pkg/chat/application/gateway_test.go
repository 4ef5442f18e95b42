package application

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go-hivechat/internal/infrastructure/rest"
	authport "go-hivechat/internal/pkg/auth/port"
	chat "go-hivechat/internal/pkg/chat/domain"
	"go-hivechat/internal/pkg/chat/store"
)

func tokens() authport.TokenSource {
	return authport.TokenSourceFunc(func(context.Context) (string, error) {
		return "tok", nil
	})
}

func newGateway(t *testing.T, handler http.Handler) (*Gateway, *store.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	st := store.New()
	st.PutConversations([]chat.Conversation{{
		ID:           "c1",
		Type:         chat.ConversationDirect,
		Participants: []string{"u1", "u2"},
	}})
	return NewGateway(rest.New(srv.URL, tokens()), st, "u1"), st, srv
}

func TestSendMessageReconciles(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/send" {
			http.NotFound(w, r)
			return
		}
		var req SendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(chat.Message{
			ID:             "m42",
			ConversationID: req.ConversationID,
			SenderID:       "u1",
			Content:        req.Content,
			MessageType:    req.MessageType,
			Timestamp:      time.Now().UTC(),
		})
	})
	g, st, _ := newGateway(t, handler)

	msg, err := g.SendMessage(context.Background(), SendRequest{ConversationID: "c1", Content: "hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "m42" {
		t.Fatalf("canonical id = %s, want m42", msg.ID)
	}

	msgs := st.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("store has %d messages, want exactly 1", len(msgs))
	}
	if msgs[0].ID != "m42" {
		t.Fatalf("stored id = %s, want m42 (no provisional leftover)", msgs[0].ID)
	}
	if msgs[0].Status != chat.DeliveryDelivered {
		t.Fatalf("status = %s, want delivered", msgs[0].Status)
	}
}

func TestSendMessageFailureKeepsFlaggedEntry(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	g, st, _ := newGateway(t, handler)

	_, err := g.SendMessage(context.Background(), SendRequest{ConversationID: "c1", Content: "hi"})
	if !errors.Is(err, chat.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}

	msgs := st.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("optimistic entry gone: %d messages", len(msgs))
	}
	if msgs[0].Status != chat.DeliveryFailed {
		t.Fatalf("status = %s, want failed", msgs[0].Status)
	}

	// The failed entry can be retried once the backend recovers.
	g.DiscardFailed("c1", msgs[0].ID)
	if len(st.Messages("c1")) != 0 {
		t.Fatal("discard left the entry behind")
	}
}

func TestRetrySendShowsSendingDuringRoundTrip(t *testing.T) {
	var st *store.Store
	var statusDuringRetry atomic.Value
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		// Observe the optimistic entry while the retry is in flight.
		if msgs := st.Messages("c1"); len(msgs) == 1 {
			statusDuringRetry.Store(msgs[0].Status)
		}
		var req SendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(chat.Message{
			ID: "m9", ConversationID: "c1", SenderID: "u1",
			Content: req.Content, Timestamp: time.Now().UTC(),
		})
	})
	g, s, _ := newGateway(t, handler)
	st = s

	_, err := g.SendMessage(context.Background(), SendRequest{ConversationID: "c1", Content: "hi"})
	if err == nil {
		t.Fatal("first send should fail")
	}
	provisionalID := st.Messages("c1")[0].ID

	msg, err := g.RetrySend(context.Background(), "c1", provisionalID)
	if err != nil {
		t.Fatalf("RetrySend: %v", err)
	}
	if msg.ID != "m9" {
		t.Fatalf("canonical id = %s", msg.ID)
	}
	if got, _ := statusDuringRetry.Load().(chat.DeliveryStatus); got != chat.DeliverySending {
		t.Fatalf("status during retry = %s, want sending", got)
	}
	msgs := st.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "m9" {
		t.Fatalf("store after retry = %+v, want single m9", msgs)
	}
}

func TestRetrySendFailureFlipsBackToFailed(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"still down"}`, http.StatusInternalServerError)
	})
	g, st, _ := newGateway(t, handler)

	_, _ = g.SendMessage(context.Background(), SendRequest{ConversationID: "c1", Content: "hi"})
	provisionalID := st.Messages("c1")[0].ID

	if _, err := g.RetrySend(context.Background(), "c1", provisionalID); err == nil {
		t.Fatal("retry should fail")
	}
	if got := st.Messages("c1")[0].Status; got != chat.DeliveryFailed {
		t.Fatalf("status after failed retry = %s, want failed", got)
	}
}

func TestConfirmedActionsMutateOnlyOnSuccess(t *testing.T) {
	var succeed atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !succeed.Load() {
			http.Error(w, `{"message":"down"}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	g, st, _ := newGateway(t, handler)
	st.ApplyRemoteMessage(chat.Message{
		ID: "m1", ConversationID: "c1", SenderID: "u2",
		Content: "hi", Timestamp: time.Now().UTC(),
	})

	if err := g.MarkMessageAsRead(context.Background(), "m1"); err == nil {
		t.Fatal("expected failure")
	}
	if msg, _ := st.Message("m1"); msg.IsRead {
		t.Fatal("read flag set despite REST failure")
	}

	succeed.Store(true)
	if err := g.MarkMessageAsRead(context.Background(), "m1"); err != nil {
		t.Fatalf("MarkMessageAsRead: %v", err)
	}
	if msg, _ := st.Message("m1"); !msg.IsRead {
		t.Fatal("read flag not set after confirmation")
	}
}

func TestDeleteMessageConfirmedFirst(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, `{"message":"bad method"}`, http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	g, st, _ := newGateway(t, handler)
	st.ApplyRemoteMessage(chat.Message{
		ID: "m1", ConversationID: "c1", SenderID: "u1",
		Content: "bye", Timestamp: time.Now().UTC(),
	})

	if err := g.DeleteMessage(context.Background(), "m1"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if len(st.Messages("c1")) != 0 {
		t.Fatal("message still present after confirmed delete")
	}
}

func TestTypingIndicatorSwallowsFailures(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"down"}`, http.StatusInternalServerError)
	})
	g, _, _ := newGateway(t, handler)

	// Must not panic or return anything despite the backend failing.
	g.SendTypingIndicator(context.Background(), "c1", true)
	if calls.Load() != 1 {
		t.Fatalf("typing call count = %d, want 1", calls.Load())
	}
}

func TestTypingIndicatorRateLimited(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	})
	g, _, _ := newGateway(t, handler)

	for i := 0; i < 10; i++ {
		g.SendTypingIndicator(context.Background(), "c1", true)
	}
	if n := calls.Load(); n > typingBurst {
		t.Fatalf("typing calls = %d, want <= burst %d", n, typingBurst)
	}
}

func TestLoadMessagesMergesPage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/chat/conversations/c1/messages") {
			http.NotFound(w, r)
			return
		}
		resp := pagedMessages{Data: []chat.Message{
			{ID: "m1", ConversationID: "c1", SenderID: "u2", Content: "a", Timestamp: time.Unix(1, 0)},
			{ID: "m2", ConversationID: "c1", SenderID: "u2", Content: "b", Timestamp: time.Unix(2, 0)},
		}}
		resp.Pagination.Page = 1
		resp.Pagination.TotalPages = 3
		_ = json.NewEncoder(w).Encode(resp)
	})
	g, st, _ := newGateway(t, handler)

	page, more, err := g.LoadMessages(context.Background(), "c1", 1, 50)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(page) != 2 || !more {
		t.Fatalf("page len=%d more=%v, want 2 and true", len(page), more)
	}
	if got := st.Messages("c1"); len(got) != 2 {
		t.Fatalf("store has %d messages, want 2", len(got))
	}
}

func TestCreateGroupRegistersConversation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GroupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		group := chat.Group{}
		group.ID = "g1"
		group.Name = req.Name
		group.Type = chat.ConversationGroup
		group.Participants = req.Members
		_ = json.NewEncoder(w).Encode(group)
	})
	g, st, _ := newGateway(t, handler)

	group, err := g.CreateGroup(context.Background(), GroupRequest{Name: "team", Members: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if group.ID != "g1" {
		t.Fatalf("group id = %s", group.ID)
	}
	if _, ok := st.Conversation("g1"); !ok {
		t.Fatal("group conversation not registered; pushed events for it would be dropped")
	}
}
