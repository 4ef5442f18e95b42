package events

import (
	"errors"
	"testing"

	chat "go-hivechat/internal/pkg/chat/domain"
)

func TestDecodeNewMessage(t *testing.T) {
	frame := []byte(`{"type":"NEW_MESSAGE","payload":{"id":"m1","conversationId":"c1","senderId":"u2","content":"hi","messageType":"TEXT","timestamp":"2025-06-01T12:00:00Z"}}`)
	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Kind != KindNewMessage {
		t.Fatalf("kind = %s, want NEW_MESSAGE", ev.Kind)
	}
	if ev.Message == nil || ev.Message.ID != "m1" {
		t.Fatalf("message payload not decoded: %+v", ev.Message)
	}
	if ev.Message.Status != chat.DeliveryDelivered {
		t.Fatalf("remote messages must be Delivered, got %s", ev.Message.Status)
	}
}

func TestDecodePayloadShapes(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		check func(t *testing.T, ev *Event)
	}{
		{
			name:  "message read",
			frame: `{"type":"MESSAGE_READ","payload":{"messageId":"m1","userId":"u2"}}`,
			check: func(t *testing.T, ev *Event) {
				if ev.Receipt == nil || ev.Receipt.MessageID != "m1" || ev.Receipt.UserID != "u2" {
					t.Fatalf("receipt = %+v", ev.Receipt)
				}
			},
		},
		{
			name:  "typing start",
			frame: `{"type":"TYPING_START","payload":{"conversationId":"c1","userId":"u2","username":"amy"}}`,
			check: func(t *testing.T, ev *Event) {
				if ev.Typing == nil || ev.Typing.ConversationID != "c1" {
					t.Fatalf("typing = %+v", ev.Typing)
				}
			},
		},
		{
			name:  "user online",
			frame: `{"type":"USER_ONLINE","payload":{"userId":"u2"}}`,
			check: func(t *testing.T, ev *Event) {
				if ev.Presence == nil || ev.Presence.UserID != "u2" {
					t.Fatalf("presence = %+v", ev.Presence)
				}
			},
		},
		{
			name:  "reaction",
			frame: `{"type":"MESSAGE_REACTION","payload":{"messageId":"m1","reaction":{"id":"r1","messageId":"m1","userId":"u2","emoji":"🎉"}}}`,
			check: func(t *testing.T, ev *Event) {
				if ev.Reaction == nil || ev.Reaction.Reaction.Emoji != "🎉" {
					t.Fatalf("reaction = %+v", ev.Reaction)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode([]byte(tc.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tc.check(t, ev)
		})
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	for _, frame := range []string{
		`not json at all`,
		`{"payload":{}}`,
		`{"type":"NEW_MESSAGE","payload":"string, not object"}`,
	} {
		if _, err := Decode([]byte(frame)); !errors.Is(err, chat.ErrProtocol) {
			t.Fatalf("Decode(%q) err = %v, want ErrProtocol", frame, err)
		}
	}
}

func TestDecodeUnknownTypeIgnored(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"SOMETHING_NEW","payload":{}}`))
	if err != nil {
		t.Fatalf("unknown types must not error, got %v", err)
	}
	if ev != nil {
		t.Fatalf("unknown types must be skipped, got %+v", ev)
	}
}

func TestRouterFanOut(t *testing.T) {
	r := NewRouter()

	var first, second int
	r.Subscribe(KindUserOnline, func(*Event) { first++ })
	unsub := r.Subscribe(KindUserOnline, func(*Event) { second++ })

	r.Dispatch([]byte(`{"type":"USER_ONLINE","payload":{"userId":"u2"}}`))
	if first != 1 || second != 1 {
		t.Fatalf("fan-out missed a subscriber: first=%d second=%d", first, second)
	}

	unsub()
	unsub() // double-unsubscribe is harmless
	r.Dispatch([]byte(`{"type":"USER_ONLINE","payload":{"userId":"u2"}}`))
	if first != 2 || second != 1 {
		t.Fatalf("unsubscribed handler still firing: first=%d second=%d", first, second)
	}
}

func TestRouterCounters(t *testing.T) {
	var dispatched []Kind
	var dropped int
	r := NewRouter(WithCounters(
		func(k Kind) { dispatched = append(dispatched, k) },
		func() { dropped++ },
	))
	var delivered int
	r.Subscribe(KindUserOnline, func(*Event) { delivered++ })

	r.Dispatch([]byte(`{"type":"USER_ONLINE","payload":{"userId":"u2"}}`))
	r.Dispatch([]byte(`garbage`))
	r.Dispatch([]byte(`{"type":"FUTURE_KIND","payload":{}}`))

	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if len(dispatched) != 1 || dispatched[0] != KindUserOnline {
		t.Fatalf("dispatched hook saw %v, want [USER_ONLINE]", dispatched)
	}
	if dropped != 2 {
		t.Fatalf("dropped hook fired %d times, want 2 (malformed + unknown)", dropped)
	}
}

func TestRouterSurvivesBadFrames(t *testing.T) {
	r := NewRouter()
	var got int
	r.Subscribe(KindNewMessage, func(*Event) { got++ })

	r.Dispatch([]byte(`garbage`))
	r.Dispatch([]byte(`{"type":"FUTURE_KIND","payload":{}}`))
	r.Dispatch([]byte(`{"type":"NEW_MESSAGE","payload":{"id":"m1","conversationId":"c1","senderId":"u2","content":"hi"}}`))

	if got != 1 {
		t.Fatalf("delivery after bad frames = %d, want 1", got)
	}
}
