package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chat "go-hivechat/internal/pkg/chat/domain"
	authport "go-hivechat/internal/pkg/auth/port"
)

func tokens(tok string) authport.TokenSource {
	return authport.TokenSourceFunc(func(context.Context) (string, error) {
		return tok, nil
	})
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	c := New(srv.URL, tokens("tok-42"))
	var out map[string]string
	if err := c.Get(context.Background(), "/api/chat/groups", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer tok-42" {
		t.Fatalf("Authorization = %q, want Bearer tok-42", gotAuth)
	}
	if out["ok"] != "yes" {
		t.Fatalf("response not decoded: %v", out)
	}
}

func TestPublicCallSkipsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if err := c.PostPublic(context.Background(), "/api/auth/login", map[string]string{}, nil); err != nil {
		t.Fatalf("PostPublic: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("public call sent Authorization %q", gotAuth)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, chat.ErrAuth},
		{http.StatusForbidden, chat.ErrConflict},
		{http.StatusConflict, chat.ErrConflict},
		{http.StatusNotFound, chat.ErrNotFound},
		{http.StatusBadGateway, chat.ErrNetwork},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "nope"})
		}))

		c := New(srv.URL, tokens("tok"))
		err := c.Get(context.Background(), "/x", nil)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestUnreachableHostIsNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:1", tokens("tok"))
	err := c.Get(context.Background(), "/x", nil)
	if !errors.Is(err, chat.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the server without a token source")
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if err := c.Get(context.Background(), "/x", nil); !errors.Is(err, chat.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}
