package port

import "context"

// TokenSource supplies the current bearer token for outbound calls.
// Implementations refresh expired tokens before returning; an empty token
// is only ever returned together with an error.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a plain function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }
