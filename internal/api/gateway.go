package api

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ShayCichocki/reqflow/internal/reply"
)

// Asker is anything that can answer a prompt synchronously.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Gateway is the pipeline's only route to the model. It resolves the
// underlying client on first use, paces calls, normalizes errors, and strips
// code fences from replies. It never parses JSON.
type Gateway struct {
	mu      sync.Mutex
	asker   Asker
	factory func() (Asker, error)
	initErr error
	limiter *rate.Limiter
	calls   int
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithRequestsPerMinute paces calls to at most n per minute. Zero disables pacing.
func WithRequestsPerMinute(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
		}
	}
}

// NewGateway wraps an already constructed Asker.
func NewGateway(a Asker, opts ...GatewayOption) *Gateway {
	g := &Gateway{asker: a}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewLazyGateway defers client construction until the first Ask, so a missing
// credential only fails the run once a phase actually needs the model.
func NewLazyGateway(factory func() (Asker, error), opts ...GatewayOption) *Gateway {
	g := &Gateway{factory: factory}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) resolve() (Asker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.asker != nil {
		return g.asker, nil
	}
	if g.initErr != nil {
		return nil, g.initErr
	}
	if g.factory == nil {
		g.initErr = ErrNoCredential
		return nil, g.initErr
	}
	a, err := g.factory()
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			err = &TransportError{Op: "connect", Err: err}
		}
		g.initErr = err
		return nil, err
	}
	g.asker = a
	return a, nil
}

// Ask blocks until the model replies and returns the fence-stripped text.
func (g *Gateway) Ask(ctx context.Context, prompt string) (string, error) {
	a, err := g.resolve()
	if err != nil {
		return "", err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", &TransportError{Op: "pace", Err: err}
		}
	}

	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	text, err := a.Ask(ctx, prompt)
	if err != nil {
		var te *TransportError
		if IsFatal(err) || errors.As(err, &te) {
			return "", err
		}
		return "", &TransportError{Op: "ask", Err: err}
	}
	return reply.Clean(text), nil
}

// Calls returns how many prompts were sent.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Tracker returns the token tracker of the underlying Client, if any.
func (g *Gateway) Tracker() *TokenTracker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.asker.(*Client); ok {
		return c.Tracker()
	}
	return nil
}
