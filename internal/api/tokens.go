package api

import (
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
)

// price is USD per million tokens.
type price struct {
	input, output float64
}

// prices are matched by substring against the model name, first hit wins.
var prices = []struct {
	family string
	price  price
}{
	{"opus-4-5", price{5, 25}},
	{"opus", price{15, 75}},
	{"haiku-4-5", price{1, 5}},
	{"haiku", price{0.8, 4}},
	{"sonnet", price{3, 15}},
}

func priceFor(model anthropic.Model) price {
	name := string(model)
	for _, p := range prices {
		if strings.Contains(name, p.family) {
			return p.price
		}
	}
	return price{3, 15}
}

// TokenTracker accumulates usage over every reply of a run.
type TokenTracker struct {
	price price

	mu        sync.Mutex
	input     int64
	output    int64
	calls     int
	truncated int
}

// NewTokenTracker prices usage at the list rate of model.
func NewTokenTracker(model anthropic.Model) *TokenTracker {
	return &TokenTracker{price: priceFor(model)}
}

// Record adds one reply's usage. truncated marks a reply that hit the token cap.
func (t *TokenTracker) Record(input, output int64, truncated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += input
	t.output += output
	t.calls++
	if truncated {
		t.truncated++
	}
}

func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input, t.output
}

func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Truncated counts replies that stopped at the token cap.
func (t *TokenTracker) Truncated() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.truncated
}

// Cost estimates spend in USD.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.input)/1e6*t.price.input + float64(t.output)/1e6*t.price.output
}
