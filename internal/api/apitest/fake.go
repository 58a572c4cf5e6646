// Package apitest provides a scripted model for pipeline tests.
package apitest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Responder computes a reply for a prompt; n counts earlier matches of the same rule.
type Responder func(prompt string, n int) string

type rule struct {
	match   string
	respond Responder
	err     error
	hits    int
}

// Fake answers prompts by the most recently registered rule whose marker
// occurs in the prompt.
type Fake struct {
	mu      sync.Mutex
	rules   []*rule
	prompts []string
	// Default is returned when no rule matches.
	Default string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{}
}

// On replies with replies in order for prompts containing marker; the last
// reply repeats once the list is exhausted.
func (f *Fake) On(marker string, replies ...string) *Fake {
	return f.OnFunc(marker, func(_ string, n int) string {
		if len(replies) == 0 {
			return ""
		}
		if n >= len(replies) {
			return replies[len(replies)-1]
		}
		return replies[n]
	})
}

// OnFunc registers a computed reply.
func (f *Fake) OnFunc(marker string, fn Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{match: marker, respond: fn})
	return f
}

// Fail makes prompts containing marker return err.
func (f *Fake) Fail(marker string, err error) *Fake {
	if err == nil {
		err = errors.New("scripted failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{match: marker, err: err})
	return f
}

// Ask implements api.Asker.
func (f *Fake) Ask(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := f.rules[i]
		if !strings.Contains(prompt, r.match) {
			continue
		}
		n := r.hits
		r.hits++
		if r.err != nil {
			return "", r.err
		}
		return r.respond(prompt, n), nil
	}
	return f.Default, nil
}

// Prompts returns every prompt received so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Count returns how many received prompts contain marker.
func (f *Fake) Count(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}
