// Package mock provides a test double for the translate.Provider interface.
//
// Use Provider in unit tests to feed controlled translations without a live
// backend. Zero values cause methods to return a deterministic placeholder
// translation and nil errors; set Err to inject failures.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/polyvox/polyvox/pkg/provider/translate"
)

// Call records a single invocation of Translate.
type Call struct {
	Text       string
	SourceLang string
	TargetLang string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Result, when non-empty, is returned for every Translate call.
	// When empty, Translate returns "[target] text" so tests can assert
	// which language a translation was requested in.
	Result string

	// Err, if non-nil, is returned from every Translate call.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Compile-time interface check.
var _ translate.Provider = (*Provider)(nil)

// Translate implements translate.Provider.
func (p *Provider) Translate(_ context.Context, text, sourceLang, targetLang string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Text: text, SourceLang: sourceLang, TargetLang: targetLang})
	result := p.Result
	err := p.Err
	p.mu.Unlock()

	if err != nil {
		return "", err
	}
	if result != "" {
		return result, nil
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

// Name implements translate.Provider.
func (p *Provider) Name() string { return "mock" }

// CallCount returns the number of Translate invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
