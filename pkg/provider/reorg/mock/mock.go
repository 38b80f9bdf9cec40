// Package mock provides a configurable in-memory [reorg.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/polyvox/polyvox/pkg/provider/reorg"
)

// Provider implements [reorg.Provider] with canned behavior. The zero value
// keeps every utterance as its own group.
type Provider struct {
	mu sync.Mutex

	// Groups, when non-nil, is returned verbatim from Reorganize.
	Groups []reorg.Group

	// Err, when non-nil, is returned from Reorganize.
	Err error

	// Calls records every Reorganize input.
	Calls [][]reorg.UtteranceInput
}

var _ reorg.Provider = (*Provider)(nil)

// Reorganize implements [reorg.Provider.Reorganize].
func (p *Provider) Reorganize(_ context.Context, utterances []reorg.UtteranceInput) ([]reorg.Group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recorded := make([]reorg.UtteranceInput, len(utterances))
	copy(recorded, utterances)
	p.Calls = append(p.Calls, recorded)

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Groups != nil {
		return p.Groups, nil
	}

	groups := make([]reorg.Group, 0, len(utterances))
	for _, u := range utterances {
		groups = append(groups, reorg.Group{MergedFrom: []int{u.Index}, Text: u.Text})
	}
	return groups, nil
}

// Name implements [reorg.Provider.Name].
func (p *Provider) Name() string {
	return "mock"
}

// CallCount returns how many times Reorganize was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
