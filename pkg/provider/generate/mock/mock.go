// Package mock provides a configurable in-memory [generate.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/polyvox/polyvox/pkg/provider/generate"
)

// Provider implements [generate.Provider] with canned responses.
type Provider struct {
	mu sync.Mutex

	// Document is returned from GenerateDocument. Defaults to "[document]".
	Document string

	// Summary is returned from GenerateSummary. Defaults to "[summary]".
	Summary string

	// DocumentErr, when non-nil, is returned from GenerateDocument.
	DocumentErr error

	// SummaryErr, when non-nil, is returned from GenerateSummary.
	SummaryErr error

	// DocumentCalls and SummaryCalls record the transcripts passed in.
	DocumentCalls []string
	SummaryCalls  []string
}

var _ generate.Provider = (*Provider)(nil)

// GenerateDocument implements [generate.Provider.GenerateDocument].
func (p *Provider) GenerateDocument(_ context.Context, transcript string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DocumentCalls = append(p.DocumentCalls, transcript)
	if p.DocumentErr != nil {
		return "", p.DocumentErr
	}
	if p.Document == "" {
		return "[document]", nil
	}
	return p.Document, nil
}

// GenerateSummary implements [generate.Provider.GenerateSummary].
func (p *Provider) GenerateSummary(_ context.Context, transcript string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SummaryCalls = append(p.SummaryCalls, transcript)
	if p.SummaryErr != nil {
		return "", p.SummaryErr
	}
	if p.Summary == "" {
		return "[summary]", nil
	}
	return p.Summary, nil
}

// Name implements [generate.Provider.Name].
func (p *Provider) Name() string {
	return "mock"
}
