// Package anyllm implements document and summary generation on top of
// github.com/mozilla-ai/any-llm-go.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/polyvox/polyvox/pkg/provider/generate"
	"github.com/polyvox/polyvox/pkg/provider/llmbackend"
)

const documentPrompt = `You turn raw speech transcripts into polished written documents. Keep the speaker's language and meaning, remove filler and stutters, add paragraph breaks where the topic shifts. Output only the document text.`

const summaryPrompt = `You summarise speech transcripts. Write a concise summary in the transcript's own language covering the main points. Output only the summary text.`

// Provider implements [generate.Provider] by wrapping an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
	name    string
}

// New creates a Provider backed by the named any-llm-go provider. See
// [llmbackend.New] for the supported provider names.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("generate anyllm: model must not be empty")
	}
	backend, err := llmbackend.New(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model, name: providerName}, nil
}

var _ generate.Provider = (*Provider)(nil)

// GenerateDocument implements [generate.Provider.GenerateDocument].
func (p *Provider) GenerateDocument(ctx context.Context, transcript string) (string, error) {
	return p.complete(ctx, documentPrompt, transcript)
}

// GenerateSummary implements [generate.Provider.GenerateSummary].
func (p *Provider) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	return p.complete(ctx, summaryPrompt, transcript)
}

// Name implements [generate.Provider.Name].
func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) complete(ctx context.Context, system, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("generate anyllm: empty transcript")
	}

	temperature := 0.3
	resp, err := p.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: system},
			{Role: anyllmlib.RoleUser, Content: transcript},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate anyllm: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}
