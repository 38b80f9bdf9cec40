// Package anyllm implements transcript reorganization on top of
// github.com/mozilla-ai/any-llm-go, so any supported chat backend (OpenAI,
// Anthropic, Gemini, Ollama, ...) can serve as the grouping model.
package anyllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/polyvox/polyvox/pkg/provider/llmbackend"
	"github.com/polyvox/polyvox/pkg/provider/reorg"
)

// systemPrompt instructs the model to merge utterances and answer with bare
// JSON. The strict output contract keeps parsing deterministic.
const systemPrompt = `You reorganize speech transcripts. You receive numbered utterances from a live transcription. Merge fragments that belong to the same thought into coherent passages, fix obvious transcription stutters, but never invent content or drop information.

Respond with a JSON array only, no prose and no code fences. Each element is an object with:
  "merged_from": the source utterance numbers in reading order,
  "text": the merged passage.
Every input number must appear in exactly one group.`

// Provider implements [reorg.Provider] by wrapping an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
	name    string
}

// New creates a Provider backed by the named any-llm-go provider. See
// [llmbackend.New] for the supported provider names.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("reorg anyllm: model must not be empty")
	}
	backend, err := llmbackend.New(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("reorg anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model, name: providerName}, nil
}

var _ reorg.Provider = (*Provider)(nil)

// group mirrors the JSON contract in systemPrompt.
type group struct {
	MergedFrom []int  `json:"merged_from"`
	Text       string `json:"text"`
}

// Reorganize implements [reorg.Provider.Reorganize].
func (p *Provider) Reorganize(ctx context.Context, utterances []reorg.UtteranceInput) ([]reorg.Group, error) {
	if len(utterances) == 0 {
		return nil, fmt.Errorf("reorg anyllm: empty transcript")
	}

	var sb strings.Builder
	for _, u := range utterances {
		fmt.Fprintf(&sb, "%d: %s\n", u.Index, u.Text)
	}

	temperature := 0.2
	resp, err := p.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: sb.String()},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("reorg anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("reorg anyllm: empty choices in response")
	}

	raw := stripFences(resp.Choices[0].Message.ContentString())
	var parsed []group
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("reorg anyllm: parse response: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("reorg anyllm: model returned zero groups")
	}

	valid := make(map[int]bool, len(utterances))
	for _, u := range utterances {
		valid[u.Index] = true
	}

	groups := make([]reorg.Group, 0, len(parsed))
	for _, g := range parsed {
		if strings.TrimSpace(g.Text) == "" {
			return nil, fmt.Errorf("reorg anyllm: group with empty text")
		}
		for _, idx := range g.MergedFrom {
			if !valid[idx] {
				return nil, fmt.Errorf("reorg anyllm: group references unknown utterance %d", idx)
			}
		}
		groups = append(groups, reorg.Group{MergedFrom: g.MergedFrom, Text: g.Text})
	}
	return groups, nil
}

// Name implements [reorg.Provider.Name].
func (p *Provider) Name() string {
	return p.name
}

// stripFences removes a Markdown code fence if the model wrapped its answer
// in one despite the prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
