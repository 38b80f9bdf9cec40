// Package generate defines the interface for producing derived artifacts
// from a finished transcript: a polished document and a short summary.
package generate

import "context"

// Provider turns a completed transcript into derived text artifacts. Both
// operations are best-effort from the caller's perspective: a failure leaves
// the transcript itself untouched.
type Provider interface {
	// GenerateDocument rewrites the transcript into a readable document in
	// the same language.
	GenerateDocument(ctx context.Context, transcript string) (string, error)

	// GenerateSummary produces a short summary of the transcript.
	GenerateSummary(ctx context.Context, transcript string) (string, error)

	// Name returns the implementation name for logging and metrics.
	Name() string
}
