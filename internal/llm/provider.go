// Package llm abstracts the model call behind the analysis and research
// pools so either one can be pointed at a stub, a hosted API, or a future
// self-hosted runner without touching caller code.
package llm

import "context"

// Options tunes a single generation call.
type Options struct {
	MaxOutputTokens int
	Temperature     float64
}

// Result is the durable output of one call, carrying enough accounting
// detail to populate TranscriptAnalysis/GroupResearchRun cost fields.
type Result struct {
	Text      string
	ModelRef  ModelRef
	TokensIn  int
	TokensOut int
	Cost      float64
}

// ModelRef mirrors domain.ModelRef without importing the domain package,
// keeping this package usable standalone.
type ModelRef struct {
	Provider string
	ModelID  string
	Revision string
}

// Provider generates text from a prompt plus a single input document
// (a transcript body, or a set of per-equity summaries for group research).
type Provider interface {
	Generate(ctx context.Context, prompt, input string, opts Options) (Result, error)
}
