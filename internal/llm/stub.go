package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// StubProvider stands in for a real model call in local development,
// mirroring the log-only sender pattern used for outbound email: no
// network call, deterministic output, safe default for a fresh checkout.
type StubProvider struct {
	logger *slog.Logger
	model  ModelRef
}

func NewStubProvider(logger *slog.Logger) *StubProvider {
	return &StubProvider{
		logger: logger.With("component", "llm_stub"),
		model:  ModelRef{Provider: "stub", ModelID: "echo-1"},
	}
}

func (s *StubProvider) Generate(ctx context.Context, prompt, input string, opts Options) (Result, error) {
	s.logger.Info("stub generation", "prompt_len", len(prompt), "input_len", len(input))

	text := fmt.Sprintf("[stub analysis]\nprompt: %s\ninput chars: %d", truncate(prompt, 200), len(input))
	return Result{
		Text:      text,
		ModelRef:  s.model,
		TokensIn:  len(input) / 4,
		TokensOut: len(text) / 4,
		Cost:      0,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
