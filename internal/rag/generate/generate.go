package generate

import (
	"context"
	"fmt"
	"io"
	"log"
)

// Tier identifies which generation strategy produced an answer.
type Tier string

const (
	TierRemote     Tier = "remote"
	TierLocal      Tier = "local"
	TierExtractive Tier = "extractive"
)

// Generator produces a natural-language answer from a question and a
// retrieved context block.
type Generator interface {
	Generate(ctx context.Context, question, contextText string) (string, error)
}

// Answerer walks the generation tiers in order: remote hosted model,
// then local model, then the deterministic extractive fallback. Each
// tier gets a single attempt; a failure moves straight to the next tier
// and is never surfaced to the caller. The extractive tier cannot fail,
// so Answer always returns a non-empty answer.
type Answerer struct {
	remote     Generator // nil when no remote credential is configured
	local      Generator // nil when no local model is configured
	extractive *Extractive
	logger     *log.Logger
}

func NewAnswerer(remote, local Generator, logger *log.Logger) *Answerer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Answerer{
		remote:     remote,
		local:      local,
		extractive: NewExtractive(),
		logger:     logger,
	}
}

// Answer generates an answer for the question given the assembled context
// block, reporting which tier produced it.
func (a *Answerer) Answer(ctx context.Context, question, contextText string) (string, Tier) {
	if a.remote != nil {
		answer, err := a.remote.Generate(ctx, question, contextText)
		if err == nil && answer != "" {
			return answer, TierRemote
		}
		a.logger.Printf("remote generation failed, trying local: %v", err)
	}

	if a.local != nil {
		answer, err := a.local.Generate(ctx, question, contextText)
		if err == nil && answer != "" {
			return answer, TierLocal
		}
		a.logger.Printf("local generation failed, using extractive fallback: %v", err)
	}

	return a.extractive.Answer(question, contextText), TierExtractive
}

// buildPrompt assembles the grounding prompt shared by the model tiers.
func buildPrompt(question, contextText string) string {
	return fmt.Sprintf(`Use the following pieces of context to answer the question.
If you don't know the answer based on the context, just say that you don't know, don't try to make up an answer.

Context: %s

Question: %s

Answer: `, contextText, question)
}
