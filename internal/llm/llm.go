// Package llm holds the language-model collaborators. The planner and the
// reply path only see the interfaces; the OpenAI-compatible client is the
// shipped implementation.
package llm

import (
	"context"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// Options tune one generation request. Zero values fall back to the
// client's configured defaults.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generator produces free-form model output for a prompt. reasoning is the
// model's exposed thinking, empty when the model has none.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (text, reasoning string, err error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts Options) (string, string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts Options) (string, string, error) {
	return f(ctx, prompt, opts)
}

// Replyer turns a planned reply decision into outgoing message segments.
// available names the catalog actions offered in the same planning pass, so
// the reply can acknowledge capabilities without inventing them. ok reports
// whether a reply was actually produced; declining is not an error.
type Replyer interface {
	GenerateReply(ctx context.Context, stream *models.ChatStream, target *models.Message, available []string, reason string) (ok bool, segments []string, err error)
}
