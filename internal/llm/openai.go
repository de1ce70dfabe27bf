package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// Client is the OpenAI-compatible Generator.
type Client struct {
	api    *openai.Client
	cfg    config.LLMConfig
	logger *slog.Logger
}

// NewClient creates a client from the llm config section. BaseURL may point
// at any OpenAI-compatible endpoint.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger,
	}
}

// Generate runs one chat completion. The planner model is the default when
// opts names none.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, string, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.PlannerModel
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("llm: empty completion from model %s", model)
	}
	choice := resp.Choices[0].Message
	return choice.Content, choice.ReasoningContent, nil
}

// OpenAIReplyer generates reply text through a Generator using the bot's
// configured identity.
type OpenAIReplyer struct {
	gen    Generator
	cfg    *config.Config
	logger *slog.Logger
}

// NewReplyer creates a replyer over gen configured by cfg.
func NewReplyer(gen Generator, cfg *config.Config, logger *slog.Logger) *OpenAIReplyer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIReplyer{gen: gen, cfg: cfg, logger: logger}
}

// GenerateReply produces the outgoing message segments for one reply
// decision. Blank model output means the model declined; that is reported
// through ok, not as an error.
func (r *OpenAIReplyer) GenerateReply(ctx context.Context, stream *models.ChatStream, target *models.Message, available []string, reason string) (bool, []string, error) {
	prompt := r.buildPrompt(stream, target, available, reason)
	text, _, err := r.gen.Generate(ctx, prompt, Options{Model: r.cfg.LLM.ReplyModel})
	if err != nil {
		return false, nil, err
	}

	segments := splitSegments(text)
	if len(segments) == 0 {
		return false, nil, nil
	}
	return true, segments, nil
}

func (r *OpenAIReplyer) buildPrompt(stream *models.ChatStream, target *models.Message, available []string, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", r.cfg.Bot.Name, r.cfg.Personality.Core)
	if r.cfg.Personality.Side != "" {
		fmt.Fprintf(&b, "Also: %s\n", r.cfg.Personality.Side)
	}
	if stream != nil && stream.IsGroup() {
		fmt.Fprintf(&b, "You are chatting in the group %q.\n", stream.Name())
	} else if stream != nil {
		fmt.Fprintf(&b, "You are in a direct chat with %s.\n", stream.Name())
	}
	if target != nil {
		fmt.Fprintf(&b, "You are replying to this message from %s:\n%s\n", senderName(target), target.Text)
	}
	if reason != "" {
		fmt.Fprintf(&b, "You decided to reply because: %s\n", reason)
	}
	if len(available) > 0 {
		fmt.Fprintf(&b, "Abilities you can mention if relevant: %s\n", strings.Join(available, ", "))
	}
	b.WriteString("Write the reply only, in the conversation's language. " +
		"Separate independent messages with a blank line.")
	return b.String()
}

func senderName(msg *models.Message) string {
	if msg.Sender.Cardname != "" {
		return msg.Sender.Cardname
	}
	if msg.Sender.Nickname != "" {
		return msg.Sender.Nickname
	}
	return msg.Sender.UserID
}

// splitSegments breaks model output into separately sendable messages on
// blank lines.
func splitSegments(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
