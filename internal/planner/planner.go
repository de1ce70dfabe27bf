// Package planner decides what a stream's agent does with the current
// conversation state: reply, run catalog actions, or stay quiet.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/chatloop/internal/actions"
	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/internal/llm"
	"github.com/haasonsaas/chatloop/internal/observability"
	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// silenceOfferStreak is how many consecutive all-quiet plans it takes
// before the prompt offers going silent until called.
const silenceOfferStreak = 3

// Decision is one validated planner directive.
type Decision struct {
	Type      actions.Type
	Reasoning string
	Target    *models.Message
	Data      map[string]any
}

// IsQuiet reports whether the decision produces no outward effect.
func (d Decision) IsQuiet() bool {
	return d.Type == actions.TypeNoReply || d.Type == actions.TypeNoReplyUntilCall
}

// Result is the outcome of one planning pass. Plan never fails; any
// internal failure shows up as a single no_reply decision carrying the
// reason.
type Result struct {
	ThinkingID string
	Reasoning  string
	Decisions  []Decision

	// Available names the catalog actions that passed activation filtering
	// for this pass, for audit records and diagnostics.
	Available []string
}

// HasReply reports whether any decision is a reply.
func (r Result) HasReply() bool {
	for _, d := range r.Decisions {
		if d.Type == actions.TypeReply {
			return true
		}
	}
	return false
}

// Planner runs the per-stream planning state machine. One planner serves
// one stream's loop.
type Planner struct {
	cfg      atomic.Pointer[config.Config]
	gen      llm.Generator
	catalog  *actions.Catalog
	messages storage.MessageStore
	logger   *slog.Logger
	metrics  *observability.Metrics

	rand func() float64
	now  func() time.Time

	mu            sync.Mutex
	lastRead      time.Time
	noReplyStreak int

	log planLog
}

// New creates a planner for one stream's loop.
func New(cfg *config.Config, gen llm.Generator, catalog *actions.Catalog, messages storage.MessageStore, logger *slog.Logger, metrics *observability.Metrics) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	if catalog == nil {
		catalog = actions.NewCatalog()
	}
	p := &Planner{
		gen:      gen,
		catalog:  catalog,
		messages: messages,
		logger:   logger,
		metrics:  metrics,
		rand:     rand.Float64,
		now:      time.Now,
	}
	p.cfg.Store(cfg)
	return p
}

func (p *Planner) config() *config.Config { return p.cfg.Load() }

// UpdateConfig swaps the effective config; passes already in flight finish
// on the config they started with.
func (p *Planner) UpdateConfig(cfg *config.Config) {
	if cfg != nil {
		p.cfg.Store(cfg)
	}
}

// Plan runs one planning pass for the stream. mentioned marks a must-answer
// pass triggered by a mention.
func (p *Planner) Plan(ctx context.Context, stream *models.ChatStream, mentioned bool) Result {
	start := p.now()
	ctx, span := observability.StartSpan(ctx, "planner.plan", stream.StreamID)
	defer span.End()
	defer func() {
		p.metrics.PlannerDuration.Observe(p.now().Sub(start).Seconds())
	}()

	thinkingID := fmt.Sprintf("tid%d", start.UnixMilli())

	cfg := p.config()
	limit := cfg.Chat.MaxContextSize
	msgs, err := p.messages.Before(ctx, stream.TenantID, stream.StreamID, p.now(), limit)
	if err != nil {
		p.logger.Warn("planner could not read messages", "stream_id", stream.StreamID, "error", err)
	}

	p.mu.Lock()
	lastRead := p.lastRead
	p.lastRead = p.now()
	streak := p.noReplyStreak
	p.mu.Unlock()

	tr := buildTranscript(msgs, lastRead, p.isOwn)
	using := p.catalog.Using(tr.text, p.rand)
	available := make([]string, 0, len(using))
	for name := range using {
		available = append(available, name)
	}
	sort.Strings(available)

	// A must-answer pass is going to reply regardless. With no catalog
	// actions to weigh, the model call is wasted; return an empty result
	// and let the loop reply directly.
	if mentioned && len(using) == 0 {
		p.logAppend(thinkingID, "mentioned with no actions to weigh", nil)
		return Result{ThinkingID: thinkingID, Available: available}
	}

	offerSilence := !mentioned && streak >= silenceOfferStreak
	prompt := p.buildPrompt(stream, tr, using, mentioned, offerSilence)

	text, modelReasoning, err := p.gen.Generate(ctx, prompt, llm.Options{Model: cfg.LLM.PlannerModel})
	if err != nil {
		p.metrics.PlannerFailures.WithLabelValues("llm").Inc()
		p.metrics.LLMRequestCounter.WithLabelValues("planner", "error").Inc()
		return p.fallback(thinkingID, tr, fmt.Sprintf("model call failed: %v", err))
	}
	p.metrics.LLMRequestCounter.WithLabelValues("planner", "success").Inc()

	reasoning, raws, parseErr := parseResponse(text)
	if len(raws) == 0 {
		p.metrics.PlannerFailures.WithLabelValues("parse").Inc()
		return p.fallback(thinkingID, tr, fmt.Sprintf("unparsable response: %v", parseErr))
	}
	if reasoning == "" {
		reasoning = modelReasoning
	}
	reasoning = substituteMessageIDs(reasoning, tr.byID)

	// At most one reply leaves a pass; extra reply directives would race
	// each other into duplicate sends.
	decisions := make([]Decision, 0, len(raws))
	replyPlanned := false
	for _, raw := range raws {
		d := p.validate(raw, tr, using, offerSilence)
		if d.Type == actions.TypeReply {
			if replyPlanned {
				d = Decision{
					Type:      actions.TypeNoReply,
					Reasoning: "a reply was already planned this pass",
					Target:    d.Target,
				}
			}
			replyPlanned = true
		}
		decisions = append(decisions, d)
	}

	result := Result{ThinkingID: thinkingID, Reasoning: reasoning, Decisions: decisions, Available: available}
	p.updateStreak(result)
	p.logAppend(thinkingID, reasoning, decisions)
	return result
}

// fallback is the single-no_reply result used for any planner failure.
func (p *Planner) fallback(thinkingID string, tr transcript, reason string) Result {
	p.logger.Warn("planning pass downgraded", "reason", reason)
	decision := Decision{
		Type:      actions.TypeNoReply,
		Reasoning: reason,
		Target:    tr.latest,
	}
	result := Result{ThinkingID: thinkingID, Reasoning: reason, Decisions: []Decision{decision}}
	p.updateStreak(result)
	p.logAppend(thinkingID, reason, result.Decisions)
	return result
}

// validate turns a parsed directive into a Decision, downgrading anything
// out of contract to no_reply with a reasoning naming the offender.
func (p *Planner) validate(raw rawAction, tr transcript, using map[string]actions.Info, silenceOffered bool) Decision {
	reasoning := substituteMessageIDs(raw.Reasoning, tr.byID)

	target := tr.latest
	if raw.TargetMessageID != "" {
		if resolved, ok := tr.byID[raw.TargetMessageID]; ok {
			target = resolved
		}
	}

	typ := actions.Type(raw.ActionType)
	switch {
	case raw.ActionType == "":
		return Decision{
			Type:      actions.TypeNoReply,
			Reasoning: "directive carried no action_type",
			Target:    target,
		}
	case typ == actions.TypeNoReplyUntilCall && !silenceOffered:
		return Decision{
			Type:      actions.TypeNoReply,
			Reasoning: "no_reply_until_call chosen but was not offered",
			Target:    target,
		}
	case !typ.Internal():
		if _, ok := using[raw.ActionType]; !ok {
			return Decision{
				Type:      actions.TypeNoReply,
				Reasoning: fmt.Sprintf("action %q is not available", raw.ActionType),
				Target:    target,
			}
		}
	}

	// The agent never engages its own prior message, whatever the action.
	quiet := typ == actions.TypeNoReply || typ == actions.TypeNoReplyUntilCall
	if !quiet && target != nil && p.isOwn(target) {
		return Decision{
			Type:      actions.TypeNoReply,
			Reasoning: "target message is the agent's own",
			Target:    target,
		}
	}

	return Decision{Type: typ, Reasoning: reasoning, Target: target, Data: raw.Data}
}

// isOwn reports whether the agent authored the message.
func (p *Planner) isOwn(msg *models.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Direction == models.DirectionOutbound {
		return true
	}
	account := p.config().Bot.Account
	return account != "" && msg.Sender.UserID == account
}

func (p *Planner) updateStreak(result Result) {
	quiet := len(result.Decisions) > 0
	for _, d := range result.Decisions {
		if !d.IsQuiet() {
			quiet = false
			break
		}
	}
	p.mu.Lock()
	if quiet {
		p.noReplyStreak++
	} else {
		p.noReplyStreak = 0
	}
	p.mu.Unlock()
}

// NoReplyStreak reports how many consecutive passes decided all-quiet.
func (p *Planner) NoReplyStreak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noReplyStreak
}

// RecordExecution attaches an execution outcome to the pass that planned
// it.
func (p *Planner) RecordExecution(thinkingID string, exec ExecutionRecord) {
	if exec.Time.IsZero() {
		exec.Time = p.now()
	}
	p.log.recordExecution(thinkingID, exec)
}

// History returns the newest n plan records.
func (p *Planner) History(n int) []PlanRecord {
	return p.log.recent(n)
}

func (p *Planner) recentLogLines() string {
	return p.log.promptLines(5)
}

func (p *Planner) logAppend(thinkingID, reasoning string, decisions []Decision) {
	summaries := make([]string, 0, len(decisions))
	for _, d := range decisions {
		summary := string(d.Type)
		if d.Target != nil && d.Type == actions.TypeReply {
			summary = fmt.Sprintf("%s->%q", d.Type, d.Target.Text)
		}
		summaries = append(summaries, summary)
	}
	p.log.append(PlanRecord{
		ThinkingID: thinkingID,
		Time:       p.now(),
		Reasoning:  reasoning,
		Decisions:  summaries,
	})
}
