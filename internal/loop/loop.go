// Package loop runs the per-stream chat cycle: watch the message buffer,
// decide when to plan, execute planned actions, and keep the loop alive
// through crashes.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/chatloop/internal/actions"
	"github.com/haasonsaas/chatloop/internal/backoff"
	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/internal/llm"
	"github.com/haasonsaas/chatloop/internal/observability"
	"github.com/haasonsaas/chatloop/internal/planner"
	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// maxRestartBackoff caps the exponential restart delay.
const maxRestartBackoff = time.Minute

// Sender delivers outgoing reply segments to the platform. quote, when set,
// asks the platform to render the first segment as a quoted reply.
type Sender interface {
	Send(ctx context.Context, stream *models.ChatStream, segments []string, quote *models.Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, stream *models.ChatStream, segments []string, quote *models.Message) error

func (f SenderFunc) Send(ctx context.Context, stream *models.ChatStream, segments []string, quote *models.Message) error {
	return f(ctx, stream, segments, quote)
}

// Deps are the collaborators one stream loop runs on.
type Deps struct {
	Config    *config.Config
	Stream    *models.ChatStream
	Planner   *planner.Planner
	Replyer   llm.Replyer
	Sender    Sender
	Catalog   *actions.Catalog
	Messages  storage.MessageStore
	Actions   storage.ActionStore
	Frequency *FrequencyControl
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Loop is the cycle runner for one chat stream.
type Loop struct {
	cfg      atomic.Pointer[config.Config]
	stream   *models.ChatStream
	planner  *planner.Planner
	replyer  llm.Replyer
	sender   Sender
	catalog  *actions.Catalog
	messages storage.MessageStore
	actions  storage.ActionStore
	freq     *FrequencyControl
	logger   *slog.Logger
	metrics  *observability.Metrics

	rand func() float64
	now  func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Loop-goroutine state, touched only from run.
	lastRead     time.Time
	lastInbound  time.Time
	silent       bool
	silenceStart time.Time
	silenceMsgs  int

	proactivePending atomic.Bool
	cycleSeq         atomic.Int64

	history *cycleHistory
	tasks   *taskSet
}

// New creates a loop for one stream. Deps.Stream is cloned; the loop never
// shares the caller's copy.
func New(deps Deps) *Loop {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.StreamLogger(logger, deps.Stream.StreamID, deps.Stream.Name())
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = actions.NewCatalog()
	}
	freq := deps.Frequency
	if freq == nil {
		freq = NewFrequencyControl(deps.Config.Chat.Frequency, nil, "", logger)
	}
	l := &Loop{
		stream:   deps.Stream.Clone(),
		planner:  deps.Planner,
		replyer:  deps.Replyer,
		sender:   deps.Sender,
		catalog:  catalog,
		messages: deps.Messages,
		actions:  deps.Actions,
		freq:     freq,
		logger:   logger,
		metrics:  metrics,
		rand:     rand.Float64,
		now:      time.Now,
		lastRead: time.Now(),
		history:  newCycleHistory(deps.Config.Chat.Loop.HistorySize),
		tasks:    newTaskSet(4, logger),
	}
	l.cfg.Store(deps.Config)
	return l
}

func (l *Loop) config() *config.Config { return l.cfg.Load() }

// UpdateConfig swaps the loop's effective config so later iterations pick
// up re-registered agent overrides; the planner follows.
func (l *Loop) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	l.cfg.Store(cfg)
	if l.planner != nil {
		l.planner.UpdateConfig(cfg)
	}
}

// StreamID reports the stream this loop serves.
func (l *Loop) StreamID() string { return l.stream.StreamID }

// Running reports whether the loop's supervisor is alive. It stays true
// across crash restarts.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// History returns the newest n cycle details.
func (l *Loop) History(n int) []CycleDetail {
	return l.history.recent(n)
}

// Start launches the supervised loop. Starting a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	l.mu.Unlock()

	l.metrics.ActiveStreams.Inc()
	go l.supervise(ctx)
}

// Stop cancels the loop and waits for it to wind down, including its
// background tasks.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	l.tasks.Wait()
}

// supervise keeps the loop body alive. A crash (error or panic) restarts
// the body after an exponential backoff, up to the configured cap; the
// loop only counts as stopped once the supervisor itself returns.
func (l *Loop) supervise(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.running = false
		close(l.done)
		l.mu.Unlock()
		l.metrics.ActiveStreams.Dec()
	}()

	restarts := 0
	for {
		err := l.runSafely(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}

		restarts++
		l.metrics.LoopRestarts.Inc()
		loopCfg := l.config().Chat.Loop
		if limit := loopCfg.MaxRestarts; limit > 0 && restarts > limit {
			l.logger.Error("loop crashed too often, giving up",
				"restarts", restarts-1, "error", err)
			return
		}
		backoff := restartBackoff(loopCfg.RestartBackoff, restarts)
		l.logger.Warn("loop crashed, restarting",
			"restart", restarts, "backoff", backoff, "error", err)
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func restartBackoff(base time.Duration, restart int) time.Duration {
	policy := backoff.Policy{Initial: base, Max: maxRestartBackoff, Factor: 2}
	return policy.DelayWithRand(restart, 0)
}

func (l *Loop) runSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop panic: %v", r)
		}
	}()
	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		pause, err := l.iterate(ctx)
		if err != nil {
			return err
		}
		if !sleepCtx(ctx, pause) {
			return nil
		}
	}
}

// iterate is one pass of the watch loop: consume buffered messages, apply
// the gating rules, and run a planning cycle when one is warranted.
func (l *Loop) iterate(ctx context.Context) (time.Duration, error) {
	cfg := l.config()
	msgs, err := l.messages.Since(ctx, l.stream.TenantID, l.stream.StreamID, l.lastRead, cfg.Chat.ReadLimit)
	if err != nil {
		l.logger.Warn("reading message buffer failed", "error", err)
		return cfg.Chat.Loop.IdleSleep, nil
	}
	inbound := filterInbound(msgs, l.isOwn)

	if l.silent {
		l.silenceMsgs += len(inbound)
		if !l.wakeFromSilence(inbound) {
			if len(msgs) > 0 {
				l.lastRead = msgs[len(msgs)-1].CreatedAt
			}
			return cfg.Chat.Loop.SilenceSleep, nil
		}
		l.silent = false
		l.silenceMsgs = 0
		l.logger.Info("leaving silent mode")
	}

	if len(inbound) == 0 {
		if len(msgs) > 0 {
			l.lastRead = msgs[len(msgs)-1].CreatedAt
		}
		l.maybeProactive(ctx)
		return cfg.Chat.Loop.IdleSleep, nil
	}

	l.lastRead = msgs[len(msgs)-1].CreatedAt
	l.lastInbound = inbound[len(inbound)-1].CreatedAt
	l.freq.Observe(l.stream.StreamID, len(inbound))
	l.scheduleFrequencyAdjust(ctx, inbound)

	mentioned := cfg.Chat.MentionedReply && anyMention(inbound)
	if !mentioned {
		talk := cfg.Chat.TalkValueAt(l.stream.StreamID, l.now()) * l.freq.Adjust(l.stream.StreamID)
		if l.rand() >= talk {
			return cfg.Chat.Loop.SkipSleep, nil
		}
	}

	l.cycle(ctx, inbound, mentioned)
	return cfg.Chat.Loop.IdleSleep, nil
}

// cycle runs one planning pass and executes its decisions.
func (l *Loop) cycle(ctx context.Context, inbound []*models.Message, mentioned bool) {
	cycleID := l.cycleSeq.Add(1)
	start := l.now()
	ctx, span := observability.StartSpan(ctx, "loop.cycle", l.stream.StreamID)
	defer span.End()

	timers := newTimerSet(l.now)

	var result planner.Result
	timers.measure("plan", func() {
		result = l.planner.Plan(ctx, l.stream, mentioned)
	})

	// A mention must be answered. When the planner produced no reply
	// (including the empty-catalog short circuit), reply directly to the
	// newest message that is not the agent's own.
	if mentioned && !result.HasReply() {
		if target := latestMention(inbound); target != nil {
			result.Decisions = append(result.Decisions, planner.Decision{
				Type:      actions.TypeReply,
				Reasoning: "answering a direct mention",
				Target:    target,
			})
		}
	}

	var info LoopInfo
	timers.measure("execute", func() {
		info = l.execute(ctx, result, start)
	})

	if info.Silenced {
		l.silent = true
		l.silenceStart = l.now()
		l.silenceMsgs = 0
		l.logger.Info("entering silent mode until called")
	}

	detail := CycleDetail{
		CycleID:    cycleID,
		ThinkingID: result.ThinkingID,
		StartedAt:  start,
		EndedAt:    l.now(),
		Outcome:    outcomeOf(info),
		Timers:     timers.timers,
		Info:       info,
	}
	cfg := l.config()
	l.history.append(detail)
	timers.logVisible(l.logger, cfg.Chat.Loop.TimerVisibility)
	l.metrics.CycleCounter.WithLabelValues(detail.Outcome).Inc()
	l.metrics.CycleDuration.Observe(detail.EndedAt.Sub(start).Seconds())

	// Pacing: a cycle never finishes faster than the smoothing window, so
	// bursts of messages do not turn into machine-gun planning.
	if elapsed := l.now().Sub(start); elapsed < cfg.Chat.PlannerSmooth {
		sleepCtx(ctx, cfg.Chat.PlannerSmooth-elapsed)
	}
}

func outcomeOf(info LoopInfo) string {
	switch {
	case info.Replied:
		return OutcomeReply
	case info.Silenced:
		return OutcomeSilent
	case info.ActionsRun > 0:
		return OutcomeActions
	case info.ActionErrors > 0:
		return OutcomeError
	default:
		return OutcomeSkip
	}
}

// maybeProactive draws against the idle-time probability curve and, on a
// hit, runs a planning pass with no triggering messages. At most one
// proactive attempt is pending at a time.
func (l *Loop) maybeProactive(ctx context.Context) {
	quiet := l.now().Sub(l.lastInboundOrStart())
	prob := l.config().Chat.ProactiveProb(l.stream.StreamID, quiet)
	if prob <= 0 || l.rand() >= prob {
		return
	}
	if !l.proactivePending.CompareAndSwap(false, true) {
		return
	}
	l.logger.Info("proactive topic attempt", "quiet", quiet)
	l.cycle(ctx, nil, false)
	l.proactivePending.Store(false)
}

func (l *Loop) lastInboundOrStart() time.Time {
	if !l.lastInbound.IsZero() {
		return l.lastInbound
	}
	return l.lastRead
}

// scheduleFrequencyAdjust runs the LLM frequency judgment as a bounded
// background task.
func (l *Loop) scheduleFrequencyAdjust(ctx context.Context, inbound []*models.Message) {
	if !l.freq.ShouldAdjust(l.stream.StreamID) {
		return
	}
	transcript := renderPlain(inbound)
	l.tasks.Go(ctx, "frequency-adjust", func(ctx context.Context) {
		l.freq.MaybeAdjust(ctx, l.stream.StreamID, transcript)
	})
}

func (l *Loop) isOwn(msg *models.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Direction == models.DirectionOutbound {
		return true
	}
	account := l.config().Bot.Account
	return account != "" && msg.Sender.UserID == account
}

// sleepCtx sleeps for d unless ctx ends first; it reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
