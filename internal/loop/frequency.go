package loop

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/internal/llm"
)

// Frequency adjustment bounds. Whatever the model suggests, a stream's
// talk frequency never leaves this band.
const (
	minFrequencyAdjust = 0.1
	maxFrequencyAdjust = 5.0
)

// FrequencyControl tunes a per-stream multiplier on the talk value. The
// multiplier starts at 1.0 and is nudged by an LLM judgment over the recent
// transcript, clamped to [0.1, 5.0].
type FrequencyControl struct {
	cfg    config.FrequencyConfig
	gen    llm.Generator
	model  string
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	values     map[string]float64
	lastAdjust map[string]time.Time
	msgCount   map[string]int
}

// NewFrequencyControl creates the control. gen may be nil, which disables
// LLM-assisted adjustment and pins every stream at 1.0.
func NewFrequencyControl(cfg config.FrequencyConfig, gen llm.Generator, model string, logger *slog.Logger) *FrequencyControl {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrequencyControl{
		cfg:        cfg,
		gen:        gen,
		model:      model,
		logger:     logger,
		now:        time.Now,
		values:     map[string]float64{},
		lastAdjust: map[string]time.Time{},
		msgCount:   map[string]int{},
	}
}

// Adjust returns the stream's current multiplier.
func (f *FrequencyControl) Adjust(streamID string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[streamID]; ok {
		return v
	}
	return 1.0
}

// Set pins the stream's multiplier, clamped to the allowed band.
func (f *FrequencyControl) Set(streamID string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[streamID] = clampFrequency(value)
}

// Observe counts consumed messages toward the next adjustment trigger.
func (f *FrequencyControl) Observe(streamID string, messages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgCount[streamID] += messages
}

// ShouldAdjust reports whether enough traffic and time accumulated for a
// new judgment.
func (f *FrequencyControl) ShouldAdjust(streamID string) bool {
	if !f.cfg.Enabled || f.gen == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgCount[streamID] < f.cfg.MinMessages {
		return false
	}
	last, ok := f.lastAdjust[streamID]
	return !ok || f.now().Sub(last) >= f.cfg.MinInterval
}

// MaybeAdjust asks the utility model how talkative the agent should be in
// this stream and applies the clamped result. Failures leave the current
// multiplier untouched.
func (f *FrequencyControl) MaybeAdjust(ctx context.Context, streamID, transcript string) {
	if !f.ShouldAdjust(streamID) {
		return
	}

	prompt := "Given the recent conversation below, answer with a single number " +
		"between 0.1 and 5.0: the factor by which the assistant should scale how " +
		"often it speaks up. 1.0 keeps the current pace, lower is quieter, higher " +
		"is chattier. Answer with the number only.\n\n" + transcript

	text, _, err := f.gen.Generate(ctx, prompt, llm.Options{Model: f.model})
	if err != nil {
		f.logger.Warn("frequency judgment failed", "stream_id", streamID, "error", err)
		return
	}
	value, err := parseFactor(text)
	if err != nil {
		f.logger.Warn("frequency judgment unparsable", "stream_id", streamID, "answer", text)
		return
	}

	f.mu.Lock()
	f.values[streamID] = clampFrequency(value)
	f.lastAdjust[streamID] = f.now()
	f.msgCount[streamID] = 0
	f.mu.Unlock()
	f.logger.Info("talk frequency adjusted", "stream_id", streamID, "factor", clampFrequency(value))
}

func parseFactor(text string) (float64, error) {
	for _, field := range strings.Fields(strings.TrimSpace(text)) {
		field = strings.Trim(field, ".,;:")
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no number in %q", text)
}

func clampFrequency(v float64) float64 {
	if v < minFrequencyAdjust {
		return minFrequencyAdjust
	}
	if v > maxFrequencyAdjust {
		return maxFrequencyAdjust
	}
	return v
}
