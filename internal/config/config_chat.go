package config

import (
	"sort"
	"time"
)

// ChatConfig holds the gating values that decide when a stream's loop plans
// and speaks. The silence-exit and proactive numbers are tuned values
// inherited from operating experience, kept configurable on purpose.
type ChatConfig struct {
	// TalkValue is the base probability that an iteration with unread
	// messages triggers a planning pass.
	TalkValue float64 `yaml:"talk_value"`

	// TalkSchedule optionally varies TalkValue by time of day. Rules apply
	// from their start time until the next rule (wrapping past midnight).
	TalkSchedule []TalkRule `yaml:"talk_schedule"`

	// StreamTalkValues pins a talk value for specific streams.
	StreamTalkValues map[string]float64 `yaml:"stream_talk_values"`

	// AutoChatValue scales the proactive-topic probability curve; zero
	// disables proactive topics entirely.
	AutoChatValue float64 `yaml:"auto_chat_value"`

	// StreamAutoChatValues pins an auto-chat value for specific streams.
	StreamAutoChatValues map[string]float64 `yaml:"stream_auto_chat_values"`

	// MentionedReply forces a planning pass with a mandatory reply when an
	// unread message mentions the agent.
	MentionedReply bool `yaml:"mentioned_reply"`

	// MaxContextSize bounds how many recent messages feed the planner.
	MaxContextSize int `yaml:"max_context_size"`

	// ReadLimit bounds how many buffered messages one iteration consumes.
	ReadLimit int `yaml:"read_limit"`

	// PlannerSmooth is the minimum wall time of one planning pass; faster
	// passes sleep the difference to smooth out latency.
	PlannerSmooth time.Duration `yaml:"planner_smooth"`

	SilenceExit SilenceExitConfig `yaml:"silence_exit"`
	Proactive   ProactiveConfig   `yaml:"proactive"`
	Loop        LoopConfig        `yaml:"loop"`
	Frequency   FrequencyConfig   `yaml:"frequency"`
}

// TalkRule sets the talk value from a time of day onward.
type TalkRule struct {
	// At is the start time in "15:04" form.
	At    string  `yaml:"at"`
	Value float64 `yaml:"value"`
}

// SilenceExitConfig controls when a silent-until-called stream wakes up
// without an explicit mention.
type SilenceExitConfig struct {
	// Messages wakes the stream once this many unread messages accumulate.
	Messages int `yaml:"messages"`

	// Elapsed wakes the stream once this much time passed since the last
	// read.
	Elapsed time.Duration `yaml:"elapsed"`
}

// ProactiveConfig shapes the probability of a self-initiated topic as a
// function of how long the stream has been quiet.
type ProactiveConfig struct {
	LongIdle    time.Duration `yaml:"long_idle"`
	MediumIdle  time.Duration `yaml:"medium_idle"`
	LongProb    float64       `yaml:"long_prob"`
	MediumProb  float64       `yaml:"medium_prob"`
	DefaultProb float64       `yaml:"default_prob"`
}

// LoopConfig controls loop pacing and the crash-restart policy.
type LoopConfig struct {
	// IdleSleep is the pause when no messages are buffered.
	IdleSleep time.Duration `yaml:"idle_sleep"`

	// SkipSleep is the pause after a failed talk-value draw.
	SkipSleep time.Duration `yaml:"skip_sleep"`

	// SilenceSleep is the pause while silent-until-called.
	SilenceSleep time.Duration `yaml:"silence_sleep"`

	// RestartBackoff is the delay before a crashed loop respawns.
	RestartBackoff time.Duration `yaml:"restart_backoff"`

	// MaxRestarts caps crash restarts before the stream is considered
	// permanently failed.
	MaxRestarts int `yaml:"max_restarts"`

	// HistorySize bounds the retained cycle history per stream.
	HistorySize int `yaml:"history_size"`

	// TimerVisibility hides per-timer log entries shorter than this.
	TimerVisibility time.Duration `yaml:"timer_visibility"`
}

// FrequencyConfig controls the LLM-assisted talk-frequency adjustment.
type FrequencyConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MinInterval time.Duration `yaml:"min_interval"`
	MinMessages int           `yaml:"min_messages"`
}

// DefaultChatConfig returns the chat gating defaults. The silence-exit and
// proactive numbers match long-running deployments of the ancestor system.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		TalkValue:      0.3,
		AutoChatValue:  1.0,
		MentionedReply: true,
		MaxContextSize: 30,
		ReadLimit:      20,
		PlannerSmooth:  3 * time.Second,
		SilenceExit: SilenceExitConfig{
			Messages: 8,
			Elapsed:  10 * time.Minute,
		},
		Proactive: ProactiveConfig{
			LongIdle:    time.Hour,
			MediumIdle:  20 * time.Minute,
			LongProb:    0.001,
			MediumProb:  0.0003,
			DefaultProb: 0.0001,
		},
		Loop: LoopConfig{
			IdleSleep:       200 * time.Millisecond,
			SkipSleep:       10 * time.Second,
			SilenceSleep:    time.Second,
			RestartBackoff:  3 * time.Second,
			MaxRestarts:     10,
			HistorySize:     100,
			TimerVisibility: 100 * time.Millisecond,
		},
		Frequency: FrequencyConfig{
			MinInterval: 160 * time.Second,
			MinMessages: 20,
		},
	}
}

// TalkValueAt resolves the talk value for a stream at a given time:
// per-stream pin, then schedule rule, then the base value.
func (c *ChatConfig) TalkValueAt(streamID string, now time.Time) float64 {
	if v, ok := c.StreamTalkValues[streamID]; ok {
		return v
	}
	if len(c.TalkSchedule) == 0 {
		return c.TalkValue
	}

	type rule struct {
		minute int
		value  float64
	}
	rules := make([]rule, 0, len(c.TalkSchedule))
	for _, r := range c.TalkSchedule {
		t, err := time.Parse("15:04", r.At)
		if err != nil {
			continue
		}
		rules = append(rules, rule{minute: t.Hour()*60 + t.Minute(), value: r.Value})
	}
	if len(rules) == 0 {
		return c.TalkValue
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].minute < rules[j].minute })

	minute := now.Hour()*60 + now.Minute()
	// Before the first rule of the day the last rule still applies
	// (schedules wrap past midnight).
	active := rules[len(rules)-1].value
	for _, r := range rules {
		if minute >= r.minute {
			active = r.value
		}
	}
	return active
}

// AutoChatValueFor resolves the proactive scaling for a stream.
func (c *ChatConfig) AutoChatValueFor(streamID string) float64 {
	if v, ok := c.StreamAutoChatValues[streamID]; ok {
		return v
	}
	return c.AutoChatValue
}

// ProactiveProb returns the probability of a self-initiated topic given how
// long the stream has been quiet, scaled by the stream's auto-chat value.
func (c *ChatConfig) ProactiveProb(streamID string, quiet time.Duration) float64 {
	p := c.Proactive.DefaultProb
	switch {
	case quiet > c.Proactive.LongIdle:
		p = c.Proactive.LongProb
	case quiet > c.Proactive.MediumIdle:
		p = c.Proactive.MediumProb
	}
	return p * c.AutoChatValueFor(streamID)
}
