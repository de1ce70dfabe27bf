package loop

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/internal/llm"
)

func TestFrequencyDefaultsToOne(t *testing.T) {
	f := NewFrequencyControl(config.FrequencyConfig{}, nil, "", nil)
	if got := f.Adjust("s1"); got != 1.0 {
		t.Errorf("Adjust = %v, want 1.0", got)
	}
}

func TestFrequencySetClamps(t *testing.T) {
	f := NewFrequencyControl(config.FrequencyConfig{}, nil, "", nil)
	cases := []struct {
		in, want float64
	}{
		{0.01, 0.1},
		{0.5, 0.5},
		{2.0, 2.0},
		{12.0, 5.0},
	}
	for _, tc := range cases {
		f.Set("s1", tc.in)
		if got := f.Adjust("s1"); got != tc.want {
			t.Errorf("Set(%v) -> Adjust = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFrequencyShouldAdjustGates(t *testing.T) {
	cfg := config.FrequencyConfig{Enabled: true, MinInterval: time.Hour, MinMessages: 10}
	gen := llm.GeneratorFunc(func(context.Context, string, llm.Options) (string, string, error) {
		return "2.0", "", nil
	})
	f := NewFrequencyControl(cfg, gen, "m", nil)

	if f.ShouldAdjust("s1") {
		t.Error("adjust allowed with no observed traffic")
	}
	f.Observe("s1", 10)
	if !f.ShouldAdjust("s1") {
		t.Error("adjust blocked despite enough traffic")
	}

	f.MaybeAdjust(context.Background(), "s1", "Ada: hello")
	if got := f.Adjust("s1"); got != 2.0 {
		t.Errorf("Adjust after judgment = %v, want 2.0", got)
	}
	// The judgment consumed the message budget and started the interval.
	if f.ShouldAdjust("s1") {
		t.Error("adjust allowed immediately after a judgment")
	}
}

func TestFrequencyJudgmentClampedAndFaultTolerant(t *testing.T) {
	cfg := config.FrequencyConfig{Enabled: true, MinMessages: 1}

	gen := llm.GeneratorFunc(func(context.Context, string, llm.Options) (string, string, error) {
		return "crank it to 50", "", nil
	})
	f := NewFrequencyControl(cfg, gen, "m", nil)
	f.Observe("s1", 5)
	f.MaybeAdjust(context.Background(), "s1", "transcript")
	if got := f.Adjust("s1"); got != 5.0 {
		t.Errorf("Adjust = %v, want clamped 5.0", got)
	}

	unparsable := llm.GeneratorFunc(func(context.Context, string, llm.Options) (string, string, error) {
		return "no idea", "", nil
	})
	g := NewFrequencyControl(cfg, unparsable, "m", nil)
	g.Set("s1", 0.5)
	g.Observe("s1", 5)
	g.MaybeAdjust(context.Background(), "s1", "transcript")
	if got := g.Adjust("s1"); got != 0.5 {
		t.Errorf("unparsable judgment changed the value to %v", got)
	}
}

func TestParseFactor(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1.5", 1.5, false},
		{"I suggest 0.8.", 0.8, false},
		{"  2 ", 2, false},
		{"none", 0, true},
	}
	for _, tc := range cases {
		got, err := parseFactor(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseFactor(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseFactor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
