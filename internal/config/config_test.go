package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatloop.yaml")
	data := []byte(`
bot:
  name: tester
chat:
  talk_value: 0.5
  silence_exit:
    messages: 4
storage:
  driver: memory
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Bot.Name != "tester" {
		t.Errorf("bot.name = %q, want tester", cfg.Bot.Name)
	}
	if cfg.Chat.TalkValue != 0.5 {
		t.Errorf("chat.talk_value = %v, want 0.5", cfg.Chat.TalkValue)
	}
	if cfg.Chat.SilenceExit.Messages != 4 {
		t.Errorf("silence_exit.messages = %d, want 4", cfg.Chat.SilenceExit.Messages)
	}
	// Untouched defaults survive.
	if cfg.Chat.SilenceExit.Elapsed != 10*time.Minute {
		t.Errorf("silence_exit.elapsed = %v, want 10m", cfg.Chat.SilenceExit.Elapsed)
	}
}

func TestValidateRejectsBadDriver(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestTalkValueAt(t *testing.T) {
	cfg := DefaultChatConfig()
	cfg.TalkValue = 0.3
	cfg.TalkSchedule = []TalkRule{
		{At: "08:00", Value: 0.8},
		{At: "23:00", Value: 0.1},
	}
	cfg.StreamTalkValues = map[string]float64{"pinned": 0.55}

	tests := []struct {
		name   string
		stream string
		at     string
		want   float64
	}{
		{"daytime rule", "s1", "2026-08-30T12:00:00Z", 0.8},
		{"night rule", "s1", "2026-08-30T23:30:00Z", 0.1},
		{"pre-dawn wraps to last rule", "s1", "2026-08-30T03:00:00Z", 0.1},
		{"stream pin wins", "pinned", "2026-08-30T12:00:00Z", 0.55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse(time.RFC3339, tt.at)
			if err != nil {
				t.Fatal(err)
			}
			if got := cfg.TalkValueAt(tt.stream, now); got != tt.want {
				t.Errorf("TalkValueAt(%q, %s) = %v, want %v", tt.stream, tt.at, got, tt.want)
			}
		})
	}
}

func TestProactiveProb(t *testing.T) {
	cfg := DefaultChatConfig()
	cfg.AutoChatValue = 2.0

	if got := cfg.ProactiveProb("s", 2*time.Hour); got != cfg.Proactive.LongProb*2 {
		t.Errorf("long idle prob = %v", got)
	}
	if got := cfg.ProactiveProb("s", 30*time.Minute); got != cfg.Proactive.MediumProb*2 {
		t.Errorf("medium idle prob = %v", got)
	}
	if got := cfg.ProactiveProb("s", time.Minute); got != cfg.Proactive.DefaultProb*2 {
		t.Errorf("default prob = %v", got)
	}

	cfg.StreamAutoChatValues = map[string]float64{"quiet": 0}
	if got := cfg.ProactiveProb("quiet", 2*time.Hour); got != 0 {
		t.Errorf("disabled stream prob = %v, want 0", got)
	}
}
