package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/pkg/models"
)

func replyConfig() *config.Config {
	cfg := config.Default()
	cfg.Bot.Name = "Mai"
	cfg.Personality.Core = "a terse assistant"
	return cfg
}

func TestSplitSegments(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "hello", []string{"hello"}},
		{"two segments", "first\n\nsecond", []string{"first", "second"}},
		{"keeps single newlines", "line one\nline two", []string{"line one\nline two"}},
		{"drops blank segments", "first\n\n  \n\nsecond", []string{"first", "second"}},
		{"all whitespace", "  \n\n\t", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := splitSegments(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("segments = %q, want %q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("segment %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSenderNamePrecedence(t *testing.T) {
	cases := []struct {
		name string
		msg  models.Message
		want string
	}{
		{"cardname first", models.Message{Sender: models.UserInfo{UserID: "u1", Nickname: "Ada", Cardname: "Ada L."}}, "Ada L."},
		{"nickname next", models.Message{Sender: models.UserInfo{UserID: "u1", Nickname: "Ada"}}, "Ada"},
		{"user id last", models.Message{Sender: models.UserInfo{UserID: "u1"}}, "u1"},
	}
	for _, tc := range cases {
		if got := senderName(&tc.msg); got != tc.want {
			t.Errorf("%s: senderName = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBuildPromptCarriesIdentityAndTarget(t *testing.T) {
	r := NewReplyer(nil, replyConfig(), nil)
	stream := &models.ChatStream{
		StreamID: "s1",
		Group:    &models.GroupInfo{GroupID: "g1", GroupName: "dev-chat"},
	}
	target := &models.Message{
		Sender: models.UserInfo{UserID: "u1", Nickname: "Ada"},
		Text:   "is the deploy done?",
	}

	prompt := r.buildPrompt(stream, target, []string{"web_search"}, "direct question")
	for _, want := range []string{
		"Mai", "a terse assistant", "dev-chat", "Ada",
		"is the deploy done?", "direct question", "web_search",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateReplyDeclinesOnBlankOutput(t *testing.T) {
	gen := GeneratorFunc(func(context.Context, string, Options) (string, string, error) {
		return "   \n\n ", "", nil
	})
	r := NewReplyer(gen, replyConfig(), nil)

	ok, segments, err := r.GenerateReply(context.Background(), &models.ChatStream{StreamID: "s1"}, nil, nil, "")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if ok || segments != nil {
		t.Errorf("blank output produced a reply: ok=%v segments=%v", ok, segments)
	}
}
