package planner

import (
	"testing"

	"github.com/haasonsaas/chatloop/pkg/models"
)

func TestParseResponseObjectPerLine(t *testing.T) {
	text := "The conversation turned to deployment problems, I can help.\n" +
		"```json\n" +
		`{"action_type": "reply", "target_message_id": "m02", "reasoning": "they asked me"}` + "\n" +
		`{"action_type": "web_search", "query": "rollback strategies"}` + "\n" +
		"```\n"

	reasoning, parsed, err := parseResponse(text)
	if err != nil {
		t.Fatal(err)
	}
	if reasoning != "The conversation turned to deployment problems, I can help." {
		t.Errorf("reasoning = %q", reasoning)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d actions, want 2", len(parsed))
	}
	if parsed[0].ActionType != "reply" || parsed[0].TargetMessageID != "m02" {
		t.Errorf("first action = %+v", parsed[0])
	}
	if parsed[1].ActionType != "web_search" || parsed[1].Data["query"] != "rollback strategies" {
		t.Errorf("second action = %+v", parsed[1])
	}
}

func TestParseResponseArrayBlock(t *testing.T) {
	text := "thinking\n```json\n" +
		`[{"action_type": "no_reply", "reasoning": "nothing to add"}]` + "\n```"

	_, parsed, err := parseResponse(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 || parsed[0].ActionType != "no_reply" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParseResponseUnfencedFails(t *testing.T) {
	if _, _, err := parseResponse("I think I will just reply."); err == nil {
		t.Error("response without a fenced block parsed")
	}
}

func TestParseResponseRepairsMinorDefects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"trailing comma", `{"action_type": "reply", "reasoning": "hi",}`},
		{"missing brace", `{"action_type": "reply", "reasoning": "hi"`},
		{"smart quotes", `{“action_type”: “reply”}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, parsed, err := parseResponse("```json\n" + tc.body + "\n```")
			if err != nil {
				t.Fatalf("repair failed: %v", err)
			}
			if len(parsed) != 1 || parsed[0].ActionType != "reply" {
				t.Errorf("parsed = %+v", parsed)
			}
		})
	}
}

func TestParseResponseSkipsBrokenLines(t *testing.T) {
	text := "```json\n" +
		"completely broken %% line\n" +
		`{"action_type": "reply"}` + "\n" +
		"```"
	_, parsed, err := parseResponse(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 {
		t.Errorf("parsed %d actions, want 1", len(parsed))
	}
}

func TestSubstituteMessageIDs(t *testing.T) {
	byID := map[string]*models.Message{
		"m01": {Text: "is anyone around"},
		"m12": {Text: "ship it"},
	}
	got := substituteMessageIDs("answering m01 because of m12, m99 is unknown", byID)
	want := `answering "is anyone around" because of "ship it", m99 is unknown`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
