package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/chatloop/internal/actions"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// readMarkLine separates already-read transcript from new messages.
const readMarkLine = "--- messages below arrived since you last read ---"

// transcript is the id-tagged rendering of recent messages handed to the
// model, plus the lookups validation needs afterwards.
type transcript struct {
	text   string
	byID   map[string]*models.Message
	latest *models.Message
}

// buildTranscript renders messages (ascending time order) with m<nn> ids
// and a read mark before the first message newer than lastRead.
func buildTranscript(msgs []*models.Message, lastRead time.Time, isOwn func(*models.Message) bool) transcript {
	tr := transcript{byID: make(map[string]*models.Message, len(msgs))}
	var b strings.Builder
	marked := lastRead.IsZero()

	for i, msg := range msgs {
		if !marked && msg.CreatedAt.After(lastRead) {
			b.WriteString(readMarkLine)
			b.WriteByte('\n')
			marked = true
		}
		id := fmt.Sprintf("m%02d", i+1)
		tr.byID[id] = msg
		tr.latest = msg

		name := senderLabel(msg)
		if isOwn(msg) {
			name += " (you)"
		}
		fmt.Fprintf(&b, "%s [%s] %s: %s\n", id, msg.CreatedAt.Format("15:04"), name, msg.Text)
	}
	tr.text = b.String()
	return tr
}

func senderLabel(msg *models.Message) string {
	if msg.Sender.Cardname != "" {
		return msg.Sender.Cardname
	}
	if msg.Sender.Nickname != "" {
		return msg.Sender.Nickname
	}
	if msg.Sender.UserID != "" {
		return msg.Sender.UserID
	}
	return "someone"
}

// buildPrompt assembles the planning prompt. offerSilence adds the
// no_reply_until_call option; mentioned switches to the must-answer
// template.
func (p *Planner) buildPrompt(stream *models.ChatStream, tr transcript, using map[string]actions.Info, mentioned, offerSilence bool) string {
	var b strings.Builder
	cfg := p.config()

	fmt.Fprintf(&b, "You are %s, %s.\n", cfg.Bot.Name, cfg.Personality.Core)
	if cfg.Personality.PlanStyle != "" {
		fmt.Fprintf(&b, "Your style: %s\n", cfg.Personality.PlanStyle)
	}
	if stream.IsGroup() {
		fmt.Fprintf(&b, "You are in the group chat %q.\n", stream.Name())
	} else {
		fmt.Fprintf(&b, "You are in a direct chat with %s.\n", stream.Name())
	}

	b.WriteString("\n## Conversation\n")
	if tr.text == "" {
		b.WriteString("(no messages yet)\n")
	} else {
		b.WriteString(tr.text)
	}

	if recent := p.recentLogLines(); recent != "" {
		b.WriteString("\n## Your recent decisions\n")
		b.WriteString(recent)
	}

	b.WriteString("\n## Actions\n")
	b.WriteString("- reply: send a response to the conversation. Set target_message_id to the message you respond to.\n")
	b.WriteString("- no_reply: stay quiet this round.\n")
	if offerSilence {
		b.WriteString("- no_reply_until_call: stay quiet until someone calls you by name. Use it when the conversation has moved on without you.\n")
	}
	b.WriteString(describeActions(using))

	if mentioned {
		b.WriteString("\nYou were mentioned, so you must include exactly one reply action. ")
	} else {
		b.WriteString("\nDecide whether joining the conversation right now adds anything. ")
	}
	b.WriteString("First write a short line of thinking, then a fenced ```json block " +
		"with one JSON object per line, each like " +
		`{"action_type": "reply", "target_message_id": "m01", "reasoning": "..."}.` + "\n")
	return b.String()
}

func describeActions(using map[string]actions.Info) string {
	if len(using) == 0 {
		return ""
	}
	names := make([]string, 0, len(using))
	for name := range using {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		info := using[name]
		fmt.Fprintf(&b, "- %s: %s\n", name, info.Description)
		params := make([]string, 0, len(info.Parameters))
		for param := range info.Parameters {
			params = append(params, param)
		}
		sort.Strings(params)
		for _, param := range params {
			fmt.Fprintf(&b, "  - %s: %s\n", param, info.Parameters[param])
		}
		for _, req := range info.Require {
			fmt.Fprintf(&b, "  when: %s\n", req)
		}
	}
	return b.String()
}
