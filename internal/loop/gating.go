package loop

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// filterInbound drops the agent's own messages from the buffer.
func filterInbound(msgs []*models.Message, isOwn func(*models.Message) bool) []*models.Message {
	out := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if !isOwn(msg) {
			out = append(out, msg)
		}
	}
	return out
}

func anyMention(msgs []*models.Message) bool {
	for _, msg := range msgs {
		if msg.Mentioned || msg.At {
			return true
		}
	}
	return false
}

// latestMention returns the newest mentioning message, falling back to the
// newest message overall.
func latestMention(msgs []*models.Message) *models.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Mentioned || msgs[i].At {
			return msgs[i]
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// wakeFromSilence decides whether a silent-until-called stream should wake:
// an explicit mention, enough messages accumulated since going silent, or
// enough elapsed time.
func (l *Loop) wakeFromSilence(inbound []*models.Message) bool {
	if anyMention(inbound) {
		return true
	}
	exit := l.config().Chat.SilenceExit
	if exit.Messages > 0 && l.silenceMsgs >= exit.Messages {
		return true
	}
	if exit.Elapsed > 0 && l.now().Sub(l.silenceStart) > exit.Elapsed {
		return true
	}
	return false
}

// renderPlain renders messages as plain "name: text" lines for utility
// prompts.
func renderPlain(msgs []*models.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		name := msg.Sender.Nickname
		if name == "" {
			name = msg.Sender.UserID
		}
		fmt.Fprintf(&b, "%s: %s\n", name, msg.Text)
	}
	return b.String()
}
