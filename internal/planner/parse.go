package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/chatloop/pkg/models"
)

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)```")
	messageIDRe = regexp.MustCompile(`\bm\d{2,4}\b`)
	// Trailing commas before a closing brace or bracket are the most
	// common model-emitted JSON defect.
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// rawAction is one parsed planner directive before validation.
type rawAction struct {
	ActionType      string
	TargetMessageID string
	Reasoning       string
	Data            map[string]any
}

// parseResponse splits model output into free-form reasoning (the text
// before the first fenced block) and the directives inside fenced blocks.
// Blocks hold either a JSON array or one JSON object per line.
func parseResponse(text string) (reasoning string, actions []rawAction, err error) {
	matches := fenceRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), nil, fmt.Errorf("no fenced block in response")
	}

	reasoning = strings.TrimSpace(text[:matches[0][0]])
	for _, m := range matches {
		block := text[m[2]:m[3]]
		parsed, parseErr := parseBlock(block)
		if parseErr != nil {
			err = parseErr
			continue
		}
		actions = append(actions, parsed...)
	}
	if len(actions) == 0 {
		if err == nil {
			err = fmt.Errorf("fenced blocks held no directives")
		}
		return reasoning, nil, err
	}
	return reasoning, actions, nil
}

func parseBlock(block string) ([]rawAction, error) {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil, fmt.Errorf("empty fenced block")
	}

	// Whole-block array or single object first.
	if objs, err := decodeAny(block); err == nil {
		return objs, nil
	}

	// Fall back to one object per line.
	var out []rawAction
	var lastErr error
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		objs, err := decodeAny(line)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, objs...)
	}
	if len(out) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no parsable directives in block")
		}
		return nil, lastErr
	}
	return out, nil
}

func decodeAny(s string) ([]rawAction, error) {
	repaired := repairJSON(s)

	if strings.HasPrefix(repaired, "[") {
		var arr []map[string]any
		if err := json.Unmarshal([]byte(repaired), &arr); err != nil {
			return nil, err
		}
		out := make([]rawAction, 0, len(arr))
		for _, obj := range arr {
			out = append(out, toRawAction(obj))
		}
		return out, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, err
	}
	return []rawAction{toRawAction(obj)}, nil
}

func toRawAction(obj map[string]any) rawAction {
	action := rawAction{Data: map[string]any{}}
	for key, value := range obj {
		switch key {
		case "action_type", "action":
			action.ActionType, _ = value.(string)
		case "target_message_id", "target":
			action.TargetMessageID, _ = value.(string)
		case "reasoning", "reason":
			action.Reasoning, _ = value.(string)
		default:
			action.Data[key] = value
		}
	}
	return action
}

// repairJSON fixes the minor syntax defects models routinely emit: smart
// quotes, trailing commas, and unbalanced closing braces or brackets.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
	s = replacer.Replace(s)
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

// substituteMessageIDs replaces transcript ids in free-form reasoning with
// the quoted message text so plan logs read without the transcript at hand.
func substituteMessageIDs(reasoning string, byID map[string]*models.Message) string {
	if len(byID) == 0 {
		return reasoning
	}
	return messageIDRe.ReplaceAllStringFunc(reasoning, func(id string) string {
		if msg, ok := byID[id]; ok {
			return fmt.Sprintf("%q", msg.Text)
		}
		return id
	})
}
