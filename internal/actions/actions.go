// Package actions defines the action vocabulary the planner chooses from
// and the catalog of handlers that execute named actions.
package actions

import (
	"strings"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// Type is an action kind. Reply and the two silence variants are built in;
// every other value must name a registered catalog action, so the set of
// valid types is closed at any point in time.
type Type string

const (
	TypeReply            Type = "reply"
	TypeNoReply          Type = "no_reply"
	TypeNoReplyUntilCall Type = "no_reply_until_call"
)

// Internal reports whether the type is one of the built-in actions that
// need no catalog entry.
func (t Type) Internal() bool {
	switch t {
	case TypeReply, TypeNoReply, TypeNoReplyUntilCall:
		return true
	}
	return false
}

// ActivationKind controls when an action is offered to the planner.
type ActivationKind string

const (
	// ActivationAlways offers the action on every planning pass.
	ActivationAlways ActivationKind = "always"
	// ActivationLLMJudge offers the action and lets the model decide.
	ActivationLLMJudge ActivationKind = "llm_judge"
	// ActivationNever keeps the action registered but never offered.
	ActivationNever ActivationKind = "never"
	// ActivationRandom offers the action with a configured probability.
	ActivationRandom ActivationKind = "random"
	// ActivationKeyword offers the action only when one of its keywords
	// appears in the recent transcript.
	ActivationKeyword ActivationKind = "keyword"
)

// Activation is an action's offering policy.
type Activation struct {
	Kind        ActivationKind
	Probability float64
	Keywords    []string
}

// Matches decides whether the policy passes for this planning pass. draw is
// a uniform [0, 1) sample consumed only by the random policy.
func (a Activation) Matches(transcript string, draw float64) bool {
	switch a.Kind {
	case ActivationAlways, ActivationLLMJudge, "":
		return true
	case ActivationNever:
		return false
	case ActivationRandom:
		return draw < a.Probability
	case ActivationKeyword:
		lowered := strings.ToLower(transcript)
		for _, kw := range a.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	}
	return false
}

// Info describes a catalog action to the planner.
type Info struct {
	// Description tells the model what the action does.
	Description string
	// Parameters maps parameter names to their descriptions.
	Parameters map[string]string
	// Require lists usage conditions quoted in the planning prompt.
	Require []string
	// Parallel marks actions safe to run alongside a reply.
	Parallel bool

	Activation Activation
}

func (i Info) clone() Info {
	out := i
	if i.Parameters != nil {
		out.Parameters = make(map[string]string, len(i.Parameters))
		for k, v := range i.Parameters {
			out.Parameters[k] = v
		}
	}
	out.Require = append([]string(nil), i.Require...)
	out.Activation.Keywords = append([]string(nil), i.Activation.Keywords...)
	return out
}

// Payload carries one planned invocation into a handler.
type Payload struct {
	TenantID   string
	AgentID    string
	StreamID   string
	ThinkingID string
	Reasoning  string
	Data       map[string]any
	Target     *models.Message
}
