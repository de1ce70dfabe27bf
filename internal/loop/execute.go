package loop

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/chatloop/internal/actions"
	"github.com/haasonsaas/chatloop/internal/planner"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// quoteThreshold is how many messages must arrive between planning and
// sending before the reply quotes its target; in a slow conversation the
// context is obvious without a quote.
const quoteThreshold = 2

// execute runs every decision of one planning pass concurrently and merges
// the outcomes. The reply decision's outcome dominates the merge no matter
// which goroutine finishes last, and one action's failure never reaches the
// others.
func (l *Loop) execute(ctx context.Context, result planner.Result, planStart time.Time) LoopInfo {
	if len(result.Decisions) == 0 {
		return LoopInfo{}
	}

	infos := make([]LoopInfo, len(result.Decisions))
	var wg sync.WaitGroup
	for i, decision := range result.Decisions {
		wg.Add(1)
		go func(i int, decision planner.Decision) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("action execution panicked",
						"action_type", decision.Type, "panic", r)
					infos[i] = LoopInfo{ActionErrors: 1}
				}
			}()
			infos[i] = l.executeOne(ctx, result, decision, planStart)
		}(i, decision)
	}
	wg.Wait()

	var merged LoopInfo
	for i, decision := range result.Decisions {
		info := infos[i]
		merged.ActionsRun += info.ActionsRun
		merged.ActionErrors += info.ActionErrors
		merged.Silenced = merged.Silenced || info.Silenced
		if decision.Type == actions.TypeReply {
			merged.Replied = merged.Replied || info.Replied
		}
	}
	return merged
}

func (l *Loop) executeOne(ctx context.Context, result planner.Result, decision planner.Decision, planStart time.Time) LoopInfo {
	var info LoopInfo
	rec := planner.ExecutionRecord{ActionType: string(decision.Type), Time: l.now()}

	switch decision.Type {
	case actions.TypeReply:
		info, rec = l.executeReply(ctx, result, decision, planStart)
	case actions.TypeNoReply:
		rec.OK = true
	case actions.TypeNoReplyUntilCall:
		rec.OK = true
		info.Silenced = true
	default:
		info, rec = l.executeNamed(ctx, result.ThinkingID, decision)
	}

	l.planner.RecordExecution(result.ThinkingID, rec)
	l.persistAction(ctx, result, decision, rec)

	status := "success"
	if rec.Error != "" {
		status = "error"
	}
	l.metrics.ActionCounter.WithLabelValues(string(decision.Type), status).Inc()
	return info
}

func (l *Loop) executeReply(ctx context.Context, result planner.Result, decision planner.Decision, planStart time.Time) (LoopInfo, planner.ExecutionRecord) {
	var info LoopInfo
	rec := planner.ExecutionRecord{ActionType: string(actions.TypeReply), Time: l.now()}

	ok, segments, err := l.replyer.GenerateReply(ctx, l.stream, decision.Target, result.Available, decision.Reasoning)
	if err != nil {
		l.metrics.LLMRequestCounter.WithLabelValues("reply", "error").Inc()
		rec.Error = err.Error()
		l.logger.Warn("reply generation failed", "error", err)
		return info, rec
	}
	l.metrics.LLMRequestCounter.WithLabelValues("reply", "success").Inc()
	if !ok {
		rec.OK = true
		rec.Text = "model declined to reply"
		return info, rec
	}

	// Quote the target only when the conversation moved on since planning
	// started.
	var quote *models.Message
	if decision.Target != nil {
		if n, countErr := l.messages.CountSince(ctx, l.stream.TenantID, l.stream.StreamID, planStart); countErr == nil && n >= quoteThreshold {
			quote = decision.Target
		}
	}

	if l.sender != nil {
		if err := l.sender.Send(ctx, l.stream, segments, quote); err != nil {
			rec.Error = err.Error()
			l.logger.Warn("reply delivery failed", "error", err)
			return info, rec
		}
	}

	l.persistOutbound(ctx, segments)
	l.proactivePending.Store(false)

	info.Replied = true
	rec.OK = true
	rec.Text = strings.Join(segments, "\n")
	return info, rec
}

func (l *Loop) executeNamed(ctx context.Context, thinkingID string, decision planner.Decision) (LoopInfo, planner.ExecutionRecord) {
	var info LoopInfo
	rec := planner.ExecutionRecord{ActionType: string(decision.Type), Time: l.now()}

	handler, err := l.catalog.CreateHandler(string(decision.Type), actions.Payload{
		TenantID:   l.stream.TenantID,
		AgentID:    l.stream.AgentID,
		StreamID:   l.stream.StreamID,
		ThinkingID: thinkingID,
		Reasoning:  decision.Reasoning,
		Data:       decision.Data,
		Target:     decision.Target,
	})
	if err != nil {
		info.ActionErrors++
		rec.Error = err.Error()
		return info, rec
	}

	res, err := handler.Execute(ctx)
	if err != nil {
		info.ActionErrors++
		rec.Error = err.Error()
		l.logger.Warn("action failed", "action_type", decision.Type, "error", err)
		return info, rec
	}

	info.ActionsRun++
	rec.OK = res.OK
	rec.Text = res.Text
	return info, rec
}

// persistAction appends the audit record for one executed decision,
// including the action set that was available when it was chosen.
// Best-effort; the loop path never blocks on audit failures.
func (l *Loop) persistAction(ctx context.Context, result planner.Result, decision planner.Decision, rec planner.ExecutionRecord) {
	if l.actions == nil {
		return
	}
	data := decision.Data
	if len(result.Available) > 0 {
		data = make(map[string]any, len(decision.Data)+1)
		for k, v := range decision.Data {
			data[k] = v
		}
		data["available_actions"] = result.Available
	}
	record := &models.ActionRecord{
		TenantID:   l.stream.TenantID,
		AgentID:    l.stream.AgentID,
		StreamID:   l.stream.StreamID,
		ThinkingID: result.ThinkingID,
		ActionType: string(decision.Type),
		Reasoning:  decision.Reasoning,
		Data:       data,
		Done:       rec.OK,
		CreatedAt:  l.now(),
	}
	if err := l.actions.Append(ctx, record); err != nil {
		l.logger.Warn("action audit write failed", "error", err)
	}
}

// persistOutbound records the sent segments as outbound messages so later
// transcripts include the agent's side.
func (l *Loop) persistOutbound(ctx context.Context, segments []string) {
	if l.messages == nil {
		return
	}
	bot := l.config().Bot
	for _, segment := range segments {
		msg := &models.Message{
			StreamID: l.stream.StreamID,
			TenantID: l.stream.TenantID,
			Platform: l.stream.Platform,
			Sender: models.UserInfo{
				Platform: l.stream.Platform,
				UserID:   bot.Account,
				Nickname: bot.Name,
			},
			Direction: models.DirectionOutbound,
			Text:      segment,
			CreatedAt: l.now(),
		}
		if err := l.messages.Append(ctx, msg); err != nil {
			l.logger.Warn("outbound message write failed", "error", err)
		}
	}
}
