package nodeexec

import (
	"context"
	"time"

	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/state"
)

// ExecuteAction implements §4.5's `action(call, map_outputs, timeout,
// retry)`: resolve through the Action Registry, inject declared inputs,
// apply the retry policy, map outputs on success, or set error
// variables and route to on_error on terminal failure.
//
// Unlike the other executors, ExecuteAction is not instantaneous — it
// blocks the calling goroutine across the retry loop's per-attempt
// timeouts and delays. That is intentional and matches §5's "every node
// is a potential await point" model: the runtime treats this call itself
// as the suspension point, rather than splitting it into a separate
// suspend/resume pair the way collect/confirm need to (those wait on
// user input, which truly spans turns; action only waits on I/O within
// one turn).
func ExecuteAction(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	cfg := step.Action
	handler, ok := ec.Actions.Resolve(cfg.Call)
	if !ok {
		return failResult(ferrors.NewStepError(ferrors.KindUnknownRuntime, "action "+cfg.Call+" not registered"))
	}

	actionDef, hasDef := ec.Doc.Actions[cfg.Call]
	inputs, err := gatherActionInputs(s, actionDef, hasDef)
	if err != nil {
		return failResult(err)
	}

	maxAttempts := 1
	var delay time.Duration
	backoff := "fixed"
	var retryOn []string
	if cfg.Retry != nil {
		maxAttempts = cfg.Retry.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		delay, _ = time.ParseDuration(cfg.Retry.Delay)
		backoff = cfg.Retry.Backoff
		retryOn = cfg.Retry.RetryOn
	}

	var timeout time.Duration
	if cfg.Timeout != "" {
		timeout, _ = time.ParseDuration(cfg.Timeout)
	}

	var lastErr error
	var lastKind string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx := ec.Ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ec.Ctx, timeout)
		}
		out, err := handler(callCtx, inputs)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return applyActionOutputs(step, out)
		}

		lastErr = err
		lastKind = classifyActionError(callCtx, err)
		if attempt+1 < maxAttempts && retryableKind(lastKind, retryOn) {
			if delay > 0 {
				select {
				case <-time.After(backoffDelay(attempt, delay, backoff)):
				case <-ec.Ctx.Done():
					return actionFailureResult(step, s, ec, "timeout", ec.Ctx.Err())
				}
			}
			continue
		}
		break
	}

	return actionFailureResult(step, s, ec, lastKind, lastErr)
}

func gatherActionInputs(s *state.DialogueState, def dsl.ActionDef, hasDef bool) (map[string]any, *ferrors.StepError) {
	inputs := map[string]any{}
	top := s.ActiveFlow()
	var slots map[string]any
	if top != nil {
		slots = s.FlowSlots[top.FlowID]
	}
	if !hasDef {
		for k, v := range slots {
			inputs[k] = v
		}
		return inputs, nil
	}
	for _, name := range def.Inputs {
		v, ok := slots[name]
		if !ok {
			return nil, ferrors.NewStepError(ferrors.KindMissingInput, "missing required input "+name)
		}
		inputs[name] = v
	}
	return inputs, nil
}

func applyActionOutputs(step dsl.StepDef, out map[string]any) Result {
	cfg := step.Action
	updates := make([]state.SlotUpdate, 0, len(out))
	for outName, val := range out {
		slotName := outName
		if mapped, ok := cfg.MapOutputs[outName]; ok {
			slotName = mapped
		}
		updates = append(updates, state.SlotUpdate{Name: slotName, Value: val})
	}
	return deltaResult(state.FlowDelta{SlotUpdates: updates, StepAdvance: step.JumpTo})
}

func classifyActionError(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	if se, ok := err.(*ferrors.StepError); ok {
		return string(se.Kind)
	}
	return "connection"
}

func actionFailureResult(step dsl.StepDef, s *state.DialogueState, ec *Context, kind string, cause error) Result {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	vars := errorVars(kind, msg, "", map[string]any{})
	delta := state.FlowDelta{SlotUpdates: slotUpdatesFromMap(s, vars)}

	target := step.Action.OnError
	if target == "" {
		target = ec.FlowOnError
	}
	if target != "" {
		delta.StepAdvance = target
		return deltaResult(delta)
	}
	delta.ConversationState = state.StateError
	return Result{Outcome: OutcomeDelta, Delta: delta, Fail: ferrors.NewStepError(ferrors.Kind(kind), msg)}
}
