// Package runtime implements §4.6: the dialogue runtime loop that ties
// the compiled flow graphs, node executors, NLU provider, checkpointer,
// and response table into a single per-turn orchestrator.
//
// Grounded on the teacher's ProcessMessage/processUpdate pipeline
// (core/flow.go, core/bot.go): a single entry point that loads per-user
// state, lets a collaborator interpret the incoming message, applies the
// result against the state machine, and persists before replying. This
// package generalizes that pipeline from Telegram updates and the
// teacher's fixed prompt/state model into the engine-agnostic turn
// defined by §4.6, and additionally owns the parts the teacher's
// single-file flow manager left implicit: NodeID resolution through the
// compiled FlowGraph, `when`-guarded steps, and declared flow outputs.
package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmorenobl/soni/checkpoint"
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/flowmgr"
	"github.com/jmorenobl/soni/graph"
	"github.com/jmorenobl/soni/nlu"
	"github.com/jmorenobl/soni/nodeexec"
	"github.com/jmorenobl/soni/registry"
	"github.com/jmorenobl/soni/state"
	"github.com/jmorenobl/soni/telemetry"
)

// ResponseResolver is nodeexec.ResponseResolver, re-declared here so
// callers building an Engine don't need to import nodeexec directly.
type ResponseResolver = nodeexec.ResponseResolver

// Config bundles everything NewEngine needs to wire a runnable engine
// around a compiled document.
type Config struct {
	Doc         *dsl.Document
	Graphs      map[string]*graph.FlowGraph
	Actions     *registry.ActionRegistry
	Validators  *registry.ValidatorRegistry
	Normalizers *registry.NormalizerRegistry
	NormCache   *registry.NormalizationCache
	Understander nlu.Understander
	Generator   nlu.Generator
	Responses   ResponseResolver
	Checkpointer checkpoint.Checkpointer
	Metrics     *telemetry.Metrics
}

// Engine runs §4.6's turn loop for every session of a single loaded
// document. One Engine serves every user of one flow document; a host
// process running multiple documents builds one Engine per document.
type Engine struct {
	doc          *dsl.Document
	graphs       map[string]*graph.FlowGraph
	actions      *registry.ActionRegistry
	validators   *registry.ValidatorRegistry
	normalizers  *registry.NormalizerRegistry
	normCache    *registry.NormalizationCache
	understander nlu.Understander
	generator    nlu.Generator
	responses    ResponseResolver
	checkpointer checkpoint.Checkpointer
	metrics      *telemetry.Metrics
	policy       flowmgr.StackPolicy
	sessions     *sessionLocks
}

// NewEngine builds an Engine from a compiled document and its
// collaborators. Graphs must already be compiled via graph.Compile
// against the same registries passed here.
func NewEngine(cfg Config) *Engine {
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewMetrics(nil)
	}
	return &Engine{
		doc:          cfg.Doc,
		graphs:       cfg.Graphs,
		actions:      cfg.Actions,
		validators:   cfg.Validators,
		normalizers:  cfg.Normalizers,
		normCache:    cfg.NormCache,
		understander: cfg.Understander,
		generator:    cfg.Generator,
		responses:    cfg.Responses,
		checkpointer: cfg.Checkpointer,
		metrics:      cfg.Metrics,
		policy:       flowmgr.PolicyFromSettings(cfg.Doc.Settings),
		sessions:     newSessionLocks(),
	}
}

// ProcessResult is process_turn's return shape (§6.3): the messages
// produced this turn, in order, plus the session's resulting
// conversation_state tag.
type ProcessResult struct {
	Messages []state.OutboundMessage
	StateTag state.ConversationState
}

// ProcessTurn implements §6.3's `process_turn(user_id, message)`: the
// full six-step turn of §4.6 — session acquisition, routing, command
// application, graph execution, persistence, and response assembly.
func (e *Engine) ProcessTurn(ctx context.Context, userID, message string) (ProcessResult, error) {
	unlock := e.sessions.lock(userID)
	defer unlock()

	s, err := e.loadSession(ctx, userID)
	if err != nil {
		return ProcessResult{}, err
	}

	log := telemetry.NewEntry(userID)
	s.Messages = append(s.Messages, state.Message{Role: "user", Text: message})
	s.TurnCount++
	before := snapshotProgress(s)

	route := e.route(ctx, s, message)

	ec := &nodeexec.Context{
		Ctx:         ctx,
		Doc:         e.doc,
		Actions:     e.actions,
		Validators:  e.validators,
		Normalizers: e.normalizers,
		NormCache:   e.normCache,
		Generator:   e.generator,
		Responses:   e.responses,
		Settings:    e.doc.Settings,
		Log:         log,
	}

	s, err = applyCommands(s, route.Commands, e.doc, e.policy)
	if err != nil {
		s = e.forceState(s, state.StateError)
		return e.finish(ctx, s, err)
	}
	outbound := append([]state.OutboundMessage(nil), route.Outbound...)

	// A flow started (or already active) this turn but still sitting in
	// IDLE (the state a fresh command-application leaves it in — none of
	// CancelFlow/StartFlow/SetSlot touch conversation_state) enters
	// UNDERSTANDING before the graph steps: §4.3's only edge out of IDLE
	// besides ERROR. Resuming a pending collect/confirm needs no such
	// nudge — ResumeCollect/ResumeConfirm already set UNDERSTANDING
	// themselves as part of their own delta.
	if s.ActiveFlow() != nil && s.ConversationState == state.StateIdle {
		s = e.applyValidated(s, state.FlowDelta{ConversationState: state.StateUnderstanding})
	}

	s, resumed, err := e.resumePending(s, ec, route)
	if err != nil {
		return e.finish(ctx, s, err)
	}
	outbound = append(outbound, resumed...)

	// A pending collect that escalated to handoff leaves the session
	// COMPLETED; stepping stops there, as it does after a handoff inside
	// runToSuspension.
	if s.ConversationState == state.StateCompleted && before.convState != state.StateCompleted {
		s, _ = e.trackProgress(s, before)
		return e.finish(ctx, s, nil, outbound...)
	}

	stepped, err := e.runToSuspension(s, ec)
	outbound = append(outbound, stepped.outbound...)
	s = stepped.state
	for _, h := range stepped.handoffs {
		e.metrics.IncrementHandoff(h.Queue)
	}
	if err != nil {
		return e.finish(ctx, s, err)
	}

	var progressOutbound []state.OutboundMessage
	s, progressOutbound = e.trackProgress(s, before)
	outbound = append(outbound, progressOutbound...)

	return e.finish(ctx, s, nil, outbound...)
}

// progressSnapshot is the turn-over-turn fingerprint trackProgress diffs
// to decide whether a turn "made progress" (§6.1's
// max_turns_without_progress): a change in flow depth, current step,
// conversation_state, or any slot count counts, since all four are how a
// stuck conversation would otherwise show up (the NLU can't route to a
// new flow, a collect/confirm keeps re-suspending on the same step, or
// every reply is rejected as out_of_scope).
type progressSnapshot struct {
	stackDepth int
	step       string
	convState  state.ConversationState
	slotCount  int
}

func snapshotProgress(s *state.DialogueState) progressSnapshot {
	slots := len(s.SessionSlots)
	for _, m := range s.FlowSlots {
		slots += len(m)
	}
	return progressSnapshot{
		stackDepth: len(s.FlowStack),
		step:       s.CurrentStep,
		convState:  s.ConversationState,
		slotCount:  slots,
	}
}

// trackProgress updates NoProgressTurns against before's snapshot and, on
// reaching settings.conversation.max_turns_without_progress, escalates
// per settings.conversation.on_no_progress (§6.1, default "handoff").
func (e *Engine) trackProgress(s *state.DialogueState, before progressSnapshot) (*state.DialogueState, []state.OutboundMessage) {
	if snapshotProgress(s) != before {
		s.NoProgressTurns = 0
		return s, nil
	}
	s.NoProgressTurns++

	max := e.doc.Settings.Conversation.MaxTurnsWithoutProgress
	if max <= 0 || s.NoProgressTurns < max {
		return s, nil
	}
	return e.escalateNoProgress(s)
}

// escalateNoProgress implements the three settings.conversation.
// on_no_progress actions (§6.1): "handoff" ends the session with a
// handoff signal to the default queue, "fallback" starts
// conversation.fallback_flow (falling back to handoff if none is
// configured), and "retry" just resets the counter and lets the next
// turn try again.
func (e *Engine) escalateNoProgress(s *state.DialogueState) (*state.DialogueState, []state.OutboundMessage) {
	s.NoProgressTurns = 0

	switch e.doc.Settings.Conversation.OnNoProgress {
	case "retry":
		return s, nil

	case "fallback":
		if target := e.doc.Settings.Conversation.FallbackFlow; target != "" {
			if entry, ok := e.doc.EntryStep(target); ok {
				if next, _, err := flowmgr.Push(s, target, entry, e.policy); err == nil {
					return e.applyValidated(next, state.FlowDelta{ConversationState: state.StateUnderstanding}), nil
				}
			}
		}
		fallthrough

	default: // "handoff", and "fallback" with nothing configured to start
		// IDLE/ERROR have no direct edge into COMPLETED (§4.3's table); a
		// stuck session idling or erroring out still needs the same
		// UNDERSTANDING->...->COMPLETED hop applyValidated's routeToCompleted
		// already knows how to walk.
		if s.ConversationState == state.StateIdle || s.ConversationState == state.StateError {
			s = e.applyValidated(s, state.FlowDelta{ConversationState: state.StateUnderstanding})
		}
		delta := state.FlowDelta{ConversationState: state.StateCompleted}
		if s.ActiveFlow() != nil {
			delta.Cancel = true
		}
		s = e.applyValidated(s, delta)
		e.metrics.IncrementHandoff(e.doc.Settings.Handoff.DefaultQueue)
		summary := strings.Join(recentHistory(s, 10), "\n")
		return s, []state.OutboundMessage{{
			Text: "I'm having trouble moving this conversation forward, so I'm connecting you with a person. " + summary,
			Kind: "handoff",
		}}
	}
}

func (e *Engine) finish(ctx context.Context, s *state.DialogueState, err error, outbound ...state.OutboundMessage) (ProcessResult, error) {
	if saveErr := e.saveSession(ctx, s); saveErr != nil && err == nil {
		err = saveErr
	}
	e.metrics.SetActiveSessions(e.sessions.count())
	if depth := flowmgr.Depth(s); depth > 0 {
		e.metrics.ObserveFlowDepth(s.ActiveFlow().FlowName, depth)
	}
	return ProcessResult{Messages: outbound, StateTag: s.ConversationState}, err
}

func (e *Engine) forceState(s *state.DialogueState, cs state.ConversationState) *state.DialogueState {
	return state.Apply(s, state.FlowDelta{ConversationState: cs})
}

// applyValidated applies delta, then checks any conversation_state change
// it carries against state.Validate (§4.3) — Apply itself performs no
// transition validation by design (state/delta.go), leaving that to the
// orchestrator so a rejected transition can be reported with full turn
// context. An invalid transition still lands delta's other effects (slot
// updates, outbound messages); only the resulting conversation_state is
// overridden to ERROR instead of the delta's invalid target.
//
// A target of COMPLETED gets one exception: `handoff` (§4.5) and
// collect's max-attempts-exceeded fallback (§4.5's collect on_invalid
// default) both land on COMPLETED directly from whatever state the step
// was dispatched in — UNDERSTANDING for an ordinary sequential `handoff`
// step, WAITING_FOR_SLOT for a collect resume escalating to handoff — and
// neither is a direct table edge into COMPLETED. Per §8's own worked
// example ("two slot_invalid responses, then handoff; conversation_state
// = COMPLETED"), this is intentional: handing off is conceptually the
// terminal action the table already names EXECUTING_ACTION/CONFIRMING as
// the gateway to COMPLETED, so reaching it takes the same route any other
// action does, just collapsed into the one turn that triggers it.
func (e *Engine) applyValidated(s *state.DialogueState, delta state.FlowDelta) *state.DialogueState {
	from := s.ConversationState
	to := delta.ConversationState
	if to == "" || to == from {
		return state.Apply(s, delta)
	}
	if err := state.Validate(from, to); err == nil {
		return state.Apply(s, delta)
	}

	// delta's other effects (slot updates, task changes, outbound) still
	// land even when its conversation_state target turns out illegal;
	// apply everything except the state change first, so routeToCompleted
	// below walks its hops from `from`, not from a conversation_state
	// state.Apply would otherwise have already overwritten to `to`.
	effectsOnly := delta
	effectsOnly.ConversationState = ""
	effects := state.Apply(s, effectsOnly)

	if to == state.StateCompleted {
		if routed, ok := routeToCompleted(effects); ok {
			return routed
		}
	}
	e.metrics.IncrementStepFailures(stateFlowName(effects), "invalid_state_transition")
	return state.Apply(effects, state.FlowDelta{ConversationState: state.StateError})
}

// routeToCompleted walks the shortest table-legal hop sequence from s's
// current conversation_state into COMPLETED, applying only
// conversation_state (no other delta effects — those already landed via
// the caller's own state.Apply). Returns ok=false if no such path exists
// from the current state, in which case the caller's ordinary
// invalid-transition handling applies.
func routeToCompleted(s *state.DialogueState) (*state.DialogueState, bool) {
	var hops []state.ConversationState
	switch s.ConversationState {
	case state.StateUnderstanding, state.StateValidatingSlot:
		hops = []state.ConversationState{state.StateExecutingAction, state.StateCompleted}
	case state.StateWaitingForSlot:
		hops = []state.ConversationState{state.StateValidatingSlot, state.StateExecutingAction, state.StateCompleted}
	default:
		return nil, false
	}
	cur := s
	for _, hop := range hops {
		if state.Validate(cur.ConversationState, hop) != nil {
			return nil, false
		}
		cur = state.Apply(cur, state.FlowDelta{ConversationState: hop})
	}
	return cur, true
}

func stateFlowName(s *state.DialogueState) string {
	if top := s.ActiveFlow(); top != nil {
		return top.FlowName
	}
	return ""
}

// resumePending consumes at most one of route.CollectReply /
// route.ConfirmReply — the router only ever produces one, since
// WAITING_FOR_SLOT and CONFIRMING are mutually exclusive conversation
// states — and feeds it to the matching node executor's resume function,
// then resolves the result the same way the main step loop would.
func (e *Engine) resumePending(s *state.DialogueState, ec *nodeexec.Context, route routeResult) (*state.DialogueState, []state.OutboundMessage, error) {
	top := s.ActiveFlow()
	if top == nil {
		return s, nil, nil
	}
	g, ok := e.graphs[top.FlowName]
	if !ok {
		return s, nil, fmt.Errorf("runtime: no compiled graph for flow %q", top.FlowName)
	}

	switch task := s.PendingTask.(type) {
	case *state.CollectTask:
		if route.CollectReply == nil {
			return s, nil, nil
		}
		step, ok := g.NodeByID(graph.NodeID(task.StepID))
		if !ok {
			return s, nil, fmt.Errorf("runtime: collect step %q not found in flow %q", task.StepID, top.FlowName)
		}
		res := nodeexec.ResumeCollect(step.Step, s, ec, task, route.CollectReply.Candidate, route.CollectReply.TimedOut)
		return e.resolve(s, ec, g, res)
	case *state.ConfirmTask:
		if route.ConfirmReply == nil {
			return s, nil, nil
		}
		step, ok := g.NodeByID(graph.NodeID(task.StepID))
		if !ok {
			return s, nil, fmt.Errorf("runtime: confirm step %q not found in flow %q", task.StepID, top.FlowName)
		}
		res := nodeexec.ResumeConfirm(step.Step, s, ec, *route.ConfirmReply)
		return e.resolve(s, ec, g, res)
	}
	return s, nil, nil
}

type stepOutcome struct {
	state    *state.DialogueState
	outbound []state.OutboundMessage
	handoffs []nodeexec.HandoffSignal
}

// runToSuspension steps the active flow until it suspends awaiting the
// user, completes entirely (empty stack), or fails — §4.6's graph
// execution phase.
func (e *Engine) runToSuspension(s *state.DialogueState, ec *nodeexec.Context) (stepOutcome, error) {
	out := stepOutcome{state: s}
	for {
		top := s.ActiveFlow()
		if top == nil {
			return out, nil
		}
		g, ok := e.graphs[top.FlowName]
		if !ok {
			return out, fmt.Errorf("runtime: no compiled graph for flow %q", top.FlowName)
		}
		node, ok := g.NodeByID(graph.NodeID(top.CurrentStep))
		if !ok {
			return out, fmt.Errorf("runtime: unknown step %q in flow %q", top.CurrentStep, top.FlowName)
		}
		ec.FlowOnError = e.doc.Flows[top.FlowName].OnError

		maxSteps := e.doc.Settings.Runtime.MaxStepExecutions
		if count := top.IncrementStep(top.CurrentStep); maxSteps > 0 && count > maxSteps {
			e.metrics.IncrementStepFailures(top.FlowName, string(ferrors.KindLoopDetected))
			s = e.applyValidated(s, state.FlowDelta{ConversationState: state.StateError})
			out.state = s
			return out, ferrors.NewStepError(ferrors.KindLoopDetected, "step "+top.CurrentStep+" exceeded max_step_executions")
		}

		if node.Step.When != "" && !e.whenTrue(node.Step.When, s) {
			resolved := g.ResolveTarget(node.ID, "")
			next, stop, err := e.advanceTo(s, g, resolved)
			s = next
			out.state = s
			if err != nil || stop {
				return out, err
			}
			continue
		}

		res := nodeexec.Dispatch(node.Step, s, ec)
		var outbound []state.OutboundMessage
		var err error
		s, outbound, err = e.resolve(s, ec, g, res)
		out.state = s
		out.outbound = append(out.outbound, outbound...)
		if err != nil {
			return out, err
		}
		if res.Handoff != nil {
			// A handoff — whether from an explicit `handoff` step or a
			// collect's default on_invalid escalation — always ends the
			// turn's stepping (nodeexec.Result.Handoff's own doc comment;
			// §4.5 "there is no jump_to to honor afterward"), regardless of
			// which Outcome carried it. Without this, a handoff triggered
			// mid-flow (e.g. collect is not the flow's last step) would fall
			// through to OutcomeDelta's ordinary sequential-successor
			// resolution and keep executing steps after the session has
			// already gone COMPLETED.
			out.handoffs = append(out.handoffs, *res.Handoff)
			return out, nil
		}
		if res.Outcome == nodeexec.OutcomeFail || res.Fail != nil {
			return out, res.Fail
		}
		if res.Outcome == nodeexec.OutcomeSuspend && res.Suspend != nodeexec.SuspendFlowPushed {
			return out, nil
		}
	}
}

func (e *Engine) whenTrue(raw string, s *state.DialogueState) bool {
	cond, err := expr.Compile(raw)
	if err != nil {
		return true // an unparseable guard never blocks; compile-time validation should have caught it
	}
	return cond.Condition(nodeexec.EnvFor(s, nil))
}

// resolve applies a node executor's Result: merging any delta (minus its
// raw StepAdvance), resolving that raw target through the flow graph,
// and reacting to the three reserved outcomes (end, error, cancel_flow)
// as flow transitions rather than plain step advances.
func (e *Engine) resolve(s *state.DialogueState, ec *nodeexec.Context, g *graph.FlowGraph, res nodeexec.Result) (*state.DialogueState, []state.OutboundMessage, error) {
	switch res.Outcome {
	case nodeexec.OutcomeFail:
		s = e.applyValidated(s, state.FlowDelta{ConversationState: state.StateError})
		return s, nil, nil
	case nodeexec.OutcomeSuspend:
		s = e.applyValidated(s, res.Delta)
		return s, res.Delta.Outbound, nil
	case nodeexec.OutcomeDelta:
		top := s.ActiveFlow()
		var fromID graph.NodeID
		if top != nil {
			fromID = graph.NodeID(top.CurrentStep)
		}
		delta := res.Delta
		raw := delta.StepAdvance
		delta.StepAdvance = ""
		if res.Fail != nil {
			// A failure with no on_error target ends the flow with ERROR.
			raw = "error"
		}
		s = e.applyValidated(s, delta)

		resolved := g.ResolveTarget(fromID, raw)
		s, _, err := e.advanceTo(s, g, resolved)
		return s, delta.Outbound, err
	}
	return s, nil, nil
}

// advanceTo reacts to a resolved NodeID: the reserved END/ERROR/
// cancel_flow sentinels become flow transitions, anything else becomes
// an ordinary step advance on the active frame. stop reports whether the
// turn should stop advancing this flow (reached an unresolved sink with
// no parent to fall back into, or a hard error).
func (e *Engine) advanceTo(s *state.DialogueState, g *graph.FlowGraph, resolved graph.NodeID) (next *state.DialogueState, stop bool, err error) {
	switch {
	case graph.IsEnd(resolved):
		return e.completeFlow(s), false, nil
	case graph.IsError(resolved):
		s = e.applyValidated(s, state.FlowDelta{Cancel: true, ConversationState: state.StateError})
		return s, true, nil
	case graph.IsCancelFlow(resolved):
		nextState := state.StateIdle
		if len(s.FlowStack) > 1 {
			nextState = state.StateUnderstanding
		}
		s = e.applyValidated(s, state.FlowDelta{Cancel: true, ConversationState: nextState})
		return s, false, nil
	default:
		s = state.Apply(s, state.FlowDelta{StepAdvance: string(resolved)})
		return s, false, nil
	}
}

// completeFlow implements the `end` transition: the active frame's
// declared FlowDef.Outputs are read from its own slots, renamed through
// any call_flow output mapping stashed in state.Metadata, written onto
// the frame via SetTopOutputs, and the frame is popped. If a parent
// frame exists, it resumes at the call_flow step's own jump target
// (recovered from the matching call_flow_resume metadata key);
// otherwise the whole conversation completes.
func (e *Engine) completeFlow(s *state.DialogueState) *state.DialogueState {
	top := s.ActiveFlow()
	if top == nil {
		return s
	}

	outputs := map[string]any{}
	if flowDef, ok := e.doc.Flows[top.FlowName]; ok {
		mapping := stringMap(s.Metadata[nodeexec.CallFlowOutputsKey(top.FlowID)])
		flowSlots := s.FlowSlots[top.FlowID]
		for _, name := range flowDef.Outputs {
			v, ok := flowSlots[name]
			if !ok {
				continue
			}
			target := name
			if renamed, ok := mapping[name]; ok && renamed != "" {
				target = renamed
			}
			outputs[target] = v
		}
	}

	metadataClear := []string{nodeexec.CallFlowOutputsKey(top.FlowID)}
	var parent *state.FlowContext
	if n := len(s.FlowStack); n >= 2 {
		parent = &s.FlowStack[n-2]
	}

	var resumeTarget string
	var hasResume bool
	if parent != nil {
		if raw, ok := s.Metadata[nodeexec.CallFlowResumeKey(parent.FlowID)]; ok {
			resumeTarget, hasResume = raw.(string)
		}
		metadataClear = append(metadataClear, nodeexec.CallFlowResumeKey(parent.FlowID))
	}

	// §4.3 only allows ExecutingAction/Confirming to transition directly
	// into COMPLETED; every other terminal `end` (e.g. a flow ending on a
	// `say` step, reached from UNDERSTANDING) goes straight to IDLE
	// instead of detouring through a COMPLETED hop that the table would
	// reject.
	var nextConvState state.ConversationState
	switch {
	case parent != nil:
		nextConvState = state.StateUnderstanding
	case s.ConversationState == state.StateExecutingAction || s.ConversationState == state.StateConfirming:
		nextConvState = state.StateCompleted
	default:
		nextConvState = state.StateIdle
	}

	s = e.applyValidated(s, state.FlowDelta{
		SetTopOutputs:     outputs,
		PopFlow:           true,
		MetadataClear:     metadataClear,
		ConversationState: nextConvState,
	})

	switch {
	case parent != nil:
		if newTop := s.ActiveFlow(); newTop != nil && hasResume {
			if g, ok := e.graphs[newTop.FlowName]; ok {
				resolved := g.ResolveTarget(graph.NodeID(newTop.CurrentStep), resumeTarget)
				s = state.Apply(s, state.FlowDelta{StepAdvance: string(resolved)})
			}
		}
	case nextConvState == state.StateCompleted:
		s = e.applyValidated(s, state.FlowDelta{ConversationState: state.StateIdle})
	}
	return s
}

func stringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, vv := range m {
			if s, ok := vv.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
