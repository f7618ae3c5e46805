package state

// OutboundMessage is one message a node executor wants sent to the user. The
// runtime accumulates these across a turn and returns them in order (§5,
// "Outbound messages from a single turn are delivered in the order
// produced").
type OutboundMessage struct {
	Text     string
	Kind     string         // "say" | "prompt" | "handoff" | "error"
	Metadata map[string]any // transport rendering hints: image spec, keyboard spec, language
}

// SlotUpdate targets either the active flow frame's slots or the session
// scope (`session.*` in the DSL).
type SlotUpdate struct {
	Session bool
	FlowID  string // ignored when Session is true; required otherwise
	Name    string
	Value   any
}

// FlowDelta is an immutable description of a state mutation produced by a
// node executor (§3). Node executors never mutate DialogueState directly;
// the runtime merges the delta via Apply.
type FlowDelta struct {
	SlotUpdates []SlotUpdate

	// ClearSlots removes slot values, applied before SlotUpdates — used when
	// a step must discard a previously collected value before re-collecting
	// it (collect's `force: true`, §4.5).
	ClearSlots []SlotUpdate

	PushFlow     *FlowContext // non-nil to push a new frame
	PopFlow      bool         // pop the top frame
	Cancel       bool         // pop without propagating declared outputs (FlowManager.Cancel semantics)
	CancelOldest bool         // drop the bottom-most frame (flow stack on_limit_reached: cancel_oldest), applied before PushFlow

	// SetTopOutputs merges into the current top frame's Outputs before any
	// Pop/Cancel in the same delta is applied. The runtime sets this when a
	// flow reaches `end`, populating the declared FlowDef.Outputs (optionally
	// renamed via a call_flow's output mapping) so the parent-propagation
	// step in the Pop branch below has something to read.
	SetTopOutputs map[string]any

	StepAdvance string // non-empty sets the top frame's (and state's) current_step

	TaskSet   PendingTask // non-nil sets PendingTask; explicit ClearTask distinguishes "no change" from "clear"
	ClearTask bool

	ConversationState ConversationState // empty means "no change"

	Outbound []OutboundMessage

	MessageAppend *Message // appended to the transcript, if set

	MetadataSet   map[string]any // merged into state.Metadata
	MetadataClear []string       // keys removed from state.Metadata, applied before MetadataSet
}

// Empty reports whether this delta would be a no-op if applied — used by the
// round-trip property `apply(s, empty_delta) = s`.
func (d FlowDelta) Empty() bool {
	return len(d.SlotUpdates) == 0 && len(d.ClearSlots) == 0 && d.PushFlow == nil && !d.PopFlow && !d.Cancel && !d.CancelOldest &&
		len(d.SetTopOutputs) == 0 &&
		d.StepAdvance == "" && d.TaskSet == nil && !d.ClearTask && d.ConversationState == "" &&
		len(d.Outbound) == 0 && d.MessageAppend == nil && len(d.MetadataSet) == 0 && len(d.MetadataClear) == 0
}

// Apply merges delta into s, returning a new DialogueState. s is never
// mutated. The caller is responsible for invoking state.Validate on any
// ConversationState change before calling Apply if it wants to reject the
// turn instead of silently coercing to ERROR; Apply itself performs no
// transition validation (that is the runtime orchestrator's job, per §4.3,
// so that rejected transitions can be reported with full turn context).
func Apply(s *DialogueState, d FlowDelta) *DialogueState {
	next := s.Clone()

	if d.CancelOldest && len(next.FlowStack) > 0 {
		oldest := next.FlowStack[0]
		next.FlowStack = next.FlowStack[1:]
		delete(next.FlowSlots, oldest.FlowID)
	}

	for _, u := range d.ClearSlots {
		if u.Session {
			delete(next.SessionSlots, u.Name)
			continue
		}
		flowID := u.FlowID
		if flowID == "" {
			if top := next.ActiveFlow(); top != nil {
				flowID = top.FlowID
			}
		}
		if flowID == "" {
			continue
		}
		delete(next.FlowSlots[flowID], u.Name)
	}

	for _, u := range d.SlotUpdates {
		if u.Session {
			next.SessionSlots[u.Name] = u.Value
			continue
		}
		flowID := u.FlowID
		if flowID == "" {
			if top := next.ActiveFlow(); top != nil {
				flowID = top.FlowID
			}
		}
		if flowID == "" {
			continue
		}
		if next.FlowSlots[flowID] == nil {
			next.FlowSlots[flowID] = make(map[string]any)
		}
		next.FlowSlots[flowID][u.Name] = u.Value
	}

	if d.PushFlow != nil {
		next.FlowStack = append(next.FlowStack, *d.PushFlow)
		next.CurrentStep = d.PushFlow.CurrentStep
	}

	if len(d.SetTopOutputs) > 0 {
		if n := len(next.FlowStack); n > 0 {
			top := next.FlowStack[n-1]
			outputs := make(map[string]any, len(top.Outputs)+len(d.SetTopOutputs))
			for k, v := range top.Outputs {
				outputs[k] = v
			}
			for k, v := range d.SetTopOutputs {
				outputs[k] = v
			}
			top.Outputs = outputs
			next.FlowStack[n-1] = top
		}
	}

	if d.PopFlow || d.Cancel {
		if n := len(next.FlowStack); n > 0 {
			popped := next.FlowStack[n-1]
			next.FlowStack = next.FlowStack[:n-1]
			delete(next.FlowSlots, popped.FlowID)
			if d.PopFlow && !d.Cancel {
				if parent := next.ActiveFlow(); parent != nil {
					for name, val := range popped.Outputs {
						if next.FlowSlots[parent.FlowID] == nil {
							next.FlowSlots[parent.FlowID] = make(map[string]any)
						}
						next.FlowSlots[parent.FlowID][name] = val
					}
				}
			}
			if parent := next.ActiveFlow(); parent != nil {
				next.CurrentStep = parent.CurrentStep
			} else {
				next.CurrentStep = ""
			}
		}
	}

	if d.StepAdvance != "" {
		next.CurrentStep = d.StepAdvance
		if top := next.ActiveFlow(); top != nil {
			top.CurrentStep = d.StepAdvance
			top.StepHistory = append(top.StepHistory, d.StepAdvance)
		}
	}

	if d.ClearTask {
		next.PendingTask = nil
	} else if d.TaskSet != nil {
		next.PendingTask = d.TaskSet
	}

	if d.ConversationState != "" {
		next.ConversationState = d.ConversationState
	}

	if d.MessageAppend != nil {
		next.Messages = append(next.Messages, *d.MessageAppend)
	}

	for _, k := range d.MetadataClear {
		delete(next.Metadata, k)
	}
	for k, v := range d.MetadataSet {
		next.Metadata[k] = v
	}

	return next
}
