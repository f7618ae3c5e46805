package state

// FlowContext is one stack frame: a single live instance of a flow.
//
// FlowID is generated fresh every time a flow is pushed (see flowmgr.Push)
// and never reused, even if the same flow is started again for the same
// user; FlowName repeats across frames but FlowID never does (§3).
type FlowContext struct {
	FlowID       string
	FlowName     string
	CurrentStep  string
	StepHistory  []string
	StepCounters map[string]int // per-step execution counter, for loop protection
	Inputs       map[string]any
	Outputs      map[string]any
}

// NewFlowContext returns a fresh frame for flowName at the given id,
// positioned at entryStep.
func NewFlowContext(flowID, flowName, entryStep string) FlowContext {
	return FlowContext{
		FlowID:       flowID,
		FlowName:     flowName,
		CurrentStep:  entryStep,
		StepHistory:  []string{entryStep},
		StepCounters: make(map[string]int),
		Inputs:       make(map[string]any),
		Outputs:      make(map[string]any),
	}
}

// IncrementStep bumps the per-frame execution counter for stepID and returns
// the new count. The runtime compares this against
// settings.runtime.max_step_executions to detect loops (§4.5).
func (f *FlowContext) IncrementStep(stepID string) int {
	if f.StepCounters == nil {
		f.StepCounters = make(map[string]int)
	}
	f.StepCounters[stepID]++
	return f.StepCounters[stepID]
}
