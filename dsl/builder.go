package dsl

import (
	"fmt"

	"github.com/jmorenobl/soni/ferrors"
)

// FlowBuilder constructs a FlowDef programmatically, as an alternative to
// loading one from a document. Useful for tests and for embedding flows
// directly in Go code. Adapted from the teacher's fluent NewFlow/Step/Build
// API, generalized from the Step-Prompt-Process shape to the nine DSL step
// kinds of §4.5.
type FlowBuilder struct {
	flow FlowDef
	seen map[string]bool
}

// NewFlow starts building a flow named name.
func NewFlow(name string) *FlowBuilder {
	return &FlowBuilder{
		flow: FlowDef{Name: name},
		seen: make(map[string]bool),
	}
}

// Describe sets the flow's description.
func (b *FlowBuilder) Describe(desc string) *FlowBuilder {
	b.flow.Description = desc
	return b
}

// Trigger adds example trigger phrases for NLU training.
func (b *FlowBuilder) Trigger(phrases ...string) *FlowBuilder {
	b.flow.Triggers = append(b.flow.Triggers, phrases...)
	return b
}

// OnError sets the flow-level on_error target.
func (b *FlowBuilder) OnError(target string) *FlowBuilder {
	b.flow.OnError = target
	return b
}

// Inputs declares the flow's input slot names.
func (b *FlowBuilder) Inputs(names ...string) *FlowBuilder {
	b.flow.Inputs = append(b.flow.Inputs, names...)
	return b
}

// Outputs declares the flow's output slot names.
func (b *FlowBuilder) Outputs(names ...string) *FlowBuilder {
	b.flow.Outputs = append(b.flow.Outputs, names...)
	return b
}

// Step appends a step to the flow. Step ids must be unique within the flow
// and may not be a reserved keyword (§6.4); violations panic at build time,
// matching the teacher's fail-fast fluent-builder idiom.
func (b *FlowBuilder) Step(step StepDef) *FlowBuilder {
	if step.ID == "" {
		panic(fmt.Sprintf("flow %q: step must have an id", b.flow.Name))
	}
	if Reserved[step.ID] {
		panic(fmt.Sprintf("flow %q: step id %q is reserved", b.flow.Name, step.ID))
	}
	if b.seen[step.ID] {
		panic(fmt.Sprintf("flow %q: duplicate step id %q", b.flow.Name, step.ID))
	}
	b.seen[step.ID] = true
	b.flow.Steps = append(b.flow.Steps, step)
	return b
}

// Build validates and returns the finished FlowDef.
func (b *FlowBuilder) Build() (FlowDef, error) {
	if err := b.flow.Validate(); err != nil {
		return FlowDef{}, &ferrors.CompileError{Kind: ferrors.KindSchemaViolation, FlowName: b.flow.Name, Message: err.Error()}
	}
	return b.flow, nil
}

// MustBuild builds the flow and panics on error, for use in test fixtures.
func (b *FlowBuilder) MustBuild() FlowDef {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

// Helper constructors for each step kind, mirroring the teacher's
// NextStep()/GoToStep()/RetryWithPrompt() ProcessResult helpers.

// Collect builds a `collect` step.
func Collect(id, slot string) StepDef {
	return StepDef{ID: id, Type: StepCollect, Collect: &CollectStep{Slot: slot}}
}

// Action builds an `action` step.
func Action(id, call string) StepDef {
	return StepDef{ID: id, Type: StepAction, Action: &ActionStep{Call: call, MapOutputs: map[string]string{}}}
}

// Branch builds a `branch` step.
func Branch(id string, cases ...BranchCase) StepDef {
	return StepDef{ID: id, Type: StepBranch, Branch: &BranchStep{Cases: cases}}
}

// Say builds a `say` step with a literal/template message.
func Say(id, message string) StepDef {
	return StepDef{ID: id, Type: StepSay, Say: &SayStep{Message: message}}
}

// Confirm builds a `confirm` step.
func Confirm(id, message string) StepDef {
	return StepDef{ID: id, Type: StepConfirm, Confirm: &ConfirmStep{Message: message}}
}

// Generate builds a `generate` step.
func Generate(id, instruction string) StepDef {
	return StepDef{ID: id, Type: StepGenerate, Generate: &GenerateStep{Instruction: instruction}}
}

// CallFlow builds a `call_flow` step.
func CallFlow(id, flow string) StepDef {
	return StepDef{ID: id, Type: StepCallFlow, CallFlow: &CallFlowStep{Flow: flow, Inputs: map[string]string{}, Outputs: map[string]string{}}}
}

// Set builds a `set` step.
func Set(id string, values map[string]string) StepDef {
	return StepDef{ID: id, Type: StepSet, Set: &SetStep{Values: values}}
}

// Handoff builds a `handoff` step.
func Handoff(id, queue string) StepDef {
	return StepDef{ID: id, Type: StepHandoff, Handoff: &HandoffStep{Queue: queue}}
}
