package graph

import (
	"fmt"

	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/registry"
)

// Warning is a non-fatal compile-time finding (§4.2's branch-exhaustiveness
// rule: reported, not rejected).
type Warning struct {
	FlowName string
	StepID   string
	Message  string
}

// Registries bundles the three name-addressed collaborator tables the
// compiler resolves action/call_flow/validator/normalizer references
// against (§4.2's last validation rule).
type Registries struct {
	Actions     *registry.ActionRegistry
	Validators  *registry.ValidatorRegistry
	Normalizers *registry.NormalizerRegistry
}

// Compile lowers and links every flow in doc into an executable
// FlowGraph, validating each as it goes. On success it returns every
// compiled graph plus any non-fatal warnings. The first error aborts
// compilation of the whole document (matching the teacher's fail-fast
// startup registration); no graphs are returned in that case.
func Compile(doc *dsl.Document, regs Registries) (map[string]*FlowGraph, []Warning, error) {
	graphs := make(map[string]*FlowGraph, len(doc.Flows))
	var warnings []Warning

	for name, flow := range doc.Flows {
		if err := flow.Validate(); err != nil {
			return nil, nil, &ferrors.CompileError{Kind: ferrors.KindDuplicateStepID, FlowName: name, Message: err.Error()}
		}
		g, err := lower(name, flow)
		if err != nil {
			return nil, nil, err
		}
		link(g, flow)
		if err := resolveRegistries(g, flow, doc, regs); err != nil {
			return nil, nil, err
		}
		flowWarnings, err := validate(g, flow)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, flowWarnings...)
		graphs[name] = g
	}
	return graphs, warnings, nil
}

// lower is the compiler's first pass (§4.2.1): translate each StepDef
// into a uniform Node, plus the synthetic ENTRY/END/ERROR nodes. No
// cross-references are resolved yet.
func lower(flowName string, flow dsl.FlowDef) (*FlowGraph, error) {
	g := &FlowGraph{FlowName: flowName, Nodes: make(map[NodeID]*Node, len(flow.Steps)+3), Entry: entryID}
	g.Nodes[entryID] = &Node{ID: entryID}
	g.Nodes[endID] = &Node{ID: endID}
	g.Nodes[errorID] = &Node{ID: errorID}

	for _, step := range flow.Steps {
		id := NodeID(step.ID)
		if _, exists := g.Nodes[id]; exists {
			return nil, &ferrors.CompileError{Kind: ferrors.KindDuplicateStepID, FlowName: flowName, StepID: step.ID, Message: "duplicate step id"}
		}
		g.Nodes[id] = &Node{ID: id, Kind: step.Type, Step: step, Blocking: isBlocking(step.Type)}
	}
	return g, nil
}

// link is the compiler's second pass (§4.2.2): compute each node's
// default sequential successor and resolve ENTRY's target to the first
// declared step (or END for an empty flow).
func link(g *FlowGraph, flow dsl.FlowDef) {
	ids := make([]NodeID, len(flow.Steps))
	for i, s := range flow.Steps {
		ids[i] = NodeID(s.ID)
	}

	for i, id := range ids {
		seq := endID
		if i+1 < len(ids) {
			seq = ids[i+1]
		}
		n := g.Nodes[id]
		if n.Step.JumpTo != "" {
			n.Next = resolveJumpTarget(n.Step.JumpTo, seq)
		} else {
			n.Next = seq
		}
	}

	if len(ids) > 0 {
		g.Nodes[entryID].Next = ids[0]
	} else {
		g.Nodes[entryID].Next = endID
	}
}

func resolveJumpTarget(target string, sequentialNext NodeID) NodeID {
	switch target {
	case "end":
		return endID
	case "error":
		return errorID
	case "continue":
		return sequentialNext
	case "cancel_flow":
		return NodeID("cancel_flow")
	default:
		return NodeID(target)
	}
}

// resolveRegistries enforces §4.2's last validation rule: action,
// call_flow, validator, and normalizer references must resolve at
// compile time.
func resolveRegistries(g *FlowGraph, flow dsl.FlowDef, doc *dsl.Document, regs Registries) error {
	for _, step := range flow.Steps {
		switch step.Type {
		case dsl.StepAction:
			if _, ok := regs.Actions.Resolve(step.Action.Call); !ok {
				return &ferrors.CompileError{Kind: ferrors.KindUnknownAction, FlowName: flow.Name, StepID: step.ID, Message: fmt.Sprintf("unknown action %q", step.Action.Call)}
			}
		case dsl.StepCallFlow:
			if _, ok := doc.Flows[step.CallFlow.Flow]; !ok {
				return &ferrors.CompileError{Kind: ferrors.KindUnknownStepTarget, FlowName: flow.Name, StepID: step.ID, Message: fmt.Sprintf("unknown flow %q", step.CallFlow.Flow)}
			}
		case dsl.StepCollect:
			if err := resolveSlotCollaborators(flow, step, doc, regs); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveSlotCollaborators(flow dsl.FlowDef, step dsl.StepDef, doc *dsl.Document, regs Registries) error {
	slot, ok := doc.Slots[step.Collect.Slot]
	if !ok {
		return &ferrors.CompileError{Kind: ferrors.KindUnknownStepTarget, FlowName: flow.Name, StepID: step.ID, Message: fmt.Sprintf("unknown slot %q", step.Collect.Slot)}
	}
	if slot.Validator != "" {
		if _, ok := regs.Validators.Resolve(slot.Validator); !ok {
			return &ferrors.CompileError{Kind: ferrors.KindUnknownValidator, FlowName: flow.Name, StepID: step.ID, Message: fmt.Sprintf("unknown validator %q", slot.Validator)}
		}
	}
	if slot.Normalizer != "" {
		if _, ok := regs.Normalizers.Resolve(slot.Normalizer); !ok {
			return &ferrors.CompileError{Kind: ferrors.KindUnknownNormalizer, FlowName: flow.Name, StepID: step.ID, Message: fmt.Sprintf("unknown normalizer %q", slot.Normalizer)}
		}
	}
	return nil
}
