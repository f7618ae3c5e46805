package graph

import (
	"fmt"

	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
)

// sink reports whether id is one of the graph's terminal/out-of-band
// targets: END, ERROR, or the cancel_flow sentinel. These are always
// "reachable" and never participate in cycle detection — they leave the
// flow rather than advancing within it.
func sink(id NodeID) bool {
	return id == endID || id == errorID || id == NodeID("cancel_flow")
}

// outgoing returns every node this node can transition to in one step:
// the default sequential successor plus any kind-specific targets
// (branch cases/else, collect's on_invalid/on_timeout, confirm's
// on_yes/on_no/..., action/generate's on_error).
func outgoing(n *Node) []NodeID {
	targets := []NodeID{n.Next}
	resolve := func(raw string) NodeID {
		if raw == "" {
			return n.Next
		}
		return resolveJumpTarget(raw, n.Next)
	}

	switch n.Kind {
	case dsl.StepBranch:
		for _, c := range n.Step.Branch.Cases {
			targets = append(targets, resolve(c.Then))
		}
		targets = append(targets, resolve(n.Step.Branch.Else))
	case dsl.StepCollect:
		targets = append(targets, resolve(n.Step.Collect.OnInvalid))
		targets = append(targets, resolve(n.Step.Collect.OnTimeout))
	case dsl.StepConfirm:
		targets = append(targets,
			resolve(n.Step.Confirm.OnYes),
			resolve(n.Step.Confirm.OnNo),
			resolve(n.Step.Confirm.OnChange),
			resolve(n.Step.Confirm.OnCorrection),
			resolve(n.Step.Confirm.OnModification),
			resolve(n.Step.Confirm.OnCancel),
		)
	case dsl.StepAction:
		targets = append(targets, resolve(n.Step.Action.OnError))
	case dsl.StepGenerate:
		targets = append(targets, resolve(n.Step.Generate.OnError))
	}
	return targets
}

// validate runs §4.2's fail-fast checks plus the branch-exhaustiveness
// warning. Step-id uniqueness and reserved-keyword rejection already
// happened in dsl.FlowDef.Validate before lowering.
func validate(g *FlowGraph, flow dsl.FlowDef) ([]Warning, error) {
	if err := checkTargets(g, flow); err != nil {
		return nil, err
	}
	if err := checkReachability(g, flow); err != nil {
		return nil, err
	}
	if err := checkUnsafeCycles(g, flow); err != nil {
		return nil, err
	}
	return checkBranchExhaustiveness(g, flow), nil
}

func checkTargets(g *FlowGraph, flow dsl.FlowDef) error {
	for id, n := range g.Nodes {
		if id == entryID || id == endID || id == errorID {
			continue
		}
		for _, t := range outgoing(n) {
			if sink(t) {
				continue
			}
			if _, ok := g.Nodes[t]; !ok {
				return &ferrors.CompileError{Kind: ferrors.KindUnknownStepTarget, FlowName: flow.Name, StepID: string(id), Message: fmt.Sprintf("unresolved target %q", t)}
			}
		}
	}
	return nil
}

func checkReachability(g *FlowGraph, flow dsl.FlowDef) error {
	visited := map[NodeID]bool{entryID: true}
	queue := []NodeID{entryID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.Nodes[id]
		if !ok {
			continue
		}
		for _, t := range outgoing(n) {
			if sink(t) || visited[t] {
				continue
			}
			visited[t] = true
			queue = append(queue, t)
		}
	}
	for id := range g.Nodes {
		if id == entryID || id == endID || id == errorID {
			continue
		}
		if !visited[id] {
			return &ferrors.CompileError{Kind: ferrors.KindUnreachableNode, FlowName: flow.Name, StepID: string(id), Message: "node unreachable from ENTRY"}
		}
	}
	return nil
}

// checkUnsafeCycles rejects any structural cycle composed entirely of
// non-blocking nodes (§4.2): such a cycle can never yield control back to
// the user and would spin forever. Detected via DFS coloring; a cycle is
// "safe" the moment it contains at least one Blocking node.
func checkUnsafeCycles(g *FlowGraph, flow dsl.FlowDef) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[NodeID]int, len(g.Nodes))
	var stack []NodeID

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if sink(id) {
			return nil
		}
		switch color[id] {
		case black:
			return nil
		case gray:
			return unsafeCycleError(flow.Name, stack, id, g)
		}
		color[id] = gray
		stack = append(stack, id)
		n, ok := g.Nodes[id]
		if ok {
			for _, t := range outgoing(n) {
				if err := visit(t); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	return visit(entryID)
}

func unsafeCycleError(flowName string, stack []NodeID, closingTo NodeID, g *FlowGraph) error {
	start := 0
	for i, id := range stack {
		if id == closingTo {
			start = i
			break
		}
	}
	cycle := stack[start:]
	for _, id := range cycle {
		if n, ok := g.Nodes[id]; ok && n.Blocking {
			return nil // safe: a blocking node breaks the loop each time through
		}
	}
	return &ferrors.CompileError{Kind: ferrors.KindUnsafeCycle, FlowName: flowName, StepID: string(closingTo), Message: "structural cycle contains no blocking step"}
}

// checkBranchExhaustiveness reports (not rejects) every branch step with
// no `else`; whether its cases cover every outcome is not analysed. The runtime
// falls through to the default sequential successor in that case, so
// this is a warning rather than a compile error (§4.2).
func checkBranchExhaustiveness(g *FlowGraph, flow dsl.FlowDef) []Warning {
	var warnings []Warning
	for _, step := range flow.Steps {
		if step.Type != dsl.StepBranch {
			continue
		}
		if step.Branch.Else == "" {
			warnings = append(warnings, Warning{
				FlowName: flow.Name,
				StepID:   step.ID,
				Message:  "branch has no else case; falls through to default sequential successor if no case matches",
			})
		}
	}
	return warnings
}
