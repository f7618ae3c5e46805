// Package graph implements §4.2: the flow compiler (IR → FlowGraph) and
// its validator. Compilation is a pure, two-pass transform — lowering
// then linking — grounded on the teacher's own flow-registration path
// (core/flow.go's registerFlow walks a flow's steps once at startup and
// builds a step-id → *flowStep lookup map before any user traffic
// arrives), generalized here into an explicit two-pass compiler that
// also resolves registry references and detects structural hazards the
// teacher's single-pass registration never checked for.
package graph

import "github.com/jmorenobl/soni/dsl"

// NodeID identifies a node within a single flow's graph. Step ids are
// reused as NodeIDs; the synthetic nodes are "ENTRY", "END" and "ERROR".
type NodeID string

const (
	entryID NodeID = "ENTRY"
	endID   NodeID = "END"
	errorID NodeID = "ERROR"
)

// Node is the compiled, linked form of a StepDef (or a synthetic
// ENTRY/END/ERROR marker). Kind is empty for synthetic nodes.
type Node struct {
	ID   NodeID
	Kind dsl.StepKind
	Step dsl.StepDef // zero value for synthetic nodes

	// Next is the default sequential successor — declaration order,
	// or the node the step explicitly Jumps to.
	Next NodeID

	// Blocking is true for step kinds that suspend awaiting user input
	// (collect, confirm) — the set the "no cycle without a blocking
	// step" rule (§4.2) checks for.
	Blocking bool
}

// FlowGraph is one flow's compiled, executable form.
type FlowGraph struct {
	FlowName string
	Nodes    map[NodeID]*Node
	Entry    NodeID
}

// NodeByID returns the node for id, or (nil, false).
func (g *FlowGraph) NodeByID(id NodeID) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// ResolveTarget maps a raw jump/branch/on_* target string to a NodeID,
// applying the reserved-keyword mapping of §4.2 ("end" → END, "error" →
// the terminal error node, "continue" → the default sequential
// successor of from). An empty target means "default sequential
// successor".
func (g *FlowGraph) ResolveTarget(from NodeID, target string) NodeID {
	switch target {
	case "":
		if n, ok := g.Nodes[from]; ok {
			return n.Next
		}
		return endID
	case "end":
		return endID
	case "error":
		return errorID
	case "continue":
		if n, ok := g.Nodes[from]; ok {
			return n.Next
		}
		return endID
	case "cancel_flow":
		return NodeID("cancel_flow")
	default:
		return NodeID(target)
	}
}

func isBlocking(k dsl.StepKind) bool {
	return k == dsl.StepCollect || k == dsl.StepConfirm
}

// CancelFlowTarget is the resolved form of the reserved "cancel_flow"
// jump target (§6.4): not a node in any graph, but a sentinel the
// runtime recognizes and reacts to by cancelling the active flow frame.
const CancelFlowTarget NodeID = "cancel_flow"

// IsEnd reports whether id is the synthetic END node a flow resolves to
// on normal completion.
func IsEnd(id NodeID) bool { return id == endID }

// IsError reports whether id is the synthetic terminal ERROR node.
func IsError(id NodeID) bool { return id == errorID }

// IsCancelFlow reports whether id is the reserved cancel_flow sentinel.
func IsCancelFlow(id NodeID) bool { return id == CancelFlowTarget }

// EntryID returns the synthetic ENTRY node id every flow graph starts
// execution at.
func EntryID() NodeID { return entryID }
