package runtime

import (
	"github.com/jmorenobl/soni/flowmgr"
	"github.com/jmorenobl/soni/nodeexec"
	"github.com/jmorenobl/soni/state"
)

// CommandKind names one of §4.6's deterministic command application
// stages: CancelFlow -> StartFlow -> SetSlot -> Confirm, applied in that
// fixed order every turn regardless of the order the router produced
// them in.
type CommandKind string

const (
	CmdCancelFlow CommandKind = "cancel_flow"
	CmdStartFlow  CommandKind = "start_flow"
	CmdSetSlot    CommandKind = "set_slot"
	CmdConfirm    CommandKind = "confirm"
)

// Command is one action the router derived from an NLU result, to be
// folded into state before graph execution resumes.
type Command struct {
	Kind CommandKind

	FlowName string // CmdStartFlow

	SlotName  string // CmdSetSlot
	SlotValue any

	Confirm nodeexec.ConfirmReply // CmdConfirm
}

// commandOrder fixes the priority §4.6 requires: a cancel always applies
// before a fresh flow is started, slots are set against whichever flow
// is active after start/cancel, and a confirm reply is resolved last, since
// ResumeConfirm reads any slot update the reply itself carries.
var commandOrder = map[CommandKind]int{
	CmdCancelFlow: 0,
	CmdStartFlow:  1,
	CmdSetSlot:    2,
	CmdConfirm:    3,
}

// applyCommands folds cmds into s in commandOrder, regardless of the
// slice's original order, returning the updated state.
func applyCommands(s *state.DialogueState, cmds []Command, doc docLookup, policy flowmgr.StackPolicy) (*state.DialogueState, error) {
	buckets := make([][]Command, 4)
	for _, c := range cmds {
		idx := commandOrder[c.Kind]
		buckets[idx] = append(buckets[idx], c)
	}

	for _, bucket := range buckets {
		for _, c := range bucket {
			next, err := applyCommand(s, c, doc, policy)
			if err != nil {
				return s, err
			}
			s = next
		}
	}
	return s, nil
}

// docLookup is the narrow slice of *dsl.Document a command needs: finding
// a flow's entry step when starting it.
type docLookup interface {
	EntryStep(flowName string) (string, bool)
}

func applyCommand(s *state.DialogueState, c Command, doc docLookup, policy flowmgr.StackPolicy) (*state.DialogueState, error) {
	switch c.Kind {
	case CmdCancelFlow:
		if s.ActiveFlow() == nil {
			return s, nil
		}
		return flowmgr.Cancel(s), nil
	case CmdStartFlow:
		entry, ok := doc.EntryStep(c.FlowName)
		if !ok {
			return s, nil
		}
		next, _, err := flowmgr.Push(s, c.FlowName, entry, policy)
		if err != nil {
			return s, err
		}
		return next, nil
	case CmdSetSlot:
		return flowmgr.SetSlot(s, c.SlotName, c.SlotValue), nil
	case CmdConfirm:
		// Confirm replies are resolved by the graph step loop (ResumeConfirm
		// needs the confirm step's own configuration, which applyCommand has
		// no access to); the step loop consumes pending confirm commands
		// directly. Nothing to do here.
		return s, nil
	}
	return s, nil
}
