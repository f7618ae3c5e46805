// Package ferrors holds the error taxonomy of §7: the fixed set of
// compile-time, runtime-local, and runtime-terminal error kinds shared by the
// dsl, graph, nodeexec, and runtime packages. Keeping the taxonomy in one
// leaf package avoids import cycles between the packages that raise these
// errors and the ones that interpret them (error-variable population in
// nodeexec, propagation in runtime).
package ferrors

// Kind names an error from the fixed taxonomy of §7.
type Kind string

// Compile-time kinds: raised while compiling a FlowDefinition into a
// FlowGraph (dsl and graph packages).
const (
	KindUnknownStepTarget Kind = "unknown_step_target"
	KindDuplicateStepID   Kind = "duplicate_step_id"
	KindUnreachableNode   Kind = "unreachable_node"
	KindUnsafeCycle       Kind = "unsafe_cycle"
	KindUnknownAction     Kind = "unknown_action"
	KindUnknownValidator  Kind = "unknown_validator"
	KindUnknownNormalizer Kind = "unknown_normalizer"
	KindSchemaViolation   Kind = "schema_violation"
)

// Runtime-local kinds: handled by a step's or flow's on_error, per the
// propagation rule of §7.
const (
	KindTimeout            Kind = "timeout"
	KindConnection         Kind = "connection"
	KindRateLimited        Kind = "rate_limited"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindPermission         Kind = "permission"
	KindPaymentFailed      Kind = "payment_failed"
	KindQueueNotFound      Kind = "queue_not_found"
	KindHandoffUnavailable Kind = "handoff_unavailable"
)

// Runtime-terminal kinds: the flow ends with ERROR, no on_error applies.
const (
	KindLoopDetected        Kind = "loop_detected"
	KindMissingInput        Kind = "missing_input"
	KindInvalidTransition   Kind = "invalid_state_transition"
	KindMaxStackDepth       Kind = "max_stack_depth"
	KindUnknownRuntime      Kind = "unknown_runtime"
)

// IsTerminal reports whether a Kind always ends the active flow with ERROR,
// skipping any on_error routing.
func IsTerminal(k Kind) bool {
	switch k {
	case KindLoopDetected, KindMissingInput, KindInvalidTransition, KindMaxStackDepth, KindUnknownRuntime:
		return true
	default:
		return false
	}
}

// CompileError is a structured, fail-fast compilation failure (§4.2).
type CompileError struct {
	Kind     Kind
	FlowName string
	StepID   string
	Message  string
}

func (e *CompileError) Error() string {
	s := "compile error [" + string(e.Kind) + "]"
	if e.FlowName != "" {
		s += " flow=" + e.FlowName
	}
	if e.StepID != "" {
		s += " step=" + e.StepID
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// StepError is a runtime failure raised by a node executor, carrying the
// four error variables of §6.5.
type StepError struct {
	Kind    Kind
	Message string
	Code    string
	Details map[string]any
}

func (e *StepError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// NewStepError constructs a StepError with the given kind and message.
func NewStepError(kind Kind, message string) *StepError {
	return &StepError{Kind: kind, Message: message}
}
