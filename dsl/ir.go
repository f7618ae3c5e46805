// Package dsl implements §4.1 and §6.1: parsing and schema validation of the
// flow document into an intermediate representation (IR), which the graph
// package then compiles into an executable FlowGraph.
//
// Parsing is a pure function of text to IR: Parse/Load never touch the
// action/validator/normalizer registries and never talk to collaborators.
package dsl

import "fmt"

// SlotType is one of the value types a SlotDef may declare.
type SlotType string

const (
	SlotString  SlotType = "string"
	SlotInteger SlotType = "integer"
	SlotFloat   SlotType = "float"
	SlotBoolean SlotType = "boolean"
	SlotDate    SlotType = "date"
	SlotObject  SlotType = "object"
)

// Reserved step-id keywords (§6.4). A StepDef may never use one of these as
// its own id, though they are valid jump/branch/on_* targets.
var Reserved = map[string]bool{
	"end":         true,
	"error":       true,
	"continue":    true,
	"cancel_flow": true,
}

// SlotDef is a typed, named piece of information a flow collects (§3).
type SlotDef struct {
	Name           string
	Type           SlotType
	Required       bool
	Prompt         string
	Default        any
	Validator      string
	Normalizer     string
	Description    string
	InvalidMessage string
}

// ActionDef is the contract for a named side-effecting operation — no
// implementation detail, only the shape the Action Registry must satisfy
// (§3).
type ActionDef struct {
	Name        string
	Description string
	Inputs      []string
	Outputs     []string
}

// StepKind names one of the nine step variants of §4.5.
type StepKind string

const (
	StepCollect  StepKind = "collect"
	StepAction   StepKind = "action"
	StepBranch   StepKind = "branch"
	StepSay      StepKind = "say"
	StepConfirm  StepKind = "confirm"
	StepGenerate StepKind = "generate"
	StepCallFlow StepKind = "call_flow"
	StepSet      StepKind = "set"
	StepHandoff  StepKind = "handoff"
)

// StepDef is the universal shape of §4.5/§6.1: `{step, type, when?, jump_to?}`
// plus one populated type-specific config.
type StepDef struct {
	ID     string
	Type   StepKind
	When   string // raw condition expression, evaluated by the expr package
	JumpTo string // step id or reserved keyword; empty means "default sequential successor"

	Collect  *CollectStep
	Action   *ActionStep
	Branch   *BranchStep
	Say      *SayStep
	Confirm  *ConfirmStep
	Generate *GenerateStep
	CallFlow *CallFlowStep
	Set      *SetStep
	Handoff  *HandoffStep
}

// CollectStep blocks until Slot is filled, normalizes and validates the
// candidate value, and supports force-reprompt and timeout/invalid recovery.
type CollectStep struct {
	Slot       string
	Force      bool
	OnInvalid  string // step id or reserved keyword; default is handoff to settings.handoff.default_queue
	OnTimeout  string
	Timeout    string // duration string, e.g. "30s"
	MaxAttempts int    // 0 means "use settings.collection.max_validation_attempts"
}

// ActionStep invokes a registered action with a retry policy.
type ActionStep struct {
	Call       string
	MapOutputs map[string]string // action output name -> flow slot name
	Timeout    string
	OnError    string
	Retry      *RetryPolicy
}

// RetryPolicy is §4.5's action retry policy.
type RetryPolicy struct {
	MaxAttempts int
	Delay       string // duration string, base delay
	Backoff     string // "fixed" | "linear" | "exponential"
	RetryOn     []string
}

// BranchCase is one `when` entry of a branch step.
type BranchCase struct {
	Condition string // raw expression, or empty if All/Any set
	All       []string
	Any       []string
	Then      string
}

// BranchStep evaluates Cases in order; the first true condition's Then wins,
// else Else (or the default sequential successor if Else is empty).
type BranchStep struct {
	Cases []BranchCase
	Else  string
}

// SayStep is a non-blocking outbound message.
type SayStep struct {
	Message  string // `{name}`/`{{ expr }}` template, or empty if Response is set
	Response string // named entry in the responses section
	Data     map[string]string
}

// ConfirmStep prompts yes/no/correct/modify/cancel/clarify and suspends.
type ConfirmStep struct {
	Message       string
	OnYes         string
	OnNo          string
	OnChange      string
	OnCorrection  string
	OnModification string
	OnCancel      string
}

// GenerateStep calls the NLU's generative entry point.
type GenerateStep struct {
	Instruction string
	Context     []string // slot names to include as context
	StoreAs     string
	OnError     string
}

// CallFlowStep pushes a child frame.
type CallFlowStep struct {
	Flow    string
	Inputs  map[string]string // parent slot name -> child slot name
	Outputs map[string]string // child slot name -> parent slot name
}

// SetStep assigns evaluated values into flow or session scope.
type SetStep struct {
	Values map[string]string // name ("session.x" or bare) -> raw expression/template/literal
}

// HandoffStep emits a handoff signal to an external queue.
type HandoffStep struct {
	Queue   string
	Context []string
	Message string
}

// FlowDef is the static definition of a named, ordered dialogue procedure
// (§3).
type FlowDef struct {
	Name        string
	Description string
	Triggers    []string
	Steps       []StepDef
	OnError     string
	Inputs      []string
	Outputs     []string
}

// StepByID returns the step with the given id, or (zero, false).
func (f *FlowDef) StepByID(id string) (StepDef, bool) {
	for _, s := range f.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepDef{}, false
}

// Validate enforces the FlowDef-local invariants of §3: unique step ids, and
// no step may be named with a reserved keyword.
func (f *FlowDef) Validate() error {
	seen := make(map[string]bool, len(f.Steps))
	for _, s := range f.Steps {
		if s.ID == "" {
			return fmt.Errorf("flow %s: step with empty id", f.Name)
		}
		if Reserved[s.ID] {
			return fmt.Errorf("flow %s: step id %q is a reserved keyword", f.Name, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("flow %s: duplicate step id %q", f.Name, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// ResponseVariant is one language/default/variations entry of §6.2.
type ResponseVariant struct {
	Default    string
	Variations []string
}

// ResponseEntry is `{default | variations[] | <lang>:string | <lang>:{...}}`.
type ResponseEntry struct {
	Default    string
	Variations []string
	ByLanguage map[string]ResponseVariant
}

// Settings carries the recognized options of §6.1.
type Settings struct {
	Runtime struct {
		MaxStepExecutions int
	}
	Persistence struct {
		Backend string
	}
	FlowManagement struct {
		MaxStackDepth  int
		OnLimitReached string // "cancel_oldest" | "reject_new"
	}
	Conversation struct {
		DefaultFlow            string
		FallbackFlow           string
		SessionTimeout         int
		MaxTurnsWithoutProgress int
		OnNoProgress           string // "handoff" | "fallback" | "retry"
	}
	Collection struct {
		MaxValidationAttempts int
		ValidationTimeout     string
	}
	Handoff struct {
		DefaultQueue string
	}
	I18n struct {
		DefaultLanguage    string
		SupportedLanguages []string
		AutoDetect         bool
	}
}

// DefaultSettings returns the settings a document gets when it omits a
// `settings` section entirely, matching the concrete defaults implied by
// §4.5/§4.6 (e.g. collect's `on_invalid` defaults to handoff).
func DefaultSettings() Settings {
	var s Settings
	s.Runtime.MaxStepExecutions = 25
	s.FlowManagement.MaxStackDepth = 10
	s.FlowManagement.OnLimitReached = "reject_new"
	s.Conversation.DefaultFlow = ""
	s.Conversation.FallbackFlow = ""
	s.Conversation.SessionTimeout = 1800
	s.Conversation.MaxTurnsWithoutProgress = 6
	s.Conversation.OnNoProgress = "handoff"
	s.Collection.MaxValidationAttempts = 3
	s.Collection.ValidationTimeout = "30s"
	s.Handoff.DefaultQueue = "default"
	s.I18n.DefaultLanguage = "en"
	s.I18n.SupportedLanguages = []string{"en"}
	s.I18n.AutoDetect = false
	return s
}

// Document is the full parsed flow document: §6.1's top-level keys.
type Document struct {
	Version   string
	Settings  Settings
	Responses map[string]ResponseEntry
	Slots     map[string]SlotDef
	Actions   map[string]ActionDef
	Flows     map[string]FlowDef
}

// EntryStep returns the id of flowName's first declared step — where the
// runtime positions a freshly pushed frame — or ok=false if flowName is
// unknown or declares no steps.
func (d *Document) EntryStep(flowName string) (string, bool) {
	flow, ok := d.Flows[flowName]
	if !ok || len(flow.Steps) == 0 {
		return "", false
	}
	return flow.Steps[0].ID, true
}
