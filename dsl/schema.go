package dsl

import (
	"fmt"

	"github.com/jmorenobl/soni/ferrors"
)

func decodeSettings(m map[string]any, s *Settings) error {
	if rt, ok := m["runtime"]; ok {
		rtm := asMap(rt)
		if v, ok := rtm["max_step_executions"].(int); ok {
			s.Runtime.MaxStepExecutions = v
		} else if v, ok := rtm["max_step_executions"].(float64); ok {
			s.Runtime.MaxStepExecutions = int(v)
		}
	}
	if p, ok := m["persistence"]; ok {
		s.Persistence.Backend, _ = asMap(p)["backend"].(string)
	}
	if fm, ok := m["flow_management"]; ok {
		fmm := asMap(fm)
		if v, ok := toInt(fmm["max_stack_depth"]); ok {
			s.FlowManagement.MaxStackDepth = v
		}
		if v, ok := fmm["on_limit_reached"].(string); ok {
			s.FlowManagement.OnLimitReached = v
		}
	}
	if c, ok := m["conversation"]; ok {
		cm := asMap(c)
		if v, ok := cm["default_flow"].(string); ok {
			s.Conversation.DefaultFlow = v
		}
		if v, ok := cm["fallback_flow"].(string); ok {
			s.Conversation.FallbackFlow = v
		}
		if v, ok := toInt(cm["session_timeout"]); ok {
			s.Conversation.SessionTimeout = v
		}
		if v, ok := toInt(cm["max_turns_without_progress"]); ok {
			s.Conversation.MaxTurnsWithoutProgress = v
		}
		if v, ok := cm["on_no_progress"].(string); ok {
			s.Conversation.OnNoProgress = v
		}
	}
	if col, ok := m["collection"]; ok {
		colm := asMap(col)
		if v, ok := toInt(colm["max_validation_attempts"]); ok {
			s.Collection.MaxValidationAttempts = v
		}
		if v, ok := colm["validation_timeout"].(string); ok {
			s.Collection.ValidationTimeout = v
		}
	}
	if h, ok := m["handoff"]; ok {
		if v, ok := asMap(h)["default_queue"].(string); ok {
			s.Handoff.DefaultQueue = v
		}
	}
	if i, ok := m["i18n"]; ok {
		im := asMap(i)
		if v, ok := im["default_language"].(string); ok {
			s.I18n.DefaultLanguage = v
		}
		if v := asStringSlice(im["supported_languages"]); len(v) > 0 {
			s.I18n.SupportedLanguages = v
		}
		if v, ok := im["auto_detect"].(bool); ok {
			s.I18n.AutoDetect = v
		}
	}

	allowed := map[string]bool{
		"runtime": true, "persistence": true, "flow_management": true,
		"conversation": true, "collection": true, "handoff": true, "i18n": true,
	}
	return checkUnknownKeys("settings", m, allowed)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func decodeResponseEntry(v any) ResponseEntry {
	switch val := v.(type) {
	case string:
		return ResponseEntry{Default: val}
	case map[string]any:
		entry := ResponseEntry{ByLanguage: make(map[string]ResponseVariant)}
		if d, ok := val["default"].(string); ok {
			entry.Default = d
		}
		entry.Variations = asStringSlice(val["variations"])
		for k, lv := range val {
			if k == "default" || k == "variations" {
				continue
			}
			entry.ByLanguage[k] = decodeResponseVariant(lv)
		}
		return entry
	default:
		return ResponseEntry{}
	}
}

func decodeResponseVariant(v any) ResponseVariant {
	switch val := v.(type) {
	case string:
		return ResponseVariant{Default: val}
	case map[string]any:
		rv := ResponseVariant{Variations: asStringSlice(val["variations"])}
		rv.Default, _ = val["default"].(string)
		return rv
	default:
		return ResponseVariant{}
	}
}

var slotAllowedKeys = map[string]bool{
	"type": true, "prompt": true, "required": true, "default": true,
	"description": true, "validator": true, "normalizer": true, "invalid_message": true,
}

func decodeSlot(name string, m map[string]any) (SlotDef, error) {
	if err := checkUnknownKeys("slots."+name, m, slotAllowedKeys); err != nil {
		return SlotDef{}, err
	}
	slot := SlotDef{Name: name}
	typeStr, _ := m["type"].(string)
	slot.Type = SlotType(typeStr)
	switch slot.Type {
	case SlotString, SlotInteger, SlotFloat, SlotBoolean, SlotDate, SlotObject:
	default:
		return SlotDef{}, &ferrors.CompileError{Kind: ferrors.KindSchemaViolation, Message: fmt.Sprintf("slot %s: unknown type %q", name, typeStr)}
	}
	slot.Prompt, _ = m["prompt"].(string)
	slot.Required, _ = m["required"].(bool)
	slot.Default = m["default"]
	slot.Description, _ = m["description"].(string)
	slot.Validator, _ = m["validator"].(string)
	slot.Normalizer, _ = m["normalizer"].(string)
	slot.InvalidMessage, _ = m["invalid_message"].(string)
	return slot, nil
}

var actionAllowedKeys = map[string]bool{"description": true, "inputs": true, "outputs": true}

func decodeAction(name string, m map[string]any) ActionDef {
	return ActionDef{
		Name:        name,
		Description: firstString(m["description"]),
		Inputs:      asStringSlice(m["inputs"]),
		Outputs:     asStringSlice(m["outputs"]),
	}
}

func firstString(v any) string {
	s, _ := v.(string)
	return s
}

var flowAllowedKeys = map[string]bool{
	"description": true, "trigger": true, "inputs": true, "outputs": true,
	"on_error": true, "process": true,
}

func decodeFlow(name string, m map[string]any) (FlowDef, error) {
	if err := checkUnknownKeys("flows."+name, m, flowAllowedKeys); err != nil {
		return FlowDef{}, err
	}
	flow := FlowDef{Name: name}
	flow.Description, _ = m["description"].(string)
	if trig, ok := m["trigger"]; ok {
		flow.Triggers = asStringSlice(asMap(trig)["intents"])
	}
	flow.Inputs = asStringSlice(m["inputs"])
	flow.Outputs = asStringSlice(m["outputs"])
	flow.OnError, _ = m["on_error"].(string)

	for _, stepRaw := range asSlice(m["process"]) {
		step, err := decodeStep(name, asMap(stepRaw))
		if err != nil {
			return FlowDef{}, err
		}
		flow.Steps = append(flow.Steps, step)
	}
	return flow, nil
}

var stepUniversalKeys = map[string]bool{"step": true, "type": true, "when": true, "jump_to": true}

func decodeStep(flowName string, m map[string]any) (StepDef, error) {
	step := StepDef{}
	step.ID, _ = m["step"].(string)
	typeStr, _ := m["type"].(string)
	step.Type = StepKind(typeStr)
	step.When, _ = m["when"].(string)
	step.JumpTo, _ = m["jump_to"].(string)

	allowed := mergeKeys(stepUniversalKeys, stepKindKeys(step.Type))
	if err := checkUnknownKeys(fmt.Sprintf("flows.%s.process[%s]", flowName, step.ID), m, allowed); err != nil {
		return StepDef{}, err
	}

	switch step.Type {
	case StepCollect:
		step.Collect = decodeCollectStep(m)
	case StepAction:
		step.Action = decodeActionStep(m)
	case StepBranch:
		step.Branch = decodeBranchStep(m)
	case StepSay:
		step.Say = decodeSayStep(m)
	case StepConfirm:
		step.Confirm = decodeConfirmStep(m)
	case StepGenerate:
		step.Generate = decodeGenerateStep(m)
	case StepCallFlow:
		step.CallFlow = decodeCallFlowStep(m)
	case StepSet:
		step.Set = decodeSetStep(m)
	case StepHandoff:
		step.Handoff = decodeHandoffStep(m)
	default:
		return StepDef{}, &ferrors.CompileError{Kind: ferrors.KindSchemaViolation, FlowName: flowName, StepID: step.ID, Message: fmt.Sprintf("unknown step type %q", typeStr)}
	}
	return step, nil
}

func mergeKeys(sets ...map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}

func stepKindKeys(k StepKind) map[string]bool {
	switch k {
	case StepCollect:
		return map[string]bool{"slot": true, "force": true, "on_invalid": true, "on_timeout": true, "timeout": true, "max_attempts": true}
	case StepAction:
		return map[string]bool{"call": true, "map_outputs": true, "timeout": true, "on_error": true, "retry": true}
	case StepBranch:
		return map[string]bool{"when": true, "else": true}
	case StepSay:
		return map[string]bool{"message": true, "response": true, "data": true}
	case StepConfirm:
		return map[string]bool{
			"message": true, "on_yes": true, "on_no": true, "on_change": true,
			"on_correction": true, "on_modification": true, "on_cancel": true,
		}
	case StepGenerate:
		return map[string]bool{"instruction": true, "context": true, "store_as": true, "on_error": true}
	case StepCallFlow:
		return map[string]bool{"flow": true, "inputs": true, "outputs": true}
	case StepSet:
		return map[string]bool{"values": true}
	case StepHandoff:
		return map[string]bool{"queue": true, "context": true, "message": true}
	default:
		return map[string]bool{}
	}
}

func decodeCollectStep(m map[string]any) *CollectStep {
	c := &CollectStep{}
	c.Slot, _ = m["slot"].(string)
	c.Force, _ = m["force"].(bool)
	c.OnInvalid, _ = m["on_invalid"].(string)
	c.OnTimeout, _ = m["on_timeout"].(string)
	c.Timeout, _ = m["timeout"].(string)
	if v, ok := toInt(m["max_attempts"]); ok {
		c.MaxAttempts = v
	}
	return c
}

func decodeActionStep(m map[string]any) *ActionStep {
	a := &ActionStep{}
	a.Call, _ = m["call"].(string)
	a.Timeout, _ = m["timeout"].(string)
	a.OnError, _ = m["on_error"].(string)
	a.MapOutputs = make(map[string]string)
	for k, v := range asMap(m["map_outputs"]) {
		if s, ok := v.(string); ok {
			a.MapOutputs[k] = s
		}
	}
	if retryRaw, ok := m["retry"]; ok {
		rm := asMap(retryRaw)
		rp := &RetryPolicy{}
		if v, ok := toInt(rm["max_attempts"]); ok {
			rp.MaxAttempts = v
		}
		if v, ok := rm["delay"]; ok {
			rp.Delay = fmt.Sprintf("%v", v)
		}
		rp.Backoff, _ = rm["backoff"].(string)
		rp.RetryOn = asStringSlice(rm["retry_on"])
		a.Retry = rp
	}
	return a
}

func decodeBranchStep(m map[string]any) *BranchStep {
	b := &BranchStep{}
	for _, caseRaw := range asSlice(m["when"]) {
		cm := asMap(caseRaw)
		bc := BranchCase{}
		bc.Condition, _ = cm["condition"].(string)
		bc.All = asStringSlice(cm["all"])
		bc.Any = asStringSlice(cm["any"])
		bc.Then, _ = cm["then"].(string)
		b.Cases = append(b.Cases, bc)
	}
	b.Else, _ = m["else"].(string)
	return b
}

func decodeSayStep(m map[string]any) *SayStep {
	s := &SayStep{}
	s.Message, _ = m["message"].(string)
	s.Response, _ = m["response"].(string)
	s.Data = make(map[string]string)
	for k, v := range asMap(m["data"]) {
		s.Data[k] = fmt.Sprintf("%v", v)
	}
	return s
}

func decodeConfirmStep(m map[string]any) *ConfirmStep {
	c := &ConfirmStep{}
	c.Message, _ = m["message"].(string)
	c.OnYes, _ = m["on_yes"].(string)
	c.OnNo, _ = m["on_no"].(string)
	c.OnChange, _ = m["on_change"].(string)
	c.OnCorrection, _ = m["on_correction"].(string)
	c.OnModification, _ = m["on_modification"].(string)
	c.OnCancel, _ = m["on_cancel"].(string)
	return c
}

func decodeGenerateStep(m map[string]any) *GenerateStep {
	g := &GenerateStep{}
	g.Instruction, _ = m["instruction"].(string)
	g.Context = asStringSlice(m["context"])
	g.StoreAs, _ = m["store_as"].(string)
	g.OnError, _ = m["on_error"].(string)
	return g
}

func decodeCallFlowStep(m map[string]any) *CallFlowStep {
	c := &CallFlowStep{Inputs: map[string]string{}, Outputs: map[string]string{}}
	c.Flow, _ = m["flow"].(string)
	for k, v := range asMap(m["inputs"]) {
		if s, ok := v.(string); ok {
			c.Inputs[k] = s
		}
	}
	for k, v := range asMap(m["outputs"]) {
		if s, ok := v.(string); ok {
			c.Outputs[k] = s
		}
	}
	return c
}

func decodeSetStep(m map[string]any) *SetStep {
	s := &SetStep{Values: map[string]string{}}
	for k, v := range asMap(m["values"]) {
		s.Values[k] = fmt.Sprintf("%v", v)
	}
	return s
}

func decodeHandoffStep(m map[string]any) *HandoffStep {
	h := &HandoffStep{}
	h.Queue, _ = m["queue"].(string)
	h.Context = asStringSlice(m["context"])
	h.Message, _ = m["message"].(string)
	return h
}
