// Package rulebased implements nlu.Understander and nlu.Generator without
// calling out to any model: a deterministic, keyword-driven fallback
// suitable for development, CI, and hosts that want to run the dialogue
// runtime without an LLM dependency.
//
// There is no direct corpus analogue for a rule-based NLU engine — neither
// the teacher nor any example repo implements command classification by
// pattern matching — so this package follows §4.9/§4.10 directly rather
// than a teacher file, using the same sync.RWMutex-guarded registration
// style as the registry package (registry/actions.go) for its pattern
// table.
package rulebased

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmorenobl/soni/nlu"
)

// Pattern binds a command name to the substrings that trigger it. Any
// phrase match counts as a hit for that command; among competing hits the
// longest matched phrase wins.
type Pattern struct {
	Command string
	Phrases []string
}

// Provider is a keyword-matching Understander/Generator. It is scope-aware:
// a matched command that doesn't appear in the dynamic scope passed to
// UnderstandFull/UnderstandSlot is reported as out_of_scope, per §4.10.
type Provider struct {
	mu       sync.RWMutex
	patterns []Pattern

	cancelWords  []string
	confirmWords []string
	denyWords    []string
}

// New returns a Provider with the default global interrupt vocabulary
// (cancel/confirm/deny words); callers register additional command
// patterns with Register before first use.
func New() *Provider {
	return &Provider{
		cancelWords:  []string{"cancel", "stop", "nevermind", "never mind"},
		confirmWords: []string{"yes", "yeah", "yep", "correct", "confirm"},
		denyWords:    []string{"no", "nope", "not right", "wrong"},
	}
}

// Register adds a command pattern. The longest matching phrase wins
// whatever the registration order; between equally long matches, the
// earlier registration wins.
func (p *Provider) Register(pattern Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns = append(p.patterns, pattern)
}

func (p *Provider) matchCommand(message string) (string, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lower := strings.ToLower(message)
	bestCommand := ""
	bestLen := 0
	for _, pat := range p.patterns {
		for _, phrase := range pat.Phrases {
			pl := strings.ToLower(phrase)
			if strings.Contains(lower, pl) && len(pl) > bestLen {
				bestCommand = pat.Command
				bestLen = len(pl)
			}
		}
	}
	if bestCommand == "" {
		return "", 0
	}
	return bestCommand, 0.6 + 0.4*float64(bestLen)/float64(len(lower)+1)
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func inScope(command string, scope nlu.Scope) bool {
	for _, f := range scope.Flows {
		if f == command {
			return true
		}
	}
	for _, a := range scope.Actions {
		if a == command {
			return true
		}
	}
	for _, g := range scope.GlobalIntents {
		if g == command {
			return true
		}
	}
	return false
}

func (p *Provider) UnderstandFull(_ context.Context, userMessage string, _ []string, scope nlu.Scope) (nlu.FullResult, error) {
	lower := strings.ToLower(userMessage)

	if containsAny(lower, p.cancelWords) && inScope("cancel_flow", scope) {
		return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "cancel_flow", Confidence: 0.9, Reasoning: "matched cancel vocabulary"}, nil
	}

	command, confidence := p.matchCommand(userMessage)
	if command == "" {
		return nlu.FullResult{MessageType: nlu.MessageOutOfScope, Confidence: 0.3, Reasoning: "no pattern matched"}, nil
	}
	if !inScope(command, scope) {
		return nlu.FullResult{MessageType: nlu.MessageOutOfScope, Command: command, Confidence: confidence, Reasoning: fmt.Sprintf("%q matched but is out of the current scope", command)}, nil
	}
	return nlu.FullResult{MessageType: nlu.MessageIntent, Command: command, Confidence: confidence, Reasoning: "keyword match"}, nil
}

func (p *Provider) UnderstandSlot(_ context.Context, userMessage string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error) {
	lower := strings.ToLower(userMessage)

	if containsAny(lower, p.cancelWords) {
		return nlu.SlotResult{Kind: nlu.KindCancellation, Confidence: 0.9}, nil
	}
	if containsAny(lower, p.confirmWords) {
		return nlu.SlotResult{Kind: nlu.KindConfirmation, Value: true, Confidence: 0.85}, nil
	}
	if containsAny(lower, p.denyWords) {
		return nlu.SlotResult{Kind: nlu.KindConfirmation, Value: false, Confidence: 0.85}, nil
	}
	if strings.HasSuffix(strings.TrimSpace(userMessage), "?") {
		return nlu.SlotResult{Kind: nlu.KindQuestion, Confidence: 0.7}, nil
	}
	if command, confidence := p.matchCommand(userMessage); command != "" && inScope(command, scope) {
		return nlu.SlotResult{Kind: nlu.KindIntentChange, TargetSlot: waitingSlot, Confidence: confidence}, nil
	}

	return nlu.SlotResult{Kind: nlu.KindSlotValue, Value: strings.TrimSpace(userMessage), TargetSlot: waitingSlot, Confidence: 0.5}, nil
}

// Generate produces a deterministic, templated reply instead of calling a
// model: the instruction followed by a sorted rendering of context. It
// exists so `generate` steps can run in tests and offline deployments
// without an LLM dependency; hosts that need natural prose should wire
// anthropicnlu or openainlu instead.
func (p *Provider) Generate(_ context.Context, instruction string, context map[string]any) (string, error) {
	if len(context) == 0 {
		return instruction, nil
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(instruction)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, context[k])
	}
	return b.String(), nil
}
