// Package anthropicnlu implements nlu.Understander and nlu.Generator against
// Anthropic's Claude API, grounded on dshills-langgraph-go/graph/model/
// anthropic's ChatModel adapter: a thin interface (anthropicClient) wrapping
// the official SDK so tests can substitute a fake, a system-prompt-only
// request builder, and the same Content-block response walk used there for
// ToolUseBlock/TextBlock.
//
// Structured extraction (understand_full / understand_slot) is implemented
// by forcing a single tool call whose input schema mirrors nlu.FullResult /
// nlu.SlotResult, rather than asking the model to emit prose and parsing it;
// generate is a plain, tool-free completion.
package anthropicnlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jmorenobl/soni/nlu"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// anthropicClient is the narrow seam over the SDK, mirroring the teacher's
// anthropicClient interface so tests substitute a fake instead of hitting
// the network.
type anthropicClient interface {
	createMessage(ctx context.Context, systemPrompt, userMessage string, tool anthropicsdk.ToolParam) (json.RawMessage, error)
	complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Provider implements nlu.Understander and nlu.Generator over Claude.
type Provider struct {
	client anthropicClient
}

// New returns a Provider authenticating with apiKey. modelName defaults to
// the latest Sonnet release when empty.
func New(apiKey, modelName string) *Provider {
	if modelName == "" {
		modelName = defaultModel
	}
	return &Provider{client: &defaultClient{apiKey: apiKey, modelName: modelName}}
}

func (p *Provider) UnderstandFull(ctx context.Context, userMessage string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
	system := fullSystemPrompt(history, scope)
	raw, err := p.client.createMessage(ctx, system, userMessage, fullResultTool())
	if err != nil {
		return nlu.FullResult{}, fmt.Errorf("anthropicnlu: understand_full: %w", err)
	}
	var decoded struct {
		MessageType string         `json:"message_type"`
		Command     string         `json:"command"`
		Slots       map[string]any `json:"slots"`
		Confidence  float64        `json:"confidence"`
		Reasoning   string         `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nlu.FullResult{}, fmt.Errorf("anthropicnlu: decode understand_full tool input: %w", err)
	}
	return nlu.FullResult{
		MessageType: nlu.MessageType(decoded.MessageType),
		Command:     decoded.Command,
		Slots:       decoded.Slots,
		Confidence:  decoded.Confidence,
		Reasoning:   decoded.Reasoning,
	}, nil
}

func (p *Provider) UnderstandSlot(ctx context.Context, userMessage string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error) {
	system := slotSystemPrompt(waitingSlot, scope)
	raw, err := p.client.createMessage(ctx, system, userMessage, slotResultTool())
	if err != nil {
		return nlu.SlotResult{}, fmt.Errorf("anthropicnlu: understand_slot: %w", err)
	}
	var decoded struct {
		Kind       string  `json:"kind"`
		Value      any     `json:"value"`
		TargetSlot string  `json:"target_slot"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nlu.SlotResult{}, fmt.Errorf("anthropicnlu: decode understand_slot tool input: %w", err)
	}
	return nlu.SlotResult{
		Kind:       nlu.SlotUnderstandingKind(decoded.Kind),
		Value:      decoded.Value,
		TargetSlot: decoded.TargetSlot,
		Confidence: decoded.Confidence,
	}, nil
}

func (p *Provider) Generate(ctx context.Context, instruction string, context map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString(instruction)
	if len(context) > 0 {
		b.WriteString("\n\ncontext: ")
		enc, _ := json.Marshal(context)
		b.Write(enc)
	}
	text, err := p.client.complete(ctx, "", b.String())
	if err != nil {
		return "", fmt.Errorf("anthropicnlu: generate: %w", err)
	}
	return text, nil
}

func fullSystemPrompt(history []string, scope nlu.Scope) string {
	return fmt.Sprintf(
		"Classify the user's message. Allowed commands: %v. Allowed global intents: %v. Unfilled slots: %v. Recent turns: %v. Emit exactly one tool call.",
		scope.Flows, scope.GlobalIntents, scope.UnfilledSlots, history,
	)
}

func slotSystemPrompt(waitingSlot string, scope nlu.Scope) string {
	return fmt.Sprintf(
		"The user was asked to provide slot %q. Decide whether they supplied a value, changed intent, asked a question, or something else. Allowed commands: %v.",
		waitingSlot, scope.Flows,
	)
}

func fullResultTool() anthropicsdk.ToolParam {
	return anthropicsdk.ToolParam{
		Name:        "emit_understanding",
		Description: anthropicsdk.String("Report the classified message type, command, and extracted slots"),
		InputSchema: anthropicsdk.ToolInputSchemaParam{
			Properties: map[string]any{
				"message_type": map[string]any{"type": "string"},
				"command":      map[string]any{"type": "string"},
				"slots":        map[string]any{"type": "object"},
				"confidence":   map[string]any{"type": "number"},
				"reasoning":    map[string]any{"type": "string"},
			},
			Required: []string{"message_type", "confidence"},
		},
	}
}

func slotResultTool() anthropicsdk.ToolParam {
	return anthropicsdk.ToolParam{
		Name:        "emit_slot_understanding",
		Description: anthropicsdk.String("Report how the reply relates to the pending slot"),
		InputSchema: anthropicsdk.ToolInputSchemaParam{
			Properties: map[string]any{
				"kind":        map[string]any{"type": "string"},
				"value":       map[string]any{},
				"target_slot": map[string]any{"type": "string"},
				"confidence":  map[string]any{"type": "number"},
			},
			Required: []string{"kind", "confidence"},
		},
	}
}

type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) createMessage(ctx context.Context, systemPrompt, userMessage string, tool anthropicsdk.ToolParam) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(userMessage))},
		MaxTokens: 1024,
		Tools:     []anthropicsdk.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropicsdk.ToolChoiceUnionParam{
			OfTool: &anthropicsdk.ToolChoiceToolParam{Name: tool.Name},
		},
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.ToolUseBlock); ok {
			raw, err := json.Marshal(b.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool input: %w", err)
			}
			return raw, nil
		}
	}
	return nil, errors.New("anthropic response contained no tool call")
}

func (c *defaultClient) complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("anthropic API key is required")
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(userMessage))},
		MaxTokens: 1024,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return text.String(), nil
}
