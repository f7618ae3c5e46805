// Package openainlu implements nlu.Understander and nlu.Generator against
// OpenAI's chat completions API, grounded on dshills-langgraph-go/graph/
// model/openai's ChatModel adapter: the same openaiClient seam, retry loop
// over transient errors (timeout/network/5xx substrings, rate-limit
// backoff), and function-calling conversion.
//
// Structured extraction forces a single function call shaped like
// nlu.FullResult / nlu.SlotResult via tool_choice, the same technique
// anthropicnlu uses, translated to OpenAI's ChatCompletionToolParam.
package openainlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/jmorenobl/soni/nlu"
)

const defaultModel = "gpt-4o"

type openaiClient interface {
	createToolCall(ctx context.Context, systemPrompt, userMessage string, tool openaisdk.ChatCompletionToolParam) (json.RawMessage, error)
	complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Provider implements nlu.Understander and nlu.Generator over OpenAI chat
// models, retrying transient failures the way the teacher's ChatModel does.
type Provider struct {
	client     openaiClient
	maxRetries int
	retryDelay time.Duration
}

// New returns a Provider authenticating with apiKey. modelName defaults to
// "gpt-4o" when empty.
func New(apiKey, modelName string) *Provider {
	if modelName == "" {
		modelName = defaultModel
	}
	return &Provider{
		client:     &defaultClient{apiKey: apiKey, modelName: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func (p *Provider) withRetry(ctx context.Context, call func() (json.RawMessage, error)) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransientError(err) {
			return nil, err
		}
		if attempt >= p.maxRetries {
			break
		}
		select {
		case <-time.After(p.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("openai request failed after %d retries: %w", p.maxRetries, lastErr)
}

func (p *Provider) UnderstandFull(ctx context.Context, userMessage string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
	system := fullSystemPrompt(history, scope)
	raw, err := p.withRetry(ctx, func() (json.RawMessage, error) {
		return p.client.createToolCall(ctx, system, userMessage, fullResultTool())
	})
	if err != nil {
		return nlu.FullResult{}, fmt.Errorf("openainlu: understand_full: %w", err)
	}
	var decoded struct {
		MessageType string         `json:"message_type"`
		Command     string         `json:"command"`
		Slots       map[string]any `json:"slots"`
		Confidence  float64        `json:"confidence"`
		Reasoning   string         `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nlu.FullResult{}, fmt.Errorf("openainlu: decode understand_full arguments: %w", err)
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
	raw, err := p.withRetry(ctx, func() (json.RawMessage, error) {
		return p.client.createToolCall(ctx, system, userMessage, slotResultTool())
	})
	if err != nil {
		return nlu.SlotResult{}, fmt.Errorf("openainlu: understand_slot: %w", err)
	}
	var decoded struct {
		Kind       string  `json:"kind"`
		Value      any     `json:"value"`
		TargetSlot string  `json:"target_slot"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nlu.SlotResult{}, fmt.Errorf("openainlu: decode understand_slot arguments: %w", err)
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
		return "", fmt.Errorf("openainlu: generate: %w", err)
	}
	return text, nil
}

func fullSystemPrompt(history []string, scope nlu.Scope) string {
	return fmt.Sprintf(
		"Classify the user's message. Allowed commands: %v. Allowed global intents: %v. Unfilled slots: %v. Recent turns: %v. Call the function exactly once.",
		scope.Flows, scope.GlobalIntents, scope.UnfilledSlots, history,
	)
}

func slotSystemPrompt(waitingSlot string, scope nlu.Scope) string {
	return fmt.Sprintf(
		"The user was asked to provide slot %q. Decide whether they supplied a value, changed intent, asked a question, or something else. Allowed commands: %v.",
		waitingSlot, scope.Flows,
	)
}

func fullResultTool() openaisdk.ChatCompletionToolParam {
	return openaisdk.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        "emit_understanding",
			Description: openaisdk.String("Report the classified message type, command, and extracted slots"),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"message_type": map[string]any{"type": "string"},
					"command":      map[string]any{"type": "string"},
					"slots":        map[string]any{"type": "object"},
					"confidence":   map[string]any{"type": "number"},
					"reasoning":    map[string]any{"type": "string"},
				},
				"required": []string{"message_type", "confidence"},
			},
		},
	}
}

func slotResultTool() openaisdk.ChatCompletionToolParam {
	return openaisdk.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        "emit_slot_understanding",
			Description: openaisdk.String("Report how the reply relates to the pending slot"),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"kind":        map[string]any{"type": "string"},
					"value":       map[string]any{},
					"target_slot": map[string]any{"type": "string"},
					"confidence":  map[string]any{"type": "number"},
				},
				"required": []string{"kind", "confidence"},
			},
		},
	}
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "rate limit", "503", "502", "500"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) createToolCall(ctx context.Context, systemPrompt, userMessage string, tool openaisdk.ChatCompletionToolParam) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	messages := []openaisdk.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(userMessage))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: messages,
		Tools:    []openaisdk.ChatCompletionToolParam{tool},
		ToolChoice: openaisdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openaisdk.ChatCompletionNamedToolChoiceParam{
				Function: openaisdk.ChatCompletionNamedToolChoiceFunctionParam{Name: tool.Function.Name},
			},
		},
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, errors.New("openai response contained no tool call")
	}
	return json.RawMessage(resp.Choices[0].Message.ToolCalls[0].Function.Arguments), nil
}

func (c *defaultClient) complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("openai API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	messages := []openaisdk.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(userMessage))

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
