package dsl

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/jmorenobl/soni/ferrors"
)

// Load reads a flow document from path. The format (YAML, JSON, TOML, ...)
// is inferred from the file extension by viper.
func Load(path string) (*Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ferrors.CompileError{Kind: ferrors.KindSchemaViolation, Message: "reading document: " + err.Error()}
	}
	return fromViper(v)
}

// Parse reads a flow document from raw bytes in the given format ("yaml",
// "json", ...).
func Parse(raw []byte, format string) (*Document, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, &ferrors.CompileError{Kind: ferrors.KindSchemaViolation, Message: "reading document: " + err.Error()}
	}
	return fromViper(v)
}

var topLevelKeys = map[string]bool{
	"version": true, "settings": true, "responses": true,
	"slots": true, "actions": true, "flows": true,
}

func fromViper(v *viper.Viper) (*Document, error) {
	raw := v.AllSettings()
	if err := checkUnknownKeys("", raw, topLevelKeys); err != nil {
		return nil, err
	}

	doc := &Document{
		Settings:  DefaultSettings(),
		Responses: make(map[string]ResponseEntry),
		Slots:     make(map[string]SlotDef),
		Actions:   make(map[string]ActionDef),
		Flows:     make(map[string]FlowDef),
	}

	doc.Version, _ = raw["version"].(string)

	if settingsRaw, ok := raw["settings"]; ok {
		if err := decodeSettings(asMap(settingsRaw), &doc.Settings); err != nil {
			return nil, err
		}
	}

	if respRaw, ok := raw["responses"]; ok {
		for name, val := range asMap(respRaw) {
			doc.Responses[name] = decodeResponseEntry(val)
		}
	}

	if slotsRaw, ok := raw["slots"]; ok {
		for name, val := range asMap(slotsRaw) {
			slot, err := decodeSlot(name, asMap(val))
			if err != nil {
				return nil, err
			}
			doc.Slots[name] = slot
		}
	}

	if actionsRaw, ok := raw["actions"]; ok {
		for name, val := range asMap(actionsRaw) {
			doc.Actions[name] = decodeAction(name, asMap(val))
		}
	}

	if flowsRaw, ok := raw["flows"]; ok {
		for name, val := range asMap(flowsRaw) {
			flow, err := decodeFlow(name, asMap(val))
			if err != nil {
				return nil, err
			}
			if err := flow.Validate(); err != nil {
				return nil, &ferrors.CompileError{Kind: ferrors.KindDuplicateStepID, FlowName: name, Message: err.Error()}
			}
			doc.Flows[name] = flow
		}
	}

	return doc, nil
}

// asMap coerces viper's decoded value (map[string]interface{}) regardless of
// whether it arrived as that exact type (YAML/JSON via viper always
// normalizes to map[string]interface{}, but defensive handling keeps this
// robust against future viper versions).
func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	default:
		return map[string]any{}
	}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func asStringSlice(v any) []string {
	out := make([]string, 0)
	for _, item := range asSlice(v) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// checkUnknownKeys enforces §4.1's "no unknown keys (strict mode)" for a
// single map, with `metadata` buckets always permitted as a schema-free
// escape hatch (§4.1).
func checkUnknownKeys(context string, m map[string]any, allowed map[string]bool) error {
	var unknown []string
	for k := range m {
		if k == "metadata" {
			continue
		}
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ferrors.CompileError{
			Kind:    ferrors.KindSchemaViolation,
			Message: fmt.Sprintf("%sunknown key(s): %s", prefixWithColon(context), strings.Join(unknown, ", ")),
		}
	}
	return nil
}

func prefixWithColon(s string) string {
	if s == "" {
		return ""
	}
	return s + ": "
}
