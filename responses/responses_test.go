package responses

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmorenobl/soni/dsl"
)

func settingsWith(defaultLang string, supported ...string) dsl.Settings {
	var s dsl.Settings
	s.I18n.DefaultLanguage = defaultLang
	s.I18n.SupportedLanguages = supported
	return s
}

func TestResolveReturnsSessionLanguageVariant(t *testing.T) {
	entries := map[string]dsl.ResponseEntry{
		"greeting": {
			Default: "Hello!",
			ByLanguage: map[string]dsl.ResponseVariant{
				"es": {Default: "Hola!"},
			},
		},
	}
	table := New(entries, settingsWith("en", "en", "es"))

	text, ok := table.Resolve("greeting", "es")
	assert.True(t, ok)
	assert.Equal(t, "Hola!", text)
}

func TestResolveFallsBackToDefaultLanguage(t *testing.T) {
	entries := map[string]dsl.ResponseEntry{
		"greeting": {
			ByLanguage: map[string]dsl.ResponseVariant{
				"en": {Default: "Hello!"},
			},
		},
	}
	table := New(entries, settingsWith("en", "en", "fr"))

	text, ok := table.Resolve("greeting", "fr")
	assert.True(t, ok)
	assert.Equal(t, "Hello!", text)
}

func TestResolveFallsBackToBareDefault(t *testing.T) {
	entries := map[string]dsl.ResponseEntry{
		"greeting": {Default: "Hi there"},
	}
	table := New(entries, settingsWith("en", "en"))

	text, ok := table.Resolve("greeting", "de")
	assert.True(t, ok)
	assert.Equal(t, "Hi there", text)
}

func TestResolveFallsBackToFirstTranslation(t *testing.T) {
	entries := map[string]dsl.ResponseEntry{
		"greeting": {
			ByLanguage: map[string]dsl.ResponseVariant{
				"es": {Default: "Hola!"},
			},
		},
	}
	table := New(entries, settingsWith("en", "en"))

	text, ok := table.Resolve("greeting", "en")
	assert.True(t, ok)
	assert.Equal(t, "Hola!", text)
}

func TestResolveUnknownNameReturnsKeyName(t *testing.T) {
	table := New(map[string]dsl.ResponseEntry{}, settingsWith("en", "en"))

	text, ok := table.Resolve("missing_key", "en")
	assert.False(t, ok)
	assert.Equal(t, "missing_key", text)
}

func TestResolvePicksVariationDeterministicallyWithStubPick(t *testing.T) {
	entries := map[string]dsl.ResponseEntry{
		"ack": {Variations: []string{"Got it", "Sure thing", "Noted"}},
	}
	table := New(entries, settingsWith("en", "en"))
	table.pick = func(n int) int { return 2 }

	text, ok := table.Resolve("ack", "en")
	assert.True(t, ok)
	assert.Equal(t, "Noted", text)
}
