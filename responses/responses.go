// Package responses implements §6.2's response-table resolution: turning a
// named entry plus a requested language into rendered text, following
// session language → default language → bare default → first translation →
// key name.
//
// Grounded on the teacher's template_manager.go: that file's language
// handling is limited to golang.org/x/text/cases title-casing inside
// template functions, but it establishes this project's use of
// golang.org/x/text for any locale-sensitive text. This package extends
// that into proper BCP 47 tag matching (golang.org/x/text/language) since
// the teacher itself has no multi-language response table.
package responses

import (
	"math/rand/v2"

	"golang.org/x/text/language"

	"github.com/jmorenobl/soni/dsl"
)

// Table resolves named response entries for a configured set of supported
// languages, implementing nodeexec.ResponseResolver.
type Table struct {
	entries         map[string]dsl.ResponseEntry
	defaultLanguage string
	matcher         language.Matcher
	tags            []language.Tag

	// pick selects an index in [0, n) for variation selection; overridable
	// in tests for deterministic output. Defaults to math/rand/v2.
	pick func(n int) int
}

// New builds a Table from a document's responses section and its i18n
// settings (§6.1's `i18n.default_language`/`i18n.supported_languages`).
func New(entries map[string]dsl.ResponseEntry, settings dsl.Settings) *Table {
	defaultLanguage := settings.I18n.DefaultLanguage
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}

	supported := settings.I18n.SupportedLanguages
	if len(supported) == 0 {
		supported = []string{defaultLanguage}
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, language.Make(s))
	}

	return &Table{
		entries:         entries,
		defaultLanguage: defaultLanguage,
		matcher:         language.NewMatcher(tags),
		tags:            tags,
		pick:            rand.IntN,
	}
}

// Resolve implements nodeexec.ResponseResolver. If name isn't a known
// response entry, the name itself is returned as a literal with ok=false
// so callers can distinguish "rendered text" from "fell through to the
// key name" per §6.2's final fallback step.
func (t *Table) Resolve(name, requestedLanguage string) (string, bool) {
	entry, ok := t.entries[name]
	if !ok {
		return name, false
	}

	lang := t.matchLanguage(requestedLanguage)

	if variant, ok := entry.ByLanguage[lang]; ok {
		if text := t.pickText(variant.Default, variant.Variations); text != "" {
			return text, true
		}
	}
	if lang != t.defaultLanguage {
		if variant, ok := entry.ByLanguage[t.defaultLanguage]; ok {
			if text := t.pickText(variant.Default, variant.Variations); text != "" {
				return text, true
			}
		}
	}
	if text := t.pickText(entry.Default, entry.Variations); text != "" {
		return text, true
	}
	for _, variant := range entry.ByLanguage {
		if variant.Default != "" {
			return variant.Default, true
		}
		if len(variant.Variations) > 0 {
			return variant.Variations[0], true
		}
	}
	return name, false
}

// matchLanguage maps an arbitrary requested tag onto the closest supported
// language via golang.org/x/text/language's matcher, falling back to the
// table's default when requestedLanguage is empty or unparseable.
func (t *Table) matchLanguage(requestedLanguage string) string {
	if requestedLanguage == "" {
		return t.defaultLanguage
	}
	tag, _, confidence := t.matcher.Match(language.Make(requestedLanguage))
	if confidence == language.No {
		return t.defaultLanguage
	}
	base, _ := tag.Base()
	return base.String()
}

func (t *Table) pickText(defaultText string, variations []string) string {
	if len(variations) > 0 {
		return variations[t.pick(len(variations))]
	}
	return defaultText
}
