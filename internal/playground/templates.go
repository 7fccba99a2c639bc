package playground

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"livecode/internal/protocol"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Templates maps each language to its starter code.
type Templates map[protocol.Language]string

// DefaultTemplates returns the built-in template table.
func DefaultTemplates() Templates {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("built-in templates: %v", err))
	}
	return t
}

// ParseTemplates decodes a YAML mapping of language name to code.
func ParseTemplates(data []byte) (Templates, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	t := make(Templates, len(raw))
	for name, code := range raw {
		lang, err := protocol.ParseLanguage(name)
		if err != nil {
			return nil, fmt.Errorf("parse templates: %w", err)
		}
		t[lang] = code
	}
	return t, nil
}

// LoadTemplates reads a template file and layers it over the built-in
// table, so a file only needs the languages it changes.
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	override, err := ParseTemplates(data)
	if err != nil {
		return nil, err
	}

	t := DefaultTemplates()
	for lang, code := range override {
		t[lang] = code
	}
	return t, nil
}

// For returns the starter code for lang, or "" if none is defined.
func (t Templates) For(lang protocol.Language) string {
	return t[lang]
}
