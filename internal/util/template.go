package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// forbiddenDirectives are rejected before parsing so an operator-supplied
// prompt cannot call functions or pull in other templates.
var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

// parsed templates keyed by their source text
var templateCache sync.Map

// RenderTemplate renders a prompt template with the given data.
// Keys referenced by the template must be present in data.
func RenderTemplate(tmpl string, data map[string]interface{}) (string, error) {
	t, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// ValidateTemplate parses tmpl without executing it
func ValidateTemplate(tmpl string) error {
	_, err := parseTemplate(tmpl)
	return err
}

// ClearTemplateCache drops every parsed template
func ClearTemplateCache() {
	templateCache.Range(func(key, _ any) bool {
		templateCache.Delete(key)
		return true
	})
}

func parseTemplate(tmpl string) (*template.Template, error) {
	for _, directive := range forbiddenDirectives {
		if strings.Contains(tmpl, directive) {
			return nil, fmt.Errorf("template contains forbidden directive: %s", directive)
		}
	}

	if cached, ok := templateCache.Load(tmpl); ok {
		return cached.(*template.Template), nil
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	actual, _ := templateCache.LoadOrStore(tmpl, t)
	return actual.(*template.Template), nil
}

// TruncateString truncates a string to maxLen runes (Unicode-safe)
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
