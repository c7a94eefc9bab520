package util

import (
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
}

// Template is a compiled prompt. Text without template actions is kept
// verbatim and rendered without going through text/template.
type Template struct {
	name string
	text string
	tmpl *template.Template
}

// ParseTemplate compiles text so syntax errors surface at load time rather
// than on the first turn.
func ParseTemplate(name, text string) (*Template, error) {
	t := &Template{name: name, text: text}
	if !strings.Contains(text, "{{") {
		return t, nil
	}

	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	t.tmpl = tmpl
	return t, nil
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Render executes the template with data. Missing keys render as "<no value>"
// like text/template does.
func (t *Template) Render(data map[string]any) (string, error) {
	if t.tmpl == nil {
		return t.text, nil
	}

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", t.name, err)
	}
	return sb.String(), nil
}
