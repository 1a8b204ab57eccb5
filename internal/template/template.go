// Package template extracts variables from prompt templates and renders
// templates with variable values, for each supported template syntax.
package template

import (
	"strings"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// ExtractVariables returns the variable names referenced in text under the
// given format, in order of first appearance and without duplicates.
// NONE and JSON_PATH templates reference no variables through their text.
func ExtractVariables(text string, format model.TemplateFormat) []string {
	var names []string
	switch format {
	case model.TemplateFormatMustache:
		names = scanMustache(text, nil)
	case model.TemplateFormatFString:
		names = scanFString(text, nil)
	default:
		return nil
	}
	return dedupe(names)
}

// Render substitutes known variables into text. References to unknown
// variables are left as written so a partially filled template stays legible.
func Render(text string, format model.TemplateFormat, vars map[string]string) string {
	var b strings.Builder
	switch format {
	case model.TemplateFormatMustache:
		scanMustache(text, &renderer{b: &b, vars: vars})
	case model.TemplateFormatFString:
		scanFString(text, &renderer{b: &b, vars: vars})
	default:
		return text
	}
	return b.String()
}

// renderer receives literal text and variable references from a scanner.
// A nil renderer means the scanner only collects names.
type renderer struct {
	b    *strings.Builder
	vars map[string]string
}

func (r *renderer) literal(s string) {
	if r != nil {
		r.b.WriteString(s)
	}
}

func (r *renderer) variable(name, raw string) {
	if r == nil {
		return
	}
	if v, ok := r.vars[name]; ok {
		r.b.WriteString(v)
		return
	}
	r.b.WriteString(raw)
}

// scanMustache walks {{ name }} references. "\{{" is an escaped literal,
// "{{! ... }}" is a comment, section openers (#, ^) count as references to
// their name, closers (/) and partials (>) are dropped from the name list.
func scanMustache(text string, r *renderer) []string {
	var names []string
	i := 0
	for i < len(text) {
		if text[i] == '\\' && strings.HasPrefix(text[i+1:], "{{") {
			r.literal("{{")
			i += 3
			continue
		}
		if !strings.HasPrefix(text[i:], "{{") {
			r.literal(text[i : i+1])
			i++
			continue
		}

		open, closeTok := "{{", "}}"
		if strings.HasPrefix(text[i:], "{{{") {
			open, closeTok = "{{{", "}}}"
		}
		end := strings.Index(text[i+len(open):], closeTok)
		if end < 0 {
			r.literal(text[i:])
			break
		}
		raw := text[i : i+len(open)+end+len(closeTok)]
		content := strings.TrimSpace(text[i+len(open) : i+len(open)+end])
		i += len(raw)

		name, keep := mustacheName(content)
		if !keep {
			if strings.HasPrefix(content, "!") {
				continue
			}
			r.literal(raw)
			continue
		}
		names = append(names, name)
		r.variable(name, raw)
	}
	return names
}

func mustacheName(content string) (string, bool) {
	if content == "" {
		return "", false
	}
	switch content[0] {
	case '!', '/', '>':
		return "", false
	case '#', '^', '&':
		content = strings.TrimSpace(content[1:])
	}
	if content == "" {
		return "", false
	}
	return content, true
}

// scanFString walks {name} references. "{{" and "}}" are literal braces;
// conversion (!r) and format spec (:>10) suffixes are not part of the name.
func scanFString(text string, r *renderer) []string {
	var names []string
	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], "{{"):
			r.literal("{")
			i += 2
		case strings.HasPrefix(text[i:], "}}"):
			r.literal("}")
			i += 2
		case text[i] == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				r.literal(text[i:])
				return names
			}
			raw := text[i : i+end+2]
			content := strings.TrimSpace(text[i+1 : i+1+end])
			i += len(raw)
			name := content
			if cut := strings.IndexAny(name, ":!"); cut >= 0 {
				name = strings.TrimSpace(name[:cut])
			}
			if name == "" {
				r.literal(raw)
				continue
			}
			names = append(names, name)
			r.variable(name, raw)
		default:
			r.literal(text[i : i+1])
			i++
		}
	}
	return names
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
