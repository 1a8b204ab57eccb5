package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/provider"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("kaiwactl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runVars(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("vars", stderr)
	inputPath := fs.String("input", "", "JSON input file for JSON_PATH templates")
	asJSON := fs.Bool("json", false, "print names and values as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "usage: kaiwactl vars [-input input.json] [-json] <prompt.json>")
		return errUsage
	}

	loaded, err := loadPrompts(stderr, pos[0])
	if err != nil {
		return err
	}
	pf := loaded[0]
	var input playground.Input
	if *inputPath != "" {
		raw, err := os.ReadFile(*inputPath)
		if err != nil {
			return err
		}
		input.JSONInput = string(raw)
	}

	vs := playground.DeriveVariables([]playground.DenormalizedInstance{pf.Instance}, pf.Format, input)
	if *asJSON {
		return writeJSON(stdout, map[string]any{
			"template_format": pf.Format,
			"variables":       vs,
		})
	}
	for _, k := range vs.Keys {
		if v := vs.Values[k]; v != "" {
			fmt.Fprintf(stdout, "%s=%s\n", k, v)
		} else {
			fmt.Fprintln(stdout, k)
		}
	}
	return nil
}

func runRender(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("render", stderr)
	vars := varFlag{}
	fs.Var(vars, "var", "variable value as name=value (repeatable)")
	style := fs.String("style", "auto", "glamour style: auto, dark, light, notty, ascii")
	plain := fs.Bool("plain", false, "print plain text instead of styled markdown")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "usage: kaiwactl render [-var name=value]... [-plain] <prompt.json>")
		return errUsage
	}

	loaded, err := loadPrompts(stderr, pos[0])
	if err != nil {
		return err
	}
	pf := loaded[0]
	rendered := playground.RenderInstance(pf.Instance, pf.Format, vars)

	doc := promptMarkdown(rendered)
	if *plain {
		_, err := io.WriteString(stdout, doc)
		return err
	}
	out, err := renderMarkdown(doc, *style)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, out)
	return err
}

// promptMarkdown lays out a rendered instance as a markdown document with one
// section per message.
func promptMarkdown(inst playground.DenormalizedInstance) string {
	var b strings.Builder
	name := ""
	if inst.Model.ModelName != nil {
		name = *inst.Model.ModelName
	}
	fmt.Fprintf(&b, "# %s %s\n\n", inst.Model.Provider, name)
	for i, m := range inst.Messages {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, m.Role)
		if text := m.Text(); text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
		if len(m.ToolCalls) > 0 {
			b.WriteString("```json\n")
			b.WriteString(jsonutil.SafelyStringifyJSON(m.ToolCalls, true).JSON)
			b.WriteString("\n```\n\n")
		}
	}
	if len(inst.Tools) > 0 {
		b.WriteString("## Tools\n\n")
		for i, t := range inst.Tools {
			toolName, ok := provider.ToolName(inst.Model.Provider, t.Definition)
			if !ok {
				toolName = fmt.Sprintf("tool %d", i+1)
			}
			fmt.Fprintf(&b, "- %s\n", toolName)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderMarkdown(doc, style string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(doc)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

func runDiff(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("diff", stderr)
	noColor := fs.Bool("no-color", false, "disable coloured output")
	asJSON := fs.Bool("json", false, "print the diff as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		fmt.Fprintln(stderr, "usage: kaiwactl diff [-no-color] [-json] <a.json> <b.json>")
		return errUsage
	}

	loaded, err := loadPrompts(stderr, pos[0], pos[1])
	if err != nil {
		return err
	}
	a, b := loaded[0], loaded[1]
	d := playground.DiffInstances(a.Instance, b.Instance)

	if *asJSON {
		if err := writeJSON(stdout, d); err != nil {
			return err
		}
	} else {
		printDiff(stdout, a, b, d, *noColor)
	}
	if !d.Equal() {
		return errDifferent
	}
	return nil
}

type palette struct {
	header, insert, delete, faint *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		header: color.New(color.Bold),
		insert: color.New(color.FgGreen),
		delete: color.New(color.FgRed, color.CrossedOut),
		faint:  color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{p.header, p.insert, p.delete, p.faint} {
			c.DisableColor()
		}
	}
	return p
}

func printDiff(w io.Writer, a, b promptFile, d playground.InstanceDiff, noColor bool) {
	p := newPalette(noColor)
	p.header.Fprintf(w, "--- %s\n+++ %s\n", a.Path, b.Path)
	if d.Equal() {
		p.faint.Fprintln(w, "no differences")
		return
	}

	if d.ModelChanged {
		p.header.Fprintln(w, "model:")
		p.delete.Fprintf(w, "- %s\n", modelLabel(a.Instance.Model))
		p.insert.Fprintf(w, "+ %s\n", modelLabel(b.Instance.Model))
	}
	for _, m := range d.Messages {
		if !m.Changed {
			continue
		}
		p.header.Fprintf(w, "message %d (%s):\n", m.Index+1, roleLabel(m))
		// Spans carry markers so the diff survives without colour.
		for _, span := range m.Spans {
			switch span.Kind {
			case playground.SpanInsert:
				p.insert.Fprintf(w, "{+%s+}", span.Text)
			case playground.SpanDelete:
				p.delete.Fprintf(w, "[-%s-]", span.Text)
			default:
				fmt.Fprint(w, span.Text)
			}
		}
		fmt.Fprintln(w)
	}
	if len(d.Parameters) > 0 {
		p.header.Fprintln(w, "invocation parameters:")
		for _, pd := range d.Parameters {
			p.delete.Fprintf(w, "- %s: %s\n", pd.Name, paramLabel(pd.A))
			p.insert.Fprintf(w, "+ %s: %s\n", pd.Name, paramLabel(pd.B))
		}
	}
	if d.ToolsChanged {
		p.header.Fprintf(w, "tools: %d -> %d definitions changed\n", len(a.Instance.Tools), len(b.Instance.Tools))
	}
}

func modelLabel(m model.ModelConfig) string {
	if m.ModelName == nil {
		return string(m.Provider)
	}
	return string(m.Provider) + " " + *m.ModelName
}

func roleLabel(m playground.MessageDiff) string {
	switch {
	case m.RoleA == m.RoleB:
		return string(m.RoleA)
	case m.RoleA == "":
		return "added " + string(m.RoleB)
	case m.RoleB == "":
		return "removed " + string(m.RoleA)
	default:
		return string(m.RoleA) + " -> " + string(m.RoleB)
	}
}

func paramLabel(v any) string {
	if v == nil {
		return "(unset)"
	}
	return jsonutil.ToString(v)
}

func runSchema(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("schema", stderr)
	kind := fs.String("kind", "definition", "schema kind: definition or call")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "usage: kaiwactl schema [-kind definition|call] <provider>")
		return errUsage
	}

	p, err := model.ParseModelProvider(strings.ToUpper(pos[0]))
	if err != nil {
		return err
	}
	var (
		schema map[string]any
		ok     bool
	)
	switch *kind {
	case "definition":
		schema, ok, err = provider.ToolDefinitionSchema(p)
	case "call":
		schema, ok, err = provider.ToolCallSchema(p)
	default:
		return fmt.Errorf("-kind must be definition or call, got %q", *kind)
	}
	if err != nil {
		return err
	}
	starter, err := provider.DefaultToolDefinition(p, 1)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"provider":                p,
		"kind":                    *kind,
		"validated":               ok,
		"schema":                  schema,
		"default_tool_definition": starter,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
