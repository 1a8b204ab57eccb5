// Command kaiwactl works with prompt versions from the terminal. It pulls
// them from a running server, lists their template variables, renders and
// diffs them, and prints provider tool schemas.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ashita-ai/kaiwa/internal/integrity"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
)

const usage = `usage: kaiwactl <command> [flags] [args]

commands:
  vars   <prompt.json>            list template variables
  render <prompt.json> -var k=v   render messages with variable values
  diff   <a.json> <b.json>        compare two prompt versions
  schema <provider>               print a provider's tool schema
  pull   <name> [ref]             download a prompt version from a server
`

// errUsage reports a malformed command line. The message has already been
// printed when it is returned.
var errUsage = errors.New("usage")

// errDifferent makes diff exit 1 when the inputs differ, like diff(1).
var errDifferent = errors.New("prompts differ")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "vars":
		err = runVars(rest, stdout, stderr)
	case "render":
		err = runRender(rest, stdout, stderr)
	case "diff":
		err = runDiff(rest, stdout, stderr)
	case "schema":
		err = runSchema(rest, stdout, stderr)
	case "pull":
		err = runPull(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "kaiwactl: unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errDifferent):
		return 1
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(stderr, "kaiwactl: %v\n", err)
		return 1
	}
}

// parseArgs parses flags that may appear before, between or after
// positional arguments, which the flag package alone does not allow.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			// The flag package has already reported the problem.
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, errUsage
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// varFlag collects repeated -var name=value flags.
type varFlag map[string]string

func (v varFlag) String() string {
	pairs := make([]string, 0, len(v))
	for k, val := range v {
		pairs = append(pairs, k+"="+val)
	}
	return strings.Join(pairs, ",")
}

func (v varFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[name] = value
	return nil
}

// promptFile is a prompt version loaded from disk, as the playground would
// see it after loading the version into a fresh instance.
type promptFile struct {
	Path     string
	Format   model.TemplateFormat
	Instance playground.DenormalizedInstance
	// Tampered is set when the file carries a content hash that no longer
	// matches its content, e.g. after a hand edit.
	Tampered bool
}

// loadPrompt reads a prompt version exported by the HTTP API
// (GET /v1/prompts/{name}/versions/{ref}), either bare or still wrapped in
// the response envelope.
func loadPrompt(path string) (promptFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return promptFile{}, err
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return promptFile{}, fmt.Errorf("%s: decode prompt version: %w", path, err)
	}
	if len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	var pv model.PromptVersion
	if err := json.Unmarshal(raw, &pv); err != nil {
		return promptFile{}, fmt.Errorf("%s: decode prompt version: %w", path, err)
	}
	draft, err := playground.InstanceFromPromptVersion(pv, model.PromptRef{ID: pv.PromptID})
	if err != nil {
		return promptFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return promptFile{
		Path:     path,
		Format:   *draft.TemplateFormat,
		Tampered: pv.ContentHash != "" && !integrity.VerifyContentHash(pv.ContentHash, pv),
		Instance: playground.DenormalizedInstance{
			Model:      draft.Instance.Model,
			Tools:      draft.Instance.Tools,
			ToolChoice: draft.Instance.ToolChoice,
			Messages:   draft.Messages,
			Prompt:     draft.Instance.Prompt,
		},
	}, nil
}

// loadPrompts loads every path and warns about files edited since export.
func loadPrompts(stderr io.Writer, paths ...string) ([]promptFile, error) {
	out := make([]promptFile, 0, len(paths))
	for _, path := range paths {
		pf, err := loadPrompt(path)
		if err != nil {
			return nil, err
		}
		if pf.Tampered {
			fmt.Fprintf(stderr, "kaiwactl: warning: %s: content_hash does not match the prompt content\n", path)
		}
		out = append(out, pf)
	}
	return out, nil
}
