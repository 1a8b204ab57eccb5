package playground

import (
	"slices"
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ashita-ai/kaiwa/internal/invocation"
	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
)

// Span kinds of a text diff.
const (
	SpanEqual  = "equal"
	SpanInsert = "insert"
	SpanDelete = "delete"
)

// DiffSpan is one run of a character-level diff.
type DiffSpan struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// MessageDiff compares the messages at one template position.
type MessageDiff struct {
	Index   int        `json:"index"`
	RoleA   model.Role `json:"role_a,omitempty"`
	RoleB   model.Role `json:"role_b,omitempty"`
	Changed bool       `json:"changed"`
	Spans   []DiffSpan `json:"spans"`
}

// ParameterDiff is one invocation parameter whose value differs.
type ParameterDiff struct {
	Name string `json:"name"`
	A    any    `json:"a"`
	B    any    `json:"b"`
}

// InstanceDiff summarises how two instances differ.
type InstanceDiff struct {
	A            model.InstanceID `json:"a"`
	B            model.InstanceID `json:"b"`
	ModelChanged bool             `json:"model_changed"`
	Messages     []MessageDiff    `json:"messages"`
	Parameters   []ParameterDiff  `json:"parameters,omitempty"`
	ToolsChanged bool             `json:"tools_changed"`
}

// Equal reports whether no difference was found.
func (d InstanceDiff) Equal() bool {
	if d.ModelChanged || d.ToolsChanged || len(d.Parameters) > 0 {
		return false
	}
	for _, m := range d.Messages {
		if m.Changed {
			return false
		}
	}
	return true
}

// DiffInstances compares two instances position by position. Messages
// present on only one side diff against empty text.
func DiffInstances(a, b DenormalizedInstance) InstanceDiff {
	d := InstanceDiff{
		A:            a.ID,
		B:            b.ID,
		ModelChanged: a.Model.Provider != b.Model.Provider || deref(a.Model.ModelName) != deref(b.Model.ModelName),
	}

	dmp := diffmatchpatch.New()
	n := max(len(a.Messages), len(b.Messages))
	for i := range n {
		md := MessageDiff{Index: i}
		var textA, textB string
		if i < len(a.Messages) {
			md.RoleA = a.Messages[i].Role
			textA = a.Messages[i].Text()
		}
		if i < len(b.Messages) {
			md.RoleB = b.Messages[i].Role
			textB = b.Messages[i].Text()
		}
		diffs := dmp.DiffMain(textA, textB, false)
		diffs = dmp.DiffCleanupSemantic(diffs)
		for _, df := range diffs {
			span := DiffSpan{Text: df.Text}
			switch df.Type {
			case diffmatchpatch.DiffInsert:
				span.Kind = SpanInsert
				md.Changed = true
			case diffmatchpatch.DiffDelete:
				span.Kind = SpanDelete
				md.Changed = true
			default:
				span.Kind = SpanEqual
			}
			md.Spans = append(md.Spans, span)
		}
		if md.RoleA != md.RoleB {
			md.Changed = true
		}
		d.Messages = append(d.Messages, md)
	}

	pa := invocation.ToMap(a.Model.InvocationParameters)
	pb := invocation.ToMap(b.Model.InvocationParameters)
	names := make([]string, 0, len(pa)+len(pb))
	for k := range pa {
		names = append(names, k)
	}
	for k := range pb {
		if _, ok := pa[k]; !ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		va, vb := pa[name], pb[name]
		if jsonutil.ToString(va) != jsonutil.ToString(vb) {
			d.Parameters = append(d.Parameters, ParameterDiff{Name: name, A: va, B: vb})
		}
	}

	defsA := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		defsA = append(defsA, jsonutil.ToString(t.Definition))
	}
	defsB := make([]string, 0, len(b.Tools))
	for _, t := range b.Tools {
		defsB = append(defsB, jsonutil.ToString(t.Definition))
	}
	d.ToolsChanged = !slices.Equal(defsA, defsB)
	return d
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
