// Package invocation reconciles user-set invocation parameters with the
// parameter definitions a model declares.
//
// Inputs and definitions are joined by identity: an exact invocation name
// match, or matching canonical names when both sides carry one. The join is
// what lets parameters survive a switch between providers that name the same
// knob differently (max_tokens vs max_completion_tokens).
package invocation

import (
	"fmt"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// Identifier is the part of an input or definition used for matching.
type Identifier struct {
	InvocationName string
	CanonicalName  *model.CanonicalName
}

// OfInput returns the identity of an input.
func OfInput(in model.InvocationParameterInput) Identifier {
	return Identifier{InvocationName: in.InvocationName, CanonicalName: in.CanonicalName}
}

// OfDefinition returns the identity of a definition.
func OfDefinition(def model.InvocationParameterDefinition) Identifier {
	return Identifier{InvocationName: def.InvocationName, CanonicalName: def.CanonicalName}
}

// AreEqual reports whether a and b name the same parameter.
func AreEqual(a, b Identifier) bool {
	if a.InvocationName == b.InvocationName {
		return true
	}
	return a.CanonicalName != nil && b.CanonicalName != nil && *a.CanonicalName == *b.CanonicalName
}

// FindDefinition returns the first definition matching in.
func FindDefinition(in model.InvocationParameterInput, defs []model.InvocationParameterDefinition) (model.InvocationParameterDefinition, bool) {
	id := OfInput(in)
	for _, def := range defs {
		if AreEqual(id, OfDefinition(def)) {
			return def, true
		}
	}
	return model.InvocationParameterDefinition{}, false
}

// ConstrainToDefinition drops inputs with no matching definition and renames
// the survivors to the matching definition's current invocation name.
// The result is never larger than inputs and inputs is not modified.
func ConstrainToDefinition(inputs []model.InvocationParameterInput, defs []model.InvocationParameterDefinition) []model.InvocationParameterInput {
	out := make([]model.InvocationParameterInput, 0, len(inputs))
	for _, in := range inputs {
		def, ok := FindDefinition(in, defs)
		if !ok {
			continue
		}
		in.InvocationName = def.InvocationName
		if def.CanonicalName != nil {
			c := *def.CanonicalName
			in.CanonicalName = &c
		}
		out = append(out, in)
	}
	return out
}

// MergeWithDefaults fills in definition defaults that the user has not set.
//
// For each definition with a default and an input field: if a matching input
// already holds a value in that field it is left alone; if a matching input
// exists but the field is empty, the default is written into a copy of it;
// otherwise a new input carrying the default is appended. Default values
// that do not fit the target field are skipped.
func MergeWithDefaults(inputs []model.InvocationParameterInput, defs []model.InvocationParameterDefinition) []model.InvocationParameterInput {
	out := make([]model.InvocationParameterInput, len(inputs))
	copy(out, inputs)

	for _, def := range defs {
		if def.DefaultValue == nil || def.InvocationInputField == "" {
			continue
		}
		idx := -1
		for i := range out {
			if AreEqual(OfInput(out[i]), OfDefinition(def)) {
				idx = i
				break
			}
		}
		if idx >= 0 && HasValue(out[idx], def.InvocationInputField) {
			continue
		}
		var target model.InvocationParameterInput
		if idx >= 0 {
			target = out[idx]
		} else {
			target = model.InvocationParameterInput{
				InvocationName: def.InvocationName,
				CanonicalName:  def.CanonicalName,
			}
		}
		filled, err := SetValue(target, def.InvocationInputField, def.DefaultValue)
		if err != nil {
			continue
		}
		if idx >= 0 {
			out[idx] = filled
		} else {
			out = append(out, filled)
		}
	}
	return out
}

// HasValue reports whether the given field of in is set.
func HasValue(in model.InvocationParameterInput, field model.InputField) bool {
	v, _ := ValueFor(in, field)
	return v != nil
}

// ValueFor returns the value held in field, or nil.
func ValueFor(in model.InvocationParameterInput, field model.InputField) (any, error) {
	switch field {
	case model.FieldValueInt:
		if in.ValueInt != nil {
			return *in.ValueInt, nil
		}
	case model.FieldValueFloat:
		if in.ValueFloat != nil {
			return *in.ValueFloat, nil
		}
	case model.FieldValueBool:
		if in.ValueBool != nil {
			return *in.ValueBool, nil
		}
	case model.FieldValueString:
		if in.ValueString != nil {
			return *in.ValueString, nil
		}
	case model.FieldValueJSON:
		if in.ValueJSON != nil {
			return in.ValueJSON, nil
		}
	case model.FieldValueStringList:
		if in.ValueStringList != nil {
			return in.ValueStringList, nil
		}
	default:
		return nil, fmt.Errorf("invocation: unknown input field %q", field)
	}
	return nil, nil
}

// AnyValue returns whichever value slot of in is set.
func AnyValue(in model.InvocationParameterInput) any {
	for _, f := range []model.InputField{
		model.FieldValueInt, model.FieldValueFloat, model.FieldValueBool,
		model.FieldValueString, model.FieldValueJSON, model.FieldValueStringList,
	} {
		if v, _ := ValueFor(in, f); v != nil {
			return v
		}
	}
	return nil
}

// SetValue returns a copy of in with v stored in field. Numeric values
// decoded from JSON (float64) are accepted for integer fields when whole.
func SetValue(in model.InvocationParameterInput, field model.InputField, v any) (model.InvocationParameterInput, error) {
	switch field {
	case model.FieldValueInt:
		n, ok := toInt(v)
		if !ok {
			return in, fmt.Errorf("invocation: %s expects an integer, got %T", in.InvocationName, v)
		}
		in.ValueInt = &n
	case model.FieldValueFloat:
		f, ok := toFloat(v)
		if !ok {
			return in, fmt.Errorf("invocation: %s expects a number, got %T", in.InvocationName, v)
		}
		in.ValueFloat = &f
	case model.FieldValueBool:
		b, ok := v.(bool)
		if !ok {
			return in, fmt.Errorf("invocation: %s expects a boolean, got %T", in.InvocationName, v)
		}
		in.ValueBool = &b
	case model.FieldValueString:
		s, ok := v.(string)
		if !ok {
			return in, fmt.Errorf("invocation: %s expects a string, got %T", in.InvocationName, v)
		}
		in.ValueString = &s
	case model.FieldValueJSON:
		in.ValueJSON = v
	case model.FieldValueStringList:
		list, ok := toStringList(v)
		if !ok {
			return in, fmt.Errorf("invocation: %s expects a list of strings, got %T", in.InvocationName, v)
		}
		in.ValueStringList = list
	default:
		return in, fmt.Errorf("invocation: unknown input field %q", field)
	}
	return in, nil
}

// Upsert replaces the input matching in's identity, or appends it.
func Upsert(inputs []model.InvocationParameterInput, in model.InvocationParameterInput) []model.InvocationParameterInput {
	out := make([]model.InvocationParameterInput, 0, len(inputs)+1)
	replaced := false
	for _, existing := range inputs {
		if !replaced && AreEqual(OfInput(existing), OfInput(in)) {
			out = append(out, in)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, in)
	}
	return out
}

// Delete removes every input matching id.
func Delete(inputs []model.InvocationParameterInput, id Identifier) []model.InvocationParameterInput {
	out := make([]model.InvocationParameterInput, 0, len(inputs))
	for _, existing := range inputs {
		if AreEqual(OfInput(existing), id) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// ToMap flattens inputs into the invocation-name keyed payload sent to a
// model client. Inputs without a value are omitted.
func ToMap(inputs []model.InvocationParameterInput) map[string]any {
	out := make(map[string]any, len(inputs))
	for _, in := range inputs {
		if v := AnyValue(in); v != nil {
			out[in.InvocationName] = v
		}
	}
	return out
}

// Validate checks inputs against their definitions: every required
// definition has a value, and bounded numbers stay within range.
func Validate(inputs []model.InvocationParameterInput, defs []model.InvocationParameterDefinition) error {
	for _, def := range defs {
		var (
			found model.InvocationParameterInput
			ok    bool
		)
		for _, in := range inputs {
			if AreEqual(OfInput(in), OfDefinition(def)) {
				found, ok = in, true
				break
			}
		}
		if !ok || !HasValue(found, def.InvocationInputField) {
			if def.Required {
				return fmt.Errorf("invocation: %s is required", def.InvocationName)
			}
			continue
		}
		v, _ := ValueFor(found, def.InvocationInputField)
		f, isNum := toFloat(v)
		if !isNum {
			continue
		}
		if def.MinValue != nil && f < *def.MinValue {
			return fmt.Errorf("invocation: %s must be >= %g", def.InvocationName, *def.MinValue)
		}
		if def.MaxValue != nil && f > *def.MaxValue {
			return fmt.Errorf("invocation: %s must be <= %g", def.InvocationName, *def.MaxValue)
		}
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStringList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		out := make([]string, len(l))
		copy(out, l)
		return out, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
