package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// CanonicalName is a provider-agnostic parameter identity used to match
// equivalent parameters across providers that name them differently.
type CanonicalName string

const (
	CanonicalTemperature         CanonicalName = "TEMPERATURE"
	CanonicalMaxCompletionTokens CanonicalName = "MAX_COMPLETION_TOKENS"
	CanonicalStopSequences       CanonicalName = "STOP_SEQUENCES"
	CanonicalTopP                CanonicalName = "TOP_P"
	CanonicalRandomSeed          CanonicalName = "RANDOM_SEED"
	CanonicalToolChoice          CanonicalName = "TOOL_CHOICE"
	CanonicalResponseFormat      CanonicalName = "RESPONSE_FORMAT"
)

// InputField names the value slot of an InvocationParameterInput that a
// definition expects to be filled.
type InputField string

const (
	FieldValueInt        InputField = "value_int"
	FieldValueFloat      InputField = "value_float"
	FieldValueBool       InputField = "value_bool"
	FieldValueString     InputField = "value_string"
	FieldValueJSON       InputField = "value_json"
	FieldValueStringList InputField = "value_string_list"
)

// InvocationParameterDefinition is a server-declared parameter schema entry.
//
// The backend emits one default slot per parameter kind (floatDefaultValue,
// intDefaultValue, ...). Decoding scans every key ending in DefaultValue and
// keeps the first non-null one in DefaultValue.
type InvocationParameterDefinition struct {
	Kind                 string         `json:"__typename,omitempty"`
	InvocationName       string         `json:"invocationName"`
	CanonicalName        *CanonicalName `json:"canonicalName"`
	InvocationInputField InputField     `json:"invocationInputField"`
	Label                string         `json:"label,omitempty"`
	Required             bool           `json:"required,omitempty"`
	MinValue             *float64       `json:"minValue,omitempty"`
	MaxValue             *float64       `json:"maxValue,omitempty"`
	DefaultValue         any            `json:"-"`
}

type definitionAlias InvocationParameterDefinition

// UnmarshalJSON decodes a definition and extracts its default value.
func (d *InvocationParameterDefinition) UnmarshalJSON(b []byte) error {
	var alias definitionAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if strings.HasSuffix(strings.ToLower(k), "defaultvalue") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		var v any
		if err := json.Unmarshal(raw[k], &v); err != nil {
			return err
		}
		if v != nil {
			alias.DefaultValue = v
			break
		}
	}
	*d = InvocationParameterDefinition(alias)
	return nil
}

// MarshalJSON encodes the definition with its default under "defaultValue".
func (d InvocationParameterDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		definitionAlias
		DefaultValue any `json:"defaultValue,omitempty"`
	}{definitionAlias(d), d.DefaultValue})
}

// InvocationParameterInput is a user-set parameter value. Exactly one Value*
// field is expected to be set, the one named by the matching definition.
type InvocationParameterInput struct {
	InvocationName  string         `json:"invocation_name"`
	CanonicalName   *CanonicalName `json:"canonical_name,omitempty"`
	ValueInt        *int64         `json:"value_int,omitempty"`
	ValueFloat      *float64       `json:"value_float,omitempty"`
	ValueBool       *bool          `json:"value_bool,omitempty"`
	ValueString     *string        `json:"value_string,omitempty"`
	ValueJSON       any            `json:"value_json,omitempty"`
	ValueStringList []string       `json:"value_string_list,omitempty"`
}

// CanonicalPtr returns a pointer to c.
func CanonicalPtr(c CanonicalName) *CanonicalName { return &c }
