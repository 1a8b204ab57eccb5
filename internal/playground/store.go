// Package playground is the normalized state of one playground session.
//
// A Store owns every message exactly once, in a flat map keyed by message
// id. Instances refer to messages by id from their template, so instances
// that share history never hold divergent copies. Every mutation builds a
// new State from the previous one, replacing only the sub-objects it
// touches, and derived variables are recomputed from scratch before the new
// State is published.
package playground

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kaiwa/internal/invocation"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/provider"
	"github.com/ashita-ai/kaiwa/internal/telemetry"
)

// Store-consistency errors. A mutation that hits one of these leaves the
// store unchanged.
var (
	ErrInstanceNotFound  = errors.New("playground: instance not found")
	ErrMessageNotFound   = errors.New("playground: message not found")
	ErrToolNotFound      = errors.New("playground: tool not found")
	ErrLastInstance      = errors.New("playground: cannot delete the last instance")
	ErrUnknownParameter  = errors.New("playground: parameter not supported by model")
	ErrInvalidToolChoice = errors.New("playground: invalid tool choice")
)

// Input is the top-level input of a session: cached variable values and the
// JSON document used by JSON_PATH templates.
type Input struct {
	VariablesValueCache map[string]string `json:"variables_value_cache"`
	JSONInput           string            `json:"json_input"`
}

// State is an immutable snapshot of a store. Treat every field as read-only;
// the maps and slices are shared with later snapshots.
type State struct {
	Version        uint64                            `json:"version"`
	Instances      []model.Instance                  `json:"instances"`
	Messages       map[model.MessageID]model.Message `json:"messages"`
	TemplateFormat model.TemplateFormat              `json:"template_format"`
	Input          Input                             `json:"input"`
	Streaming      bool                              `json:"streaming"`
	Variables      VariablesState                    `json:"variables"`

	nextInstanceID model.InstanceID
	nextMessageID  model.MessageID
}

// Instance returns the instance with the given id.
func (s State) Instance(id model.InstanceID) (model.Instance, bool) {
	for _, inst := range s.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return model.Instance{}, false
}

func (s State) instanceIndex(id model.InstanceID) (int, error) {
	for i, inst := range s.Instances {
		if inst.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
}

// Seed configures a new store.
type Seed struct {
	TemplateFormat model.TemplateFormat
	Streaming      bool
	// Model is the model of the first instance. Zero means OpenAI with no
	// model selected.
	Model model.ModelConfig
	// Messages is the template of the first instance. Nil uses a system
	// prompt followed by a single templated user turn.
	Messages []model.Message
}

// DefaultMessages is the template of a fresh playground.
func DefaultMessages() []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: model.StrPtr("You are a chatbot")},
		{Role: model.RoleUser, Content: model.StrPtr("{{question}}")},
	}
}

// Listener is called with each newly committed state.
type Listener func(State)

// Store is a concurrency-safe, injectable playground state container.
type Store struct {
	logger    *slog.Logger
	mutations metric.Int64Counter

	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextSubID int

	// notifyMu orders listener calls by version. notified is the last
	// version delivered; commits wait on notifyCond for their turn.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notified   uint64
}

// NewStore returns a store holding a single instance built from seed.
func NewStore(seed Seed, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	counter, _ := telemetry.Meter("kaiwa/playground").Int64Counter("kaiwa.playground.mutations",
		metric.WithDescription("Committed playground store mutations"),
	)

	format := seed.TemplateFormat
	if format == "" {
		format = model.TemplateFormatMustache
	}
	cfg := seed.Model
	if cfg.Provider == "" {
		cfg.Provider = model.ProviderOpenAI
	}
	msgs := seed.Messages
	if msgs == nil {
		msgs = DefaultMessages()
	}

	st := State{
		TemplateFormat: format,
		Streaming:      seed.Streaming,
		Messages:       make(map[model.MessageID]model.Message, len(msgs)),
		Input:          Input{VariablesValueCache: map[string]string{}},
		nextInstanceID: 1,
		nextMessageID:  1,
	}
	inst := model.Instance{ID: st.nextInstanceID, Model: cloneModel(cfg)}
	st.nextInstanceID++
	for _, m := range msgs {
		m.ID = st.nextMessageID
		st.nextMessageID++
		st.Messages[m.ID] = m
		inst.Template = append(inst.Template, m.ID)
	}
	st.Instances = []model.Instance{inst}
	st.Variables, _ = deriveFromState(st)

	store := &Store{
		logger:    logger,
		mutations: counter,
		state:     st,
		listeners: make(map[int]Listener),
		notified:  st.Version,
	}
	store.notifyCond = sync.NewCond(&store.notifyMu)
	return store
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Instance returns one instance.
func (s *Store) Instance(id model.InstanceID) (model.Instance, error) {
	st := s.Snapshot()
	inst, ok := st.Instance(id)
	if !ok {
		return model.Instance{}, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
	}
	return inst, nil
}

// Denormalized returns one instance with its messages embedded.
func (s *Store) Denormalized(id model.InstanceID) (DenormalizedInstance, error) {
	st := s.Snapshot()
	inst, ok := st.Instance(id)
	if !ok {
		return DenormalizedInstance{}, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
	}
	return Denormalize(inst, st.Messages)
}

// Subscribe registers fn to be called after every commit. Calls arrive in
// version order, one at a time; fn must not mutate the store. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// mutate applies fn to a shallow copy of the current state and publishes
// the result. fn must replace, never modify in place, any slice or map it
// changes other than the top-level containers cloned here.
func (s *Store) mutate(op string, fn func(st *State) error) error {
	s.mu.Lock()
	next := s.state
	next.Instances = slices.Clone(s.state.Instances)
	next.Messages = maps.Clone(s.state.Messages)
	next.Input.VariablesValueCache = maps.Clone(s.state.Input.VariablesValueCache)

	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	vars, err := deriveFromState(next)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("playground: derive variables", "op", op, "error", err)
		return err
	}
	next.Variables = vars
	next.Version++
	s.state = next

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if s.mutations != nil {
		s.mutations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
	}

	s.notifyMu.Lock()
	for s.notified != next.Version-1 {
		s.notifyCond.Wait()
	}
	for _, l := range listeners {
		l(next)
	}
	s.notified = next.Version
	s.notifyCond.Broadcast()
	s.notifyMu.Unlock()
	return nil
}

// AddInstanceOptions controls how a new instance is cloned.
type AddInstanceOptions struct {
	// SharedTemplate makes the new instance reference the first instance's
	// messages instead of copying them.
	SharedTemplate bool
}

// AddInstance appends a copy of the first instance and returns its id.
func (s *Store) AddInstance(opts AddInstanceOptions) (model.InstanceID, error) {
	var id model.InstanceID
	err := s.mutate("add_instance", func(st *State) error {
		if len(st.Instances) == 0 {
			return fmt.Errorf("%w: no instance to copy", ErrInstanceNotFound)
		}
		src := st.Instances[0]
		inst := model.Instance{
			ID:         st.nextInstanceID,
			Model:      cloneModel(src.Model),
			Tools:      cloneTools(src.Tools),
			ToolChoice: cloneToolChoice(src.ToolChoice),
			Prompt:     src.Prompt,
		}
		st.nextInstanceID++
		if opts.SharedTemplate {
			inst.Template = slices.Clone(src.Template)
		} else {
			for _, mid := range src.Template {
				m, ok := st.Messages[mid]
				if !ok {
					return fmt.Errorf("%w: %d", ErrMessageNotFound, mid)
				}
				m = cloneMessage(m)
				m.ID = st.nextMessageID
				st.nextMessageID++
				st.Messages[m.ID] = m
				inst.Template = append(inst.Template, m.ID)
			}
		}
		st.Instances = append(st.Instances, inst)
		id = inst.ID
		return nil
	})
	return id, err
}

// AddDraft adds an instance built outside the store, such as one loaded
// from a prompt version or replayed from a span, assigning fresh ids. When
// replace is set, that instance is swapped out in place.
func (s *Store) AddDraft(d InstanceDraft, replace *model.InstanceID) (model.InstanceID, error) {
	var id model.InstanceID
	err := s.mutate("add_draft", func(st *State) error {
		if _, err := provider.Lookup(d.Instance.Model.Provider); err != nil {
			return err
		}
		inst := d.Instance
		inst.ID = st.nextInstanceID
		inst.Template = nil
		inst.Dirty = false
		st.nextInstanceID++
		for _, m := range d.Messages {
			m = cloneMessage(m)
			m.ID = st.nextMessageID
			st.nextMessageID++
			st.Messages[m.ID] = m
			inst.Template = append(inst.Template, m.ID)
		}
		if replace != nil {
			idx, err := st.instanceIndex(*replace)
			if err != nil {
				return err
			}
			st.Instances[idx] = inst
			collectGarbage(st)
		} else {
			st.Instances = append(st.Instances, inst)
		}
		if d.TemplateFormat != nil {
			st.TemplateFormat = *d.TemplateFormat
		}
		id = inst.ID
		return nil
	})
	return id, err
}

// DeleteInstance removes an instance and then garbage-collects messages no
// remaining instance references. It returns the collected message ids.
func (s *Store) DeleteInstance(id model.InstanceID) ([]model.MessageID, error) {
	var removed []model.MessageID
	err := s.mutate("delete_instance", func(st *State) error {
		idx, err := st.instanceIndex(id)
		if err != nil {
			return err
		}
		if len(st.Instances) == 1 {
			return ErrLastInstance
		}
		st.Instances = slices.Delete(st.Instances, idx, idx+1)
		removed = collectGarbage(st)
		return nil
	})
	return removed, err
}

// CollectGarbage removes messages that no instance references and returns
// their ids in ascending order.
func (s *Store) CollectGarbage() ([]model.MessageID, error) {
	var removed []model.MessageID
	err := s.mutate("collect_garbage", func(st *State) error {
		removed = collectGarbage(st)
		return nil
	})
	return removed, err
}

func collectGarbage(st *State) []model.MessageID {
	live := make(map[model.MessageID]struct{}, len(st.Messages))
	for _, inst := range st.Instances {
		for _, mid := range inst.Template {
			live[mid] = struct{}{}
		}
	}
	var removed []model.MessageID
	for mid := range st.Messages {
		if _, ok := live[mid]; !ok {
			removed = append(removed, mid)
		}
	}
	for _, mid := range removed {
		delete(st.Messages, mid)
	}
	slices.Sort(removed)
	return removed
}

// UpdateOptions controls dirty tracking for a mutation.
type UpdateOptions struct {
	// SuppressDirty leaves the dirty flag untouched, for edits that do not
	// diverge from the linked prompt (loading, saving).
	SuppressDirty bool
}

// UpdateInstance applies a structural patch to an instance.
func (s *Store) UpdateInstance(id model.InstanceID, patch model.InstancePatch, opts UpdateOptions) error {
	return s.updateInstance("update_instance", id, opts, func(st *State, inst *model.Instance) error {
		if patch.Model != nil {
			if _, err := provider.Lookup(patch.Model.Provider); err != nil {
				return err
			}
			inst.Model = cloneModel(*patch.Model)
		}
		if patch.Tools != nil {
			inst.Tools = cloneTools(patch.Tools)
		}
		if patch.ToolChoice != nil {
			if err := patch.ToolChoice.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidToolChoice, err)
			}
			inst.ToolChoice = cloneToolChoice(patch.ToolChoice)
		}
		if patch.Template != nil {
			for _, mid := range patch.Template {
				if _, ok := st.Messages[mid]; !ok {
					return fmt.Errorf("%w: %d", ErrMessageNotFound, mid)
				}
			}
			inst.Template = slices.Clone(patch.Template)
		}
		if patch.UnlinkPrompt {
			inst.Prompt = nil
		} else if patch.Prompt != nil {
			ref := *patch.Prompt
			inst.Prompt = &ref
		}
		return nil
	})
}

// updateInstance runs fn against a copy of one instance and stores it back.
func (s *Store) updateInstance(op string, id model.InstanceID, opts UpdateOptions, fn func(st *State, inst *model.Instance) error) error {
	return s.mutate(op, func(st *State) error {
		idx, err := st.instanceIndex(id)
		if err != nil {
			return err
		}
		inst := st.Instances[idx]
		if err := fn(st, &inst); err != nil {
			return err
		}
		if !opts.SuppressDirty {
			inst.Dirty = true
		}
		st.Instances[idx] = inst
		return nil
	})
}

// UpdateModel switches the model of an instance. Parameters are constrained
// to the new model's definitions (renaming equivalents) and missing
// defaults are filled in. When the provider changes tool family, the tool
// choice is reset because its encoding no longer applies.
func (s *Store) UpdateModel(id model.InstanceID, cfg model.ModelConfig) error {
	return s.updateInstance("update_model", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		if _, err := provider.Lookup(cfg.Provider); err != nil {
			return err
		}
		next := cloneModel(cfg)
		if next.SupportedInvocationParameters == nil {
			next.SupportedInvocationParameters = inst.Model.SupportedInvocationParameters
		}
		if next.InvocationParameters == nil {
			next.InvocationParameters = slices.Clone(inst.Model.InvocationParameters)
		}
		if defs := next.SupportedInvocationParameters; len(defs) > 0 {
			next.InvocationParameters = invocation.MergeWithDefaults(
				invocation.ConstrainToDefinition(next.InvocationParameters, defs), defs)
		}
		if inst.Model.Provider != next.Provider && !provider.SameToolFamily(inst.Model.Provider, next.Provider) {
			if inst.ToolChoice != nil {
				inst.ToolChoice = &model.ToolChoice{Type: model.ToolChoiceAuto}
			}
		}
		inst.Model = next
		return nil
	})
}

// SetSupportedInvocationParameters records the parameter definitions the
// selected model declares and reconciles the current inputs against them.
func (s *Store) SetSupportedInvocationParameters(id model.InstanceID, defs []model.InvocationParameterDefinition) error {
	return s.updateInstance("set_supported_parameters", id, UpdateOptions{SuppressDirty: true}, func(_ *State, inst *model.Instance) error {
		m := inst.Model
		m.SupportedInvocationParameters = slices.Clone(defs)
		m.InvocationParameters = invocation.MergeWithDefaults(
			invocation.ConstrainToDefinition(m.InvocationParameters, defs), defs)
		inst.Model = m
		return nil
	})
}

// UpsertInvocationParameter sets one parameter. When the model declares
// definitions, the input must match one of them and is renamed to it.
func (s *Store) UpsertInvocationParameter(id model.InstanceID, in model.InvocationParameterInput) error {
	return s.updateInstance("upsert_parameter", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		m := inst.Model
		defs := m.SupportedInvocationParameters
		if len(defs) > 0 {
			def, ok := invocation.FindDefinition(in, defs)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownParameter, in.InvocationName)
			}
			in.InvocationName = def.InvocationName
			in.CanonicalName = def.CanonicalName
			next := invocation.Upsert(m.InvocationParameters, in)
			if err := invocation.Validate([]model.InvocationParameterInput{in}, []model.InvocationParameterDefinition{withoutRequired(def)}); err != nil {
				return err
			}
			m.InvocationParameters = next
		} else {
			m.InvocationParameters = invocation.Upsert(m.InvocationParameters, in)
		}
		inst.Model = m
		return nil
	})
}

func withoutRequired(def model.InvocationParameterDefinition) model.InvocationParameterDefinition {
	def.Required = false
	return def
}

// DeleteInvocationParameter removes the parameter with the given invocation
// name or its canonical equivalent.
func (s *Store) DeleteInvocationParameter(id model.InstanceID, name string) error {
	return s.updateInstance("delete_parameter", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		m := inst.Model
		ident := invocation.Identifier{InvocationName: name}
		for _, in := range m.InvocationParameters {
			if in.InvocationName == name {
				ident.CanonicalName = in.CanonicalName
				break
			}
		}
		m.InvocationParameters = invocation.Delete(m.InvocationParameters, ident)
		inst.Model = m
		return nil
	})
}

// AddMessages registers msgs under fresh ids and appends them to the
// instance template. It returns the assigned ids.
func (s *Store) AddMessages(id model.InstanceID, msgs []model.Message) ([]model.MessageID, error) {
	var ids []model.MessageID
	err := s.updateInstance("add_messages", id, UpdateOptions{}, func(st *State, inst *model.Instance) error {
		tmpl := slices.Clone(inst.Template)
		for _, m := range msgs {
			role, err := model.ParseRole(string(m.Role))
			if err != nil {
				return err
			}
			m = cloneMessage(m)
			m.Role = role
			m.ID = st.nextMessageID
			st.nextMessageID++
			st.Messages[m.ID] = m
			tmpl = append(tmpl, m.ID)
			ids = append(ids, m.ID)
		}
		inst.Template = tmpl
		return nil
	})
	return ids, err
}

// UpdateMessage patches a message. Every instance referencing it is marked
// dirty unless suppressed.
func (s *Store) UpdateMessage(id model.MessageID, patch model.MessagePatch, opts UpdateOptions) error {
	return s.mutate("update_message", func(st *State) error {
		m, ok := st.Messages[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMessageNotFound, id)
		}
		if patch.Role != nil {
			role, err := model.ParseRole(string(*patch.Role))
			if err != nil {
				return err
			}
			patch.Role = &role
		}
		st.Messages[id] = patch.Apply(cloneMessage(m))
		if opts.SuppressDirty {
			return nil
		}
		for i, inst := range st.Instances {
			if slices.Contains(inst.Template, id) {
				inst.Dirty = true
				st.Instances[i] = inst
			}
		}
		return nil
	})
}

// DeleteMessage removes a message from an instance template. The message
// itself is dropped once no instance references it.
func (s *Store) DeleteMessage(id model.InstanceID, mid model.MessageID) error {
	return s.updateInstance("delete_message", id, UpdateOptions{}, func(st *State, inst *model.Instance) error {
		idx := slices.Index(inst.Template, mid)
		if idx < 0 {
			return fmt.Errorf("%w: %d in instance %d", ErrMessageNotFound, mid, id)
		}
		inst.Template = slices.Delete(slices.Clone(inst.Template), idx, idx+1)
		for _, other := range st.Instances {
			if other.ID != id && slices.Contains(other.Template, mid) {
				return nil
			}
		}
		delete(st.Messages, mid)
		return nil
	})
}

// MoveMessage moves a message to position index of the instance template.
// Out-of-range indexes are clamped.
func (s *Store) MoveMessage(id model.InstanceID, mid model.MessageID, index int) error {
	return s.updateInstance("move_message", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		from := slices.Index(inst.Template, mid)
		if from < 0 {
			return fmt.Errorf("%w: %d in instance %d", ErrMessageNotFound, mid, id)
		}
		tmpl := slices.Delete(slices.Clone(inst.Template), from, from+1)
		index = max(0, min(index, len(tmpl)))
		inst.Template = slices.Insert(tmpl, index, mid)
		return nil
	})
}

// AddTool appends a tool. A nil definition uses the provider's starter
// definition. It returns the new tool id.
func (s *Store) AddTool(id model.InstanceID, editor model.ToolEditorType, def map[string]any) (model.ToolID, error) {
	var tid model.ToolID
	err := s.updateInstance("add_tool", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		tid = inst.NextToolID()
		if def == nil {
			d, err := provider.DefaultToolDefinition(inst.Model.Provider, int(tid))
			if err != nil {
				return err
			}
			def = d
		}
		if editor == "" {
			editor = model.ToolEditorJSON
		}
		tools := cloneTools(inst.Tools)
		tools = append(tools, model.Tool{ID: tid, EditorType: editor, Definition: def})
		inst.Tools = tools
		if inst.ToolChoice == nil {
			inst.ToolChoice = &model.ToolChoice{Type: model.ToolChoiceAuto}
		}
		return nil
	})
	return tid, err
}

// UpdateTool replaces a tool's editor type and definition.
func (s *Store) UpdateTool(id model.InstanceID, tool model.Tool) error {
	return s.updateInstance("update_tool", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		idx := slices.IndexFunc(inst.Tools, func(t model.Tool) bool { return t.ID == tool.ID })
		if idx < 0 {
			return fmt.Errorf("%w: %d", ErrToolNotFound, tool.ID)
		}
		tools := cloneTools(inst.Tools)
		if tool.EditorType == "" {
			tool.EditorType = tools[idx].EditorType
		}
		tools[idx] = tool
		inst.Tools = tools
		return nil
	})
}

// DeleteTool removes a tool. A specific tool choice naming it falls back to
// auto, and the choice is cleared with the last tool.
func (s *Store) DeleteTool(id model.InstanceID, tid model.ToolID) error {
	return s.updateInstance("delete_tool", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		idx := slices.IndexFunc(inst.Tools, func(t model.Tool) bool { return t.ID == tid })
		if idx < 0 {
			return fmt.Errorf("%w: %d", ErrToolNotFound, tid)
		}
		name, _ := provider.ToolName(inst.Model.Provider, inst.Tools[idx].Definition)
		inst.Tools = slices.Delete(cloneTools(inst.Tools), idx, idx+1)
		switch {
		case len(inst.Tools) == 0:
			inst.ToolChoice = nil
		case inst.ToolChoice != nil && inst.ToolChoice.Type == model.ToolChoiceSpecific && inst.ToolChoice.FunctionName == name:
			inst.ToolChoice = &model.ToolChoice{Type: model.ToolChoiceAuto}
		}
		return nil
	})
}

// SetToolChoice sets the tool-choice policy. A specific choice must name
// one of the instance's tools.
func (s *Store) SetToolChoice(id model.InstanceID, choice model.ToolChoice) error {
	return s.updateInstance("set_tool_choice", id, UpdateOptions{}, func(_ *State, inst *model.Instance) error {
		if err := choice.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidToolChoice, err)
		}
		if choice.Type == model.ToolChoiceSpecific {
			found := false
			for _, t := range inst.Tools {
				if name, ok := provider.ToolName(inst.Model.Provider, t.Definition); ok && name == choice.FunctionName {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: no tool named %q", ErrToolNotFound, choice.FunctionName)
			}
		}
		inst.ToolChoice = &choice
		return nil
	})
}

// SetTemplateFormat changes the variable syntax used across all instances.
func (s *Store) SetTemplateFormat(f model.TemplateFormat) error {
	if _, err := model.ParseTemplateFormat(string(f)); err != nil {
		return fmt.Errorf("playground: %w", err)
	}
	return s.mutate("set_template_format", func(st *State) error {
		st.TemplateFormat = f
		return nil
	})
}

// SetVariableValue caches the value of a template variable. Values for
// names not currently referenced are kept for when they reappear.
func (s *Store) SetVariableValue(name, value string) error {
	return s.mutate("set_variable", func(st *State) error {
		st.Input.VariablesValueCache[name] = value
		return nil
	})
}

// SetJSONInput stores the raw JSON input document. Invalid JSON is kept as
// typed; it simply yields no JSON_PATH variables until it parses.
func (s *Store) SetJSONInput(text string) error {
	return s.mutate("set_json_input", func(st *State) error {
		st.Input.JSONInput = text
		return nil
	})
}

// SetStreaming toggles streaming for subsequent runs.
func (s *Store) SetStreaming(on bool) error {
	return s.mutate("set_streaming", func(st *State) error {
		st.Streaming = on
		return nil
	})
}

// MarkClean clears the dirty flag of an instance, typically after it has
// been saved as a prompt version.
func (s *Store) MarkClean(id model.InstanceID) error {
	return s.mutate("mark_clean", func(st *State) error {
		idx, err := st.instanceIndex(id)
		if err != nil {
			return err
		}
		inst := st.Instances[idx]
		inst.Dirty = false
		st.Instances[idx] = inst
		return nil
	})
}

func cloneModel(m model.ModelConfig) model.ModelConfig {
	m.InvocationParameters = slices.Clone(m.InvocationParameters)
	m.SupportedInvocationParameters = slices.Clone(m.SupportedInvocationParameters)
	return m
}

func cloneTools(tools []model.Tool) []model.Tool {
	if tools == nil {
		return nil
	}
	return slices.Clone(tools)
}

func cloneToolChoice(c *model.ToolChoice) *model.ToolChoice {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

func cloneMessage(m model.Message) model.Message {
	if m.Content != nil {
		c := *m.Content
		m.Content = &c
	}
	if m.ToolCallID != nil {
		id := *m.ToolCallID
		m.ToolCallID = &id
	}
	m.ToolCalls = slices.Clone(m.ToolCalls)
	return m
}
