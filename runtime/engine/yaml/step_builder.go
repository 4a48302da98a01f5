package yaml

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/BDNK1/wizflow/runtime"
	"github.com/go-playground/validator/v10"
)

// stepBuilder turns a StepSpec into a runtime.StepDefinition whose
// validate, apply and present functions are driven by the table's data.
type stepBuilder struct {
	evaluator *Evaluator
	l         *slog.Logger
}

type compiledField struct {
	FieldSpec
	when     *Expression
	required bool
	rules    string
}

type compiledCheck struct {
	CheckSpec
	when *Expression
}

type compiledStep struct {
	spec    StepSpec
	fields  []compiledField
	checks  []compiledCheck
	set     map[string]*Expression
	setKey  []string
	flags   map[string]*Expression
	flagKey []string
}

func (b *stepBuilder) build(spec StepSpec) (*runtime.StepDefinition, error) {
	cs, err := b.compile(spec)
	if err != nil {
		return nil, err
	}

	// A step owns its form fields plus everything it derives or clears.
	names := make([]string, 0, len(spec.Fields)+len(spec.Set)+len(spec.Clear))
	var multi []string
	for _, f := range spec.Fields {
		names = append(names, f.Name)
		if f.Multi {
			multi = append(multi, f.Name)
		}
	}
	for _, field := range append(append([]string{}, cs.setKey...), spec.Clear...) {
		if !slices.Contains(names, field) {
			names = append(names, field)
		}
	}

	def := &runtime.StepDefinition{
		Key:         spec.Key,
		Title:       spec.Title,
		Fields:      names,
		MultiValued: multi,
		Indexed:     spec.Indexed,
		Lookups:     spec.Lookups,
	}
	def.Validate = cs.validator(b)
	def.Apply = cs.applier(b, def)
	def.Present = cs.presenter(def)
	return def, nil
}

func (b *stepBuilder) compile(spec StepSpec) (*compiledStep, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("step requires a key")
	}

	cs := &compiledStep{
		spec:  spec,
		set:   make(map[string]*Expression, len(spec.Set)),
		flags: make(map[string]*Expression, len(spec.Flags)),
	}

	seen := make(map[string]bool, len(spec.Fields))
	for _, f := range spec.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("step %s: field requires a name", spec.Key)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("step %s: duplicate field %q", spec.Key, f.Name)
		}
		seen[f.Name] = true

		cf := compiledField{FieldSpec: f}
		for _, rule := range splitRules(f.Rules) {
			if rule == "required" {
				cf.required = true
				continue
			}
			if cf.rules != "" {
				cf.rules += ","
			}
			cf.rules += rule
		}
		if f.When != "" {
			ex, err := b.evaluator.Compile(f.When)
			if err != nil {
				return nil, fmt.Errorf("step %s field %s: %w", spec.Key, f.Name, err)
			}
			cf.when = ex
		}
		if f.Lookup != "" && !slices.Contains(spec.Lookups, f.Lookup) {
			return nil, fmt.Errorf("step %s field %s: lookup %q is not declared in the step's lookups", spec.Key, f.Name, f.Lookup)
		}
		cs.fields = append(cs.fields, cf)
	}

	for _, c := range spec.Checks {
		ex, err := b.evaluator.Compile(c.When)
		if err != nil {
			return nil, fmt.Errorf("step %s check: %w", spec.Key, err)
		}
		cs.checks = append(cs.checks, compiledCheck{CheckSpec: c, when: ex})
	}

	for field, src := range spec.Set {
		ex, err := b.evaluator.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("step %s set %s: %w", spec.Key, field, err)
		}
		cs.set[field] = ex
		cs.setKey = append(cs.setKey, field)
	}
	sort.Strings(cs.setKey)

	for flag, src := range spec.Flags {
		ex, err := b.evaluator.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("step %s flag %s: %w", spec.Key, flag, err)
		}
		cs.flags[flag] = ex
		cs.flagKey = append(cs.flagKey, flag)
	}
	sort.Strings(cs.flagKey)

	return cs, nil
}

func splitRules(rules string) []string {
	var out []string
	for _, r := range strings.Split(rules, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (cs *compiledStep) validator(b *stepBuilder) runtime.ValidateFunc {
	return func(payload runtime.Payload, sc *runtime.StepContext) []runtime.FieldError {
		env := stepEnv(sc.Session, sc.Index, payload)

		var errs []runtime.FieldError
		for _, f := range cs.fields {
			if !cs.shown(b, f, env) {
				continue
			}
			if msg, ok := f.check(payload, sc.References); !ok {
				errs = append(errs, runtime.FieldError{Field: f.Name, Message: msg})
			}
		}
		if len(errs) > 0 {
			return errs
		}

		for _, c := range cs.checks {
			ok, err := b.evaluator.Bool(c.when, env)
			if err != nil {
				b.l.Error("Step check failed to evaluate", "step", cs.spec.Key, "check", c.When, "error", err)
				ok = false
			}
			if !ok {
				errs = append(errs, runtime.FieldError{Field: c.Field, Message: c.Message})
			}
		}
		return errs
	}
}

// shown reports whether f's when condition holds. A condition that fails
// to evaluate keeps the field visible so it is still validated.
func (cs *compiledStep) shown(b *stepBuilder, f compiledField, env map[string]any) bool {
	if f.when == nil {
		return true
	}
	ok, err := b.evaluator.Bool(f.when, env)
	if err != nil {
		b.l.Error("Field condition failed", "step", cs.spec.Key, "field", f.Name, "error", err)
		return true
	}
	return ok
}

// check validates one field and returns the message to show on failure.
func (f compiledField) check(payload runtime.Payload, refs runtime.References) (string, bool) {
	if v, ok := payload[f.Name]; ok && !f.Multi {
		if _, scalar := v.(string); !scalar {
			return f.message("invalid"), false
		}
	}

	var values []string
	if f.Multi {
		values = payload.Strings(f.Name)
	} else if s := strings.TrimSpace(payload.String(f.Name)); s != "" {
		values = []string{s}
	}

	if len(values) == 0 {
		if f.required {
			return f.message("required"), false
		}
		return "", true
	}

	for _, v := range values {
		if f.rules != "" {
			if err := runtime.Validator().Var(v, f.rules); err != nil {
				var verrs validator.ValidationErrors
				if errors.As(err, &verrs) && len(verrs) > 0 {
					return f.message(verrs[0].Tag()), false
				}
				return f.message("invalid"), false
			}
		}
		if len(f.Options) > 0 && !slices.Contains(f.Options, v) {
			return f.message("options"), false
		}
		if f.Lookup != "" && !refs.Contains(f.Lookup, v) {
			return f.message("lookup"), false
		}
	}
	return "", true
}

func (f compiledField) message(rule string) string {
	if m, ok := f.Messages[rule]; ok {
		return m
	}
	if f.Message != "" {
		return f.Message
	}
	if rule == "required" {
		return fmt.Sprintf("Enter %s", f.Name)
	}
	return fmt.Sprintf("Enter a valid %s", f.Name)
}

func (cs *compiledStep) applier(b *stepBuilder, def *runtime.StepDefinition) runtime.ApplyFunc {
	copyFields := runtime.CopyFields(def.Fields, def.Indexed)

	return func(s *runtime.Session, payload runtime.Payload, index int) error {
		// hidden fields were never validated, so they are dropped rather than copied
		before := stepEnv(s, index, payload)
		var hidden []string
		for _, f := range cs.fields {
			if !cs.shown(b, f, before) {
				hidden = append(hidden, f.Name)
			}
		}

		if err := copyFields(s, payload, index); err != nil {
			return err
		}

		target := s.Answers
		if def.Indexed {
			item, err := s.MutableItem(index)
			if err != nil {
				return err
			}
			target = item
		}

		for _, field := range append(hidden, cs.spec.Clear...) {
			runtime.DeletePath(target, field)
		}

		env := stepEnv(s, index, payload)
		for _, field := range cs.setKey {
			v, err := b.evaluator.Run(cs.set[field], env)
			if err != nil {
				return fmt.Errorf("step %s set %s: %w", cs.spec.Key, field, err)
			}
			if err := runtime.SetPath(target, field, v); err != nil {
				return fmt.Errorf("step %s set %s: %w", cs.spec.Key, field, err)
			}
		}

		for _, flag := range cs.flagKey {
			v, err := b.evaluator.Run(cs.flags[flag], env)
			if err != nil {
				return fmt.Errorf("step %s flag %s: %w", cs.spec.Key, flag, err)
			}
			if v == nil {
				delete(s.Flags, runtime.Flag(flag))
				continue
			}
			s.Flags[runtime.Flag(flag)] = v
		}

		if cs.spec.EnsureItem && len(s.Items) == 0 {
			s.AppendItem(nil)
		}
		return nil
	}
}

func (cs *compiledStep) presenter(def *runtime.StepDefinition) runtime.PresentFunc {
	base := runtime.DefaultPresenter(def)

	type fieldView struct {
		Name     string           `json:"name"`
		Multi    bool             `json:"multi,omitempty"`
		Required bool             `json:"required,omitempty"`
		Options  []runtime.Option `json:"options,omitempty"`
	}

	return func(sc *runtime.StepContext, partial runtime.Payload, errs []runtime.FieldError) any {
		out, _ := base(sc, partial, errs).(map[string]any)

		fields := make([]fieldView, 0, len(cs.fields))
		for _, f := range cs.fields {
			fv := fieldView{Name: f.Name, Multi: f.Multi, Required: f.required}
			switch {
			case f.Lookup != "":
				fv.Options = sc.References[f.Lookup]
			case len(f.Options) > 0:
				for _, o := range f.Options {
					fv.Options = append(fv.Options, runtime.Option{Value: o, Label: f.Labels[o]})
				}
			}
			fields = append(fields, fv)
		}
		out["fields"] = fields
		return out
	}
}
