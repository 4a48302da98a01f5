package runtime

import "fmt"

// NoIndex is passed for steps that do not target a repeated item.
const NoIndex = -1

// StepContext is what a step's validation and presentation see: the
// session as loaded, the item index in play and any reference data
// fetched for the step.
type StepContext struct {
	Session    *Session
	Index      int
	References References
}

// Target returns the map the step's fields live in: items[Index] for
// indexed steps, otherwise the session answers.
func (sc *StepContext) Target(indexed bool) (map[string]any, error) {
	if !indexed {
		return sc.Session.Answers, nil
	}
	return sc.Session.Item(sc.Index)
}

// ValidateFunc checks a normalized payload. It must not mutate the session.
type ValidateFunc func(payload Payload, sc *StepContext) []FieldError

// ApplyFunc writes a valid payload into s. It is only called after
// validation succeeded and only on a clone of the stored session.
type ApplyFunc func(s *Session, payload Payload, index int) error

// PresentFunc maps step state to a plain-data view model.
type PresentFunc func(sc *StepContext, partial Payload, errs []FieldError) any

// StepDefinition declares one wizard step.
//
// Fields lists the answer (or item) fields the step owns; the default
// apply copies exactly those fields from the payload and nothing else.
// MultiValued fields are normalized to []string before validation.
type StepDefinition struct {
	Key         string
	Title       string
	Fields      []string
	MultiValued []string
	Indexed     bool
	Lookups     []string

	Validate ValidateFunc
	Apply    ApplyFunc
	Present  PresentFunc
}

func (d *StepDefinition) validate(payload Payload, sc *StepContext) []FieldError {
	if d.Validate == nil {
		return nil
	}
	return d.Validate(payload, sc)
}

func (d *StepDefinition) apply(s *Session, payload Payload, index int) error {
	if d.Apply != nil {
		return d.Apply(s, payload, index)
	}
	return CopyFields(d.Fields, d.Indexed)(s, payload, index)
}

func (d *StepDefinition) present(sc *StepContext, partial Payload, errs []FieldError) any {
	if d.Present != nil {
		return d.Present(sc, partial, errs)
	}
	return DefaultPresenter(d)(sc, partial, errs)
}

// CopyFields returns an ApplyFunc that copies the named fields from the
// payload into the step's target. A field absent from the payload is
// removed, so re-submitting an emptied checkbox group clears it.
// Applying it twice with the same payload gives the same result.
func CopyFields(fields []string, indexed bool) ApplyFunc {
	return func(s *Session, payload Payload, index int) error {
		target, err := targetOf(s, indexed, index)
		if err != nil {
			return err
		}

		for _, field := range fields {
			v, ok := payload[field]
			if !ok {
				DeletePath(target, field)
				continue
			}
			if err := SetPath(target, field, deepCopy(v)); err != nil {
				return fmt.Errorf("set %s: %w", field, err)
			}
		}
		return nil
	}
}

// DefaultPresenter renders the step's owned fields, overlaid with the
// partial (unsaved) payload when re-rendering after a validation failure.
func DefaultPresenter(d *StepDefinition) PresentFunc {
	return func(sc *StepContext, partial Payload, errs []FieldError) any {
		values := make(map[string]any, len(d.Fields))

		if target, err := sc.Target(d.Indexed); err == nil {
			for _, field := range d.Fields {
				if v, ok := GetPath(target, field); ok {
					values[field] = v
				}
			}
		}

		if partial != nil {
			for _, field := range d.Fields {
				if v, ok := partial[field]; ok {
					values[field] = v
				} else {
					delete(values, field)
				}
			}
		}

		fieldErrors := make(map[string]string, len(errs))
		for _, e := range errs {
			if _, seen := fieldErrors[e.Field]; !seen {
				fieldErrors[e.Field] = e.Message
			}
		}

		return map[string]any{
			"title":      d.Title,
			"values":     values,
			"errors":     fieldErrors,
			"references": sc.References,
		}
	}
}

func targetOf(s *Session, indexed bool, index int) (map[string]any, error) {
	s.ensure()
	if !indexed {
		return s.Answers, nil
	}
	item, err := s.MutableItem(index)
	if err != nil {
		return nil, err
	}
	return item, nil
}
