package runtime

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormSpec declares a step whose payload is described by a struct type.
//
// Fields are taken from T's json tags; slice fields are multi-valued.
// Struct validation uses `validate` tags. Messages maps "field.rule" or
// "field" to the text shown to the user.
type FormSpec[T any] struct {
	Key      string
	Title    string
	Indexed  bool
	Lookups  []string
	Messages map[string]string

	// Check runs after struct validation succeeds.
	Check func(form *T, sc *StepContext) []FieldError
	// Apply replaces the default field copy.
	Apply ApplyFunc
}

// NewFormStep builds a StepDefinition that decodes the payload into T
// before validating it.
func NewFormStep[T any](spec FormSpec[T]) *StepDefinition {
	fields, multi := formFields(reflect.TypeOf((*T)(nil)).Elem())

	def := &StepDefinition{
		Key:         spec.Key,
		Title:       spec.Title,
		Fields:      fields,
		MultiValued: multi,
		Indexed:     spec.Indexed,
		Lookups:     spec.Lookups,
		Apply:       spec.Apply,
	}

	def.Validate = func(payload Payload, sc *StepContext) []FieldError {
		form, errs := DecodeForm[T](payload, spec.Messages)
		if len(errs) > 0 {
			return errs
		}
		if spec.Check != nil {
			return spec.Check(form, sc)
		}
		return nil
	}

	return def
}

// DecodeForm decodes and validates payload into a new T. Fields that
// cannot be converted are reported before struct rules run.
func DecodeForm[T any](payload Payload, messages map[string]string) (*T, []FieldError) {
	form := new(T)

	var errs []FieldError
	for _, field := range payload.Fields() {
		if err := decodeMap(map[string]any{field: payload[field]}, form, "json"); err != nil {
			errs = append(errs, FieldError{Field: field, Message: message(messages, field, "type")})
		}
	}
	if len(errs) > 0 {
		return form, errs
	}

	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return form, []FieldError{{Field: "", Message: err.Error()}}
		}
		for _, fe := range verrs {
			field := fieldPath(fe)
			errs = append(errs, FieldError{Field: field, Message: message(messages, field, fe.Tag())})
		}
	}
	return form, errs
}

func message(messages map[string]string, field, rule string) string {
	if m, ok := messages[field+"."+rule]; ok {
		return m
	}
	if m, ok := messages[field]; ok {
		return m
	}
	switch rule {
	case "required":
		return fmt.Sprintf("Enter %s", humanize(field))
	case "type":
		return fmt.Sprintf("Enter a valid %s", humanize(field))
	default:
		return fmt.Sprintf("Check %s", humanize(field))
	}
}

// fieldPath strips the struct name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func humanize(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return strings.ReplaceAll(b.String(), ".", " ")
}

func formFields(t reflect.Type) (fields, multi []string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields = append(fields, name)
		if f.Type.Kind() == reflect.Slice {
			multi = append(multi, name)
		}
	}
	return fields, multi
}
