package runtime

import (
	"fmt"
	"net/url"
	"sort"
)

// Payload is an untyped form submission: each value is either a string or
// a []string.
type Payload map[string]any

// PayloadFromValues converts posted form values. A field with exactly one
// value becomes a scalar string, which is how browsers deliver a checkbox
// group with a single box ticked; NormalizePayload undoes that for fields
// declared multi-valued.
func PayloadFromValues(values url.Values) Payload {
	p := make(Payload, len(values))
	for k, v := range values {
		switch len(v) {
		case 0:
			continue
		case 1:
			p[k] = v[0]
		default:
			vv := make([]string, len(v))
			copy(vv, v)
			p[k] = vv
		}
	}
	return p
}

// PayloadFromJSON converts a decoded JSON object. Nested objects are kept
// as-is; arrays of scalars become []string.
func PayloadFromJSON(body map[string]any) Payload {
	p := make(Payload, len(body))
	for k, v := range body {
		switch t := v.(type) {
		case []any:
			p[k] = toStrings(t)
		case string:
			p[k] = t
		case nil:
			continue
		default:
			p[k] = fmt.Sprintf("%v", t)
		}
	}
	return p
}

// NormalizePayload returns a copy of p where every multi-valued field is a
// []string: a scalar "x" becomes ["x"], an empty string becomes [].
// Fields not listed in multi are copied unchanged.
func NormalizePayload(p Payload, multi []string) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = deepCopy(v)
	}

	for _, field := range multi {
		v, ok := out[field]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t == "" {
				out[field] = []string{}
			} else {
				out[field] = []string{t}
			}
		case []string:
			out[field] = t
		case []any:
			out[field] = toStrings(t)
		case nil:
			out[field] = []string{}
		default:
			out[field] = []string{fmt.Sprintf("%v", t)}
		}
	}

	return out
}

// String returns the scalar value of field, or "" when missing or multi-valued.
func (p Payload) String(field string) string {
	v, _ := p[field].(string)
	return v
}

// Strings returns field as a slice whatever shape it arrived in.
func (p Payload) Strings(field string) []string {
	switch t := p[field].(type) {
	case []string:
		return t
	case []any:
		return toStrings(t)
	case string:
		return []string{t}
	default:
		return nil
	}
}

// Has reports whether field was submitted at all.
func (p Payload) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Fields returns the submitted field names in sorted order.
func (p Payload) Fields() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toStrings(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}
