package runtime

import (
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Answer fields may be dotted paths ("abstractionPeriod.startDay"); the
// helpers below read and write them inside nested answer maps.

// GetPath returns the value at a dotted path.
func GetPath(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if !strings.Contains(path, ".") {
		v, ok := m[path]
		return v, ok
	}

	c := gabs.Wrap(m)
	if !c.ExistsP(path) {
		return nil, false
	}
	return c.Path(path).Data(), true
}

// SetPath stores value at a dotted path, creating intermediate maps.
func SetPath(m map[string]any, path string, value any) error {
	if !strings.Contains(path, ".") {
		m[path] = value
		return nil
	}

	_, err := gabs.Wrap(m).SetP(value, path)
	return err
}

// DeletePath removes the value at a dotted path. Missing paths are ignored.
func DeletePath(m map[string]any, path string) {
	if !strings.Contains(path, ".") {
		delete(m, path)
		return
	}

	c := gabs.Wrap(m)
	if c.ExistsP(path) {
		_ = c.DeleteP(path)
	}
}
