// Package journeys embeds the built-in journey tables.
package journeys

import (
	"embed"
	"log/slog"

	"github.com/BDNK1/wizflow/runtime"
	"github.com/BDNK1/wizflow/runtime/engine/yaml"
)

//go:embed tables/*.yaml
var tables embed.FS

// Load builds a Registry from the embedded tables and returns the static
// lookups they declare alongside it.
func Load(l *slog.Logger) (*runtime.Registry, runtime.StaticLookup, error) {
	loader := yaml.NewLoader(l)
	registry, err := loader.LoadFS(tables, "tables")
	if err != nil {
		return nil, nil, err
	}
	return registry, loader.StaticLookup(), nil
}
