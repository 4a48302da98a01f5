package cmd

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/BDNK1/wizflow/cli/internal/config"
	"github.com/BDNK1/wizflow/plugins/http"
	"github.com/BDNK1/wizflow/plugins/memory"
	"github.com/BDNK1/wizflow/plugins/postgres"
	"github.com/BDNK1/wizflow/plugins/redis"
	"github.com/BDNK1/wizflow/plugins/sqlite"
	"github.com/BDNK1/wizflow/runtime"
)

// Plugin names in the container.
const (
	storePlugin     = "store"
	lookupPlugin    = "lookup"
	committerPlugin = "committer"
)

type pluginFactory func(raw map[string]any, l *slog.Logger) (any, error)

// newPlugin prepares a plugin config with defaults, raw values and
// validation before constructing the plugin.
func newPlugin[C any, P any](build func(C, *slog.Logger) P) pluginFactory {
	return func(raw map[string]any, l *slog.Logger) (any, error) {
		var cfg C
		if err := runtime.InitializeConfig(&cfg, raw); err != nil {
			return nil, err
		}
		return build(cfg, l), nil
	}
}

var storeFactories = map[string]pluginFactory{
	"memory":   newPlugin(memory.New),
	"postgres": newPlugin(postgres.New),
	"sqlite":   newPlugin(sqlite.New),
	"redis":    newPlugin(redis.New),
}

var lookupFactories = map[string]pluginFactory{
	"http": newPlugin(http.New),
}

var committerFactories = map[string]pluginFactory{
	"postgres": newPlugin(postgres.New),
	"sqlite":   newPlugin(sqlite.New),
}

func create(kind string, factories map[string]pluginFactory, pc *config.PluginConfig, l *slog.Logger) (any, error) {
	factory, ok := factories[pc.Type]
	if !ok {
		return nil, fmt.Errorf("unknown %s type %q (available: %v)", kind, pc.Type, keys(factories))
	}
	p, err := factory(pc.Config, l.With("plugin", kind, "type", pc.Type))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, pc.Type, err)
	}
	return p, nil
}

// buildContainer registers the configured plugins and reports which
// container names the app should prefer for each collaborator.
func buildContainer(cfg *config.WizardConfig, l *slog.Logger) (*runtime.Container, runtime.AppOptions, error) {
	container := runtime.NewContainer()
	opts := runtime.AppOptions{Store: storePlugin}

	store, err := create(storePlugin, storeFactories, &cfg.Store, l)
	if err != nil {
		return nil, opts, err
	}
	if err := container.RegisterPlugin(storePlugin, store); err != nil {
		return nil, opts, err
	}
	if _, ok := store.(runtime.CommitterProvider); ok {
		opts.Committer = storePlugin
	}

	if cfg.Lookup != nil {
		lookup, err := create(lookupPlugin, lookupFactories, cfg.Lookup, l)
		if err != nil {
			return nil, opts, err
		}
		if err := container.RegisterPlugin(lookupPlugin, lookup); err != nil {
			return nil, opts, err
		}
		opts.Lookup = lookupPlugin
	}

	if cfg.Committer != nil {
		committer, err := create(committerPlugin, committerFactories, cfg.Committer, l)
		if err != nil {
			return nil, opts, err
		}
		if err := container.RegisterPlugin(committerPlugin, committer); err != nil {
			return nil, opts, err
		}
		opts.Committer = committerPlugin
	}

	return container, opts, nil
}

func keys(m map[string]pluginFactory) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
