package runtime

import (
	"context"
	"errors"
	"fmt"
)

// Capability names used to index plugins by the interfaces they implement.
const (
	CapabilityInitializer     = "Initializer"
	CapabilityShutdowner      = "Shutdowner"
	CapabilitySessionStore    = "SessionStore"
	CapabilityReferenceLookup = "ReferenceLookup"
	CapabilityCommitter       = "Committer"
)

// Container holds the configured plugins and resolves the engine's
// collaborators from them.
type Container struct {
	order        []string
	plugins      map[string]any
	byCapability map[string][]string
}

func NewContainer() *Container {
	return &Container{
		plugins:      make(map[string]any),
		byCapability: make(map[string][]string),
	}
}

// RegisterPlugin stores a plugin under name and indexes its capabilities.
func (c *Container) RegisterPlugin(name string, p any) error {
	if p == nil {
		return fmt.Errorf("plugin %q cannot be nil", name)
	}
	if _, exists := c.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	c.plugins[name] = p
	c.order = append(c.order, name)

	for _, capability := range capabilitiesOf(p) {
		c.byCapability[capability] = append(c.byCapability[capability], name)
	}
	return nil
}

func capabilitiesOf(p any) []string {
	var caps []string
	if _, ok := p.(Initializer); ok {
		caps = append(caps, CapabilityInitializer)
	}
	if _, ok := p.(Shutdowner); ok {
		caps = append(caps, CapabilityShutdowner)
	}
	if _, ok := p.(SessionStoreProvider); ok {
		caps = append(caps, CapabilitySessionStore)
	}
	if _, ok := p.(ReferenceLookupProvider); ok {
		caps = append(caps, CapabilityReferenceLookup)
	}
	if _, ok := p.(CommitterProvider); ok {
		caps = append(caps, CapabilityCommitter)
	}
	return caps
}

// GetPlugin returns the plugin registered under name, or nil.
func (c *Container) GetPlugin(name string) any {
	return c.plugins[name]
}

// Capabilities returns the names of plugins implementing capability, in
// registration order.
func (c *Container) Capabilities(capability string) []string {
	return append([]string(nil), c.byCapability[capability]...)
}

// SessionStore resolves the session store. When several plugins provide
// one, preferred selects which; an empty preferred requires exactly one.
func (c *Container) SessionStore(preferred string) (SessionStore, error) {
	name, err := c.pick(CapabilitySessionStore, preferred)
	if err != nil {
		return nil, err
	}
	return c.plugins[name].(SessionStoreProvider).SessionStore(), nil
}

// ReferenceLookup resolves the reference data lookup, or nil when no
// plugin provides one.
func (c *Container) ReferenceLookup(preferred string) (ReferenceDataLookup, error) {
	if len(c.byCapability[CapabilityReferenceLookup]) == 0 && preferred == "" {
		return nil, nil
	}
	name, err := c.pick(CapabilityReferenceLookup, preferred)
	if err != nil {
		return nil, err
	}
	return c.plugins[name].(ReferenceLookupProvider).ReferenceLookup(), nil
}

// Committer resolves the committer, or nil when no plugin provides one.
func (c *Container) Committer(preferred string) (Committer, error) {
	if len(c.byCapability[CapabilityCommitter]) == 0 && preferred == "" {
		return nil, nil
	}
	name, err := c.pick(CapabilityCommitter, preferred)
	if err != nil {
		return nil, err
	}
	return c.plugins[name].(CommitterProvider).Committer(), nil
}

func (c *Container) pick(capability, preferred string) (string, error) {
	names := c.byCapability[capability]
	if preferred != "" {
		for _, n := range names {
			if n == preferred {
				return n, nil
			}
		}
		return "", fmt.Errorf("plugin %q does not provide %s", preferred, capability)
	}
	switch len(names) {
	case 0:
		return "", fmt.Errorf("no plugin provides %s", capability)
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("several plugins provide %s (%v); choose one in config", capability, names)
	}
}

// Initialize calls Initialize on every Initializer in registration order
// and stops at the first failure.
func (c *Container) Initialize(ctx context.Context) error {
	for _, name := range c.byCapability[CapabilityInitializer] {
		if err := c.plugins[name].(Initializer).Initialize(ctx); err != nil {
			return fmt.Errorf("plugin %s initialization failed: %w", name, err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on every Shutdowner in reverse registration
// order. All plugins are asked to shut down; failures are joined.
func (c *Container) Shutdown(ctx context.Context) error {
	names := c.byCapability[CapabilityShutdowner]

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := c.plugins[names[i]].(Shutdowner).Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s shutdown failed: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}
