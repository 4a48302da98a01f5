// Package plugin holds the types plugin authors need to back a wizflow
// server with storage, reference data or a committer.
//
// Plugins import this package only, never the parent runtime package.
//
// # Plugin Structure
//
// A plugin is a struct with an optional Config and one or more capability
// methods. The container discovers capabilities by interface:
//
//	type Plugin struct {
//	    config Config
//	    store  *Store
//	}
//
//	func (p *Plugin) SessionStore() plugin.SessionStore { return p.store }
//
// # Configuration
//
// Config structs use declarative tags; defaults, env substitution and
// validation are applied before the plugin is built:
//
//	type Config struct {
//	    DSN     string        `yaml:"dsn" validate:"required,dsn"`
//	    TTL     time.Duration `yaml:"ttl" default:"24h" validate:"gte=1m"`
//	}
//
// # Lifecycle
//
// Plugins holding connections implement Initializer and Shutdowner:
//
//	func (p *Plugin) Initialize(ctx context.Context) error { ... }
//	func (p *Plugin) Shutdown(ctx context.Context) error { ... }
//
// Initialize runs in registration order and fails startup on error.
// Shutdown runs in reverse order; every plugin is asked even if one fails.
//
// # Capabilities
//
//   - SessionStoreProvider: persists session documents. Get must return a
//     *NotFoundError for unknown ids.
//   - ReferenceLookupProvider: serves option lists named by step lookups.
//   - CommitterProvider: writes a finished journey to permanent records.
package plugin
