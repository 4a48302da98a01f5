package runtime

import "context"

// Initializer is implemented by plugins that need to open connections or
// warm caches before the engine serves its first request.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner is implemented by plugins holding resources that must be
// released on graceful shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// SessionStoreProvider is implemented by plugins that back session storage.
type SessionStoreProvider interface {
	SessionStore() SessionStore
}

// ReferenceLookupProvider is implemented by plugins that serve reference data.
type ReferenceLookupProvider interface {
	ReferenceLookup() ReferenceDataLookup
}

// CommitterProvider is implemented by plugins that persist finished journeys.
type CommitterProvider interface {
	Committer() Committer
}
