package runtime

import "context"

// SessionStore persists session documents by id. Expiry of abandoned
// sessions is the store's concern, not the engine's.
type SessionStore interface {
	// Get returns a *NotFoundError when id does not resolve.
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, id string, s *Session) error
	Delete(ctx context.Context, id string) error
}

// ReferenceDataLookup fetches option lists a step validates against,
// e.g. the valid purposes for the licence in the session.
type ReferenceDataLookup interface {
	Fetch(ctx context.Context, key string, s *Session) ([]Option, error)
}

// Committer writes a finished journey to the permanent records.
// It is invoked once, when the journey is confirmed.
type Committer interface {
	Commit(ctx context.Context, s *Session) error
}

// JourneyLoader loads step and journey tables from files.
type JourneyLoader interface {
	Extensions() []string
	LoadDir(dir string) (*Registry, error)
}
