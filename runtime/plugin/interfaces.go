package plugin

import (
	"github.com/BDNK1/wizflow/runtime"
)

// Initializer plugins have Initialize called at container startup.
// An error aborts startup.
type Initializer = runtime.Initializer

// Shutdowner plugins have Shutdown called during graceful shutdown, in
// reverse order of registration.
type Shutdowner = runtime.Shutdowner

type SessionStoreProvider = runtime.SessionStoreProvider

type ReferenceLookupProvider = runtime.ReferenceLookupProvider

type CommitterProvider = runtime.CommitterProvider

// SessionStore persists session documents by id.
type SessionStore = runtime.SessionStore

// ReferenceDataLookup fetches option lists by key.
type ReferenceDataLookup = runtime.ReferenceDataLookup

// Committer persists a finished journey.
type Committer = runtime.Committer
