package plugin

import "github.com/BDNK1/wizflow/runtime"

// Session is the persisted document of one in-progress journey. Stores
// serialize it as JSON; its Answers, Flags and Items are always
// JSON-serializable.
type Session = runtime.Session

// Option is one reference data value.
type Option = runtime.Option

// NotFoundError must be returned by SessionStore.Get for unknown ids.
type NotFoundError = runtime.NotFoundError

// Flag names a session marker.
type Flag = runtime.Flag
