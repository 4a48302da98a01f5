package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Option is one selectable reference value.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// References holds the option lists fetched for a step, keyed by lookup name.
type References map[string][]Option

// Contains reports whether value is one of the options under key.
func (r References) Contains(key, value string) bool {
	for _, o := range r[key] {
		if o.Value == value {
			return true
		}
	}
	return false
}

// ErrUnknownLookup is returned by a lookup that does not serve a key.
var ErrUnknownLookup = errors.New("unknown reference data key")

// StaticLookup serves fixed option lists.
type StaticLookup map[string][]Option

func (l StaticLookup) Fetch(_ context.Context, key string, _ *Session) ([]Option, error) {
	opts, ok := l[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLookup, key)
	}
	out := make([]Option, len(opts))
	copy(out, opts)
	return out, nil
}

// ChainLookup asks each lookup in turn, moving on only when a lookup
// reports ErrUnknownLookup.
type ChainLookup []ReferenceDataLookup

func (c ChainLookup) Fetch(ctx context.Context, key string, s *Session) ([]Option, error) {
	for _, l := range c {
		if l == nil {
			continue
		}
		opts, err := l.Fetch(ctx, key, s)
		if errors.Is(err, ErrUnknownLookup) {
			continue
		}
		return opts, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLookup, key)
}

// fetchReferences issues every lookup concurrently and waits for all of
// them; the first failure cancels the rest and is returned.
func fetchReferences(ctx context.Context, lookup ReferenceDataLookup, keys []string, s *Session) (References, error) {
	refs := make(References, len(keys))
	if len(keys) == 0 {
		return refs, nil
	}
	if lookup == nil {
		return nil, fmt.Errorf("no reference data lookup configured for %v", keys)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, key := range keys {
		g.Go(func() error {
			opts, err := lookup.Fetch(gctx, key, s)
			if err != nil {
				return fmt.Errorf("fetch reference data %q: %w", key, err)
			}
			mu.Lock()
			refs[key] = opts
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}
