// Package memory keeps sessions in process memory. It is the default store
// for local runs and tests; sessions do not survive a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BDNK1/wizflow/runtime/plugin"
)

type Config struct {
	SessionTTL    time.Duration `yaml:"session_ttl" default:"1h" validate:"gte=1s"`
	SweepInterval time.Duration `yaml:"sweep_interval" default:"1m" validate:"gte=1s"`
}

type entry struct {
	doc       []byte
	expiresAt time.Time
}

// MemoryPlugin stores JSON-encoded session documents so callers never share
// maps with the store.
type MemoryPlugin struct {
	Config Config

	mu       sync.RWMutex
	sessions map[string]entry
	l        *slog.Logger
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
}

func New(cfg Config, l *slog.Logger) *MemoryPlugin {
	return &MemoryPlugin{
		Config:   cfg,
		sessions: make(map[string]entry),
		l:        l,
		now:      time.Now,
	}
}

// Initialize starts the expiry sweeper.
func (p *MemoryPlugin) Initialize(ctx context.Context) error {
	if p.Config.SweepInterval <= 0 {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.Config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := p.Sweep(); n > 0 {
					p.l.Debug(fmt.Sprintf("Expired %d sessions", n))
				}
			case <-p.stop:
				return
			}
		}
	}()
	return nil
}

// Shutdown stops the sweeper and waits for it to exit.
func (p *MemoryPlugin) Shutdown(ctx context.Context) error {
	if p.stop == nil {
		return nil
	}
	close(p.stop)
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.stop = nil
	return nil
}

func (p *MemoryPlugin) SessionStore() plugin.SessionStore { return p }

func (p *MemoryPlugin) Get(_ context.Context, id string) (*plugin.Session, error) {
	p.mu.RLock()
	e, ok := p.sessions[id]
	p.mu.RUnlock()

	if !ok || !p.now().Before(e.expiresAt) {
		return nil, &plugin.NotFoundError{SessionID: id}
	}

	var s plugin.Session
	if err := json.Unmarshal(e.doc, &s); err != nil {
		return nil, fmt.Errorf("memory: decode session %s: %w", id, err)
	}
	return &s, nil
}

func (p *MemoryPlugin) Put(_ context.Context, id string, s *plugin.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("memory: encode session %s: %w", id, err)
	}

	p.mu.Lock()
	p.sessions[id] = entry{doc: doc, expiresAt: p.now().Add(p.Config.SessionTTL)}
	p.mu.Unlock()
	return nil
}

func (p *MemoryPlugin) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	delete(p.sessions, id)
	p.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (p *MemoryPlugin) Sweep() int {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, e := range p.sessions {
		if !now.Before(e.expiresAt) {
			delete(p.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are held, expired or not.
func (p *MemoryPlugin) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
