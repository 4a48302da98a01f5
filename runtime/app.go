package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	janitorInterval   = time.Minute
)

// Purger is implemented by stores that expire sessions with a query rather
// than natively.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// AppOptions selects collaborators among the registered plugins and
// tunes the HTTP boundary. Empty plugin names mean "the only one".
type AppOptions struct {
	Store     string
	Lookup    string
	Committer string

	// Static answers lookups the plugin lookup does not serve.
	Static ReferenceDataLookup
	// Properties seed every new session.
	Properties map[string]any

	RateLimit float64
	RateBurst int
}

// App binds a Registry and a plugin Container into a servable Engine.
type App struct {
	Registry  *Registry
	Container *Container
	Engine    *Engine
	Metrics   *Metrics

	l       *slog.Logger
	store   SessionStore
	limiter *RateLimiter
}

func NewApp(l *slog.Logger, registry *Registry, container *Container, opts AppOptions) (*App, error) {
	store, err := container.SessionStore(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	lookup, err := container.ReferenceLookup(opts.Lookup)
	if err != nil {
		return nil, fmt.Errorf("reference lookup: %w", err)
	}

	committer, err := container.Committer(opts.Committer)
	if err != nil {
		return nil, fmt.Errorf("committer: %w", err)
	}
	if committer == nil {
		committer = NewLogCommitter(l)
	}

	switch {
	case lookup != nil && opts.Static != nil:
		lookup = ChainLookup{lookup, opts.Static}
	case lookup == nil:
		lookup = opts.Static
	}

	metrics := NewMetrics()
	engineOpts := []EngineOption{
		WithCommitter(committer),
		WithMetrics(metrics),
		WithProperties(opts.Properties),
	}
	if lookup != nil {
		engineOpts = append(engineOpts, WithLookup(lookup))
	}

	return &App{
		Registry:  registry,
		Container: container,
		Engine:    NewEngine(l, registry, store, engineOpts...),
		Metrics:   metrics,
		l:         l,
		store:     store,
		limiter:   NewRateLimiter(l, opts.RateLimit, opts.RateBurst),
	}, nil
}

// Router builds the gin engine serving the journeys and /metrics.
func (a *App) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())

	NewHTTPHandler(a.l, a.Engine, nil).Register(g, a.limiter.Middleware())
	g.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	return g
}

// ListenAndServe runs the HTTP server until ctx ends, then drains it.
func (a *App) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.janitor(janitorCtx, janitorInterval)

	serveErr := make(chan error, 1)
	a.l.Info(fmt.Sprintf("Listening on %s", addr), "journeys", len(a.Registry.Journeys()))
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		a.l.Info("Server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// janitor drops idle rate-limit buckets and purges expired sessions from
// stores that need it.
func (a *App) janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.limiter.Cleanup(now)
			if p, ok := a.store.(Purger); ok {
				n, err := p.Purge(ctx)
				if err != nil {
					a.l.Error("Failed to purge expired sessions", "error", err)
					continue
				}
				if n > 0 {
					a.l.Debug(fmt.Sprintf("Purged %d expired sessions", n))
				}
			}
		}
	}
}
