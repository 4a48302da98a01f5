// Package redis stores sessions in Redis with a sliding TTL, so several
// wizard servers can share one session space.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BDNK1/wizflow/runtime/plugin"
	goredis "github.com/go-redis/redis/v8"
)

type Config struct {
	Addr       string        `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db" default:"0" validate:"gte=0,lte=15"`
	KeyPrefix  string        `yaml:"key_prefix" default:"wizflow:session:"`
	SessionTTL time.Duration `yaml:"session_ttl" default:"24h" validate:"gte=1m"`
	PoolSize   int           `yaml:"pool_size" default:"10" validate:"gte=1,lte=1000"`
}

type RedisPlugin struct {
	Config Config
	client goredis.UniversalClient
	l      *slog.Logger
}

func New(cfg Config, l *slog.Logger) *RedisPlugin {
	return &RedisPlugin{Config: cfg, l: l}
}

// NewWithClient wraps an existing client; Initialize only pings it.
func NewWithClient(client goredis.UniversalClient, cfg Config, l *slog.Logger) *RedisPlugin {
	return &RedisPlugin{Config: cfg, client: client, l: l}
}

func (p *RedisPlugin) Initialize(ctx context.Context) error {
	if p.client == nil {
		p.client = goredis.NewClient(&goredis.Options{
			Addr:     p.Config.Addr,
			Password: p.Config.Password,
			DB:       p.Config.DB,
			PoolSize: p.Config.PoolSize,
		})
	}

	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: failed to connect to %s: %w", p.Config.Addr, err)
	}
	p.l.Info("Connected to redis", "addr", p.Config.Addr, "db", p.Config.DB)
	return nil
}

func (p *RedisPlugin) Shutdown(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *RedisPlugin) SessionStore() plugin.SessionStore { return p }

func (p *RedisPlugin) key(id string) string {
	return p.Config.KeyPrefix + id
}

func (p *RedisPlugin) Get(ctx context.Context, id string) (*plugin.Session, error) {
	doc, err := p.client.Get(ctx, p.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, &plugin.NotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load session %s: %w", id, err)
	}

	var s plugin.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("redis: decode session %s: %w", id, err)
	}
	return &s, nil
}

// Put writes the document and restarts its TTL.
func (p *RedisPlugin) Put(ctx context.Context, id string, s *plugin.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: encode session %s: %w", id, err)
	}
	if err := p.client.Set(ctx, p.key(id), doc, p.Config.SessionTTL).Err(); err != nil {
		return fmt.Errorf("redis: save session %s: %w", id, err)
	}
	return nil
}

func (p *RedisPlugin) Delete(ctx context.Context, id string) error {
	if err := p.client.Del(ctx, p.key(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete session %s: %w", id, err)
	}
	return nil
}
