// Package redistile provides a terrain.Source that shares tile bodies
// between processes through Redis.
package redistile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	terrain "github.com/twpayne/go-terrain"
)

// DefaultTTL is the default lifetime of a cached tile body.
const DefaultTTL = 24 * time.Hour

var (
	redisCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_redis_cache_hits_total",
		Help: "The total number of tile bodies served from Redis",
	})
	redisCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_redis_cache_misses_total",
		Help: "The total number of tile bodies not found in Redis",
	})
	redisCacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_redis_cache_errors_total",
		Help: "The total number of failed Redis operations",
	})
)

// A Source is a terrain.Source that caches the bodies returned by another
// Source in Redis. Only successfully fetched bodies are cached. Redis
// failures are not fatal: the underlying Source is used instead.
type Source struct {
	rdb       redis.UniversalClient
	source    terrain.Source
	namespace string
	ttl       time.Duration
}

// An Option sets an option on a Source.
type Option func(*Source)

// WithNamespace sets the namespace that keys are versioned by. Sources with
// different namespaces never share bodies, so it should identify the
// underlying Source, for example by its base URL.
func WithNamespace(namespace string) Option {
	return func(s *Source) {
		s.namespace = namespace
	}
}

// WithTTL sets the lifetime of cached bodies. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Source) {
		s.ttl = ttl
	}
}

// NewSource returns a new Source that caches bodies from source in rdb.
func NewSource(rdb redis.UniversalClient, source terrain.Source, options ...Option) *Source {
	s := &Source{
		rdb:    rdb,
		source: source,
		ttl:    DefaultTTL,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Dial connects to the Redis server at addr and checks that it responds.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Key returns the Redis key under which the body of tileRequest is stored.
func (s *Source) Key(tileRequest terrain.TileRequest) string {
	return fmt.Sprintf("terrain:v1:%016x:%s", xxhash.Sum64String(s.namespace), tileRequest.Name())
}

// TileBody implements terrain.Source.
func (s *Source) TileBody(ctx context.Context, tileRequest terrain.TileRequest) ([]byte, error) {
	key := s.Key(tileRequest)
	switch body, err := s.rdb.Get(ctx, key).Bytes(); {
	case err == nil:
		redisCacheHits.Inc()
		return body, nil
	case errors.Is(err, redis.Nil):
		redisCacheMisses.Inc()
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		redisCacheErrors.Inc()
	}

	body, err := s.source.TileBody(ctx, tileRequest)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, key, body, s.ttl).Err(); err != nil {
		redisCacheErrors.Inc()
	}
	return body, nil
}

// Forget removes the cached body of tileRequest. It implements
// terrain.Forgetter, so bodies that fail to decode are not served again.
func (s *Source) Forget(ctx context.Context, tileRequest terrain.TileRequest) error {
	key := s.Key(tileRequest)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL %q: %w", key, err)
	}
	return nil
}
