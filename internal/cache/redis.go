package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	Database int

	// Expiry is the server-side TTL attached to every write, so entries
	// expire without explicit cleanup.
	Expiry time.Duration

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Disabled       bool
}

func (c RedisConfig) withDefaultValues() RedisConfig {
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.Expiry == 0 {
		c.Expiry = 12 * time.Hour
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 3 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 2 * time.Second
	}
	return c
}

// Redis is the warm tier. Every failure degrades to a cache miss or a
// no-op write; the tier never fails a request.
type Redis struct {
	logger zerolog.Logger
	config RedisConfig
	stats  *Stats

	client *redis.Client
	ready  atomic.Bool

	shutdown chan struct{}
}

func NewRedis(config RedisConfig, stats *Stats) *Redis {
	config = config.withDefaultValues()

	return &Redis{
		logger:   log.With().Str("module", "cache").Str("tier", "redis").Logger(),
		config:   config,
		stats:    stats,
		shutdown: make(chan struct{}),
	}
}

// Open establishes the shared connection. When the server is not
// reachable the tier starts in degraded always-miss mode and keeps
// retrying with bounded exponential backoff.
func (r *Redis) Open(ctx context.Context) {
	if r.config.Disabled {
		r.logger.Info().Msg("warm tier disabled")
		return
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", r.config.Host, r.config.Port),
		Password:    r.config.Password,
		DB:          r.config.Database,
		DialTimeout: r.config.ConnectTimeout,
	})

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("warm tier unavailable, degrading to miss")
		go r.reconnect()
		return
	}

	r.ready.Store(true)
	r.logger.Info().Str("host", r.config.Host).Int("db", r.config.Database).Msg("warm tier connected")
}

func (r *Redis) Close() {
	close(r.shutdown)

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Err(err).Msg("close failed")
		}
	}
}

func (r *Redis) reconnect() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-r.shutdown:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.config.ConnectTimeout)
		err := r.client.Ping(ctx).Err()
		cancel()

		if err == nil {
			r.ready.Store(true)
			r.logger.Info().Msg("warm tier reconnected")
			return
		}

		r.logger.Debug().Err(err).Dur("backoff", backoff).Msg("warm tier still unavailable")
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *Redis) available() bool {
	return !r.config.Disabled && r.ready.Load()
}

// Get fetches and decodes an entry. Any fetch, parse or decompress
// failure is treated as a miss so the caller fails open to upstream.
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool) {
	if !r.available() {
		return Entry{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.CommandTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug().Err(err).Str("key", key).Msg("get failed")
		}
		r.stats.Miss()
		return Entry{}, false
	}

	entry, err := decodeEnvelope(data)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("stored envelope unreadable")
		r.stats.Miss()
		return Entry{}, false
	}

	r.stats.Hit()
	return entry, true
}

// Set compresses and stores an entry with the server-side TTL. Errors
// are logged, never surfaced.
func (r *Redis) Set(ctx context.Context, key string, entry Entry) {
	if !r.available() {
		return
	}

	data, rawSize, gzSize, err := encodeEnvelope(entry)
	if err != nil {
		r.logger.Err(err).Str("key", key).Msg("envelope encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.CommandTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, data, r.config.Expiry).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("set failed")
		return
	}

	r.stats.Stored(rawSize, gzSize)
}

// SetIfAbsent re-checks presence immediately before writing, so
// concurrent requests racing on the same miss do not duplicate the
// compress+write. A lost race is harmless, writes are idempotent.
func (r *Redis) SetIfAbsent(ctx context.Context, key string, entry Entry) {
	if r.Has(ctx, key) {
		return
	}
	r.Set(ctx, key, entry)
}

// Has reports key presence without counting a hit or a miss.
func (r *Redis) Has(ctx context.Context, key string) bool {
	if !r.available() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.CommandTimeout)
	defer cancel()

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if !r.available() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.CommandTimeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("delete failed")
	}
}
