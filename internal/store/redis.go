package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cropwise/internal/types"
)

// Redis is a KV backend over Redis: tree paths map to colon-separated keys,
// values are stored as JSON strings, and Set publishes the new value on a
// per-path channel so Subscribe can deliver push events via pub/sub.
type Redis struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedis creates a Redis-backed store from a redis:// URL and verifies
// connectivity before returning.
func NewRedis(url string, keyPrefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreUnavailable, "parsing redis URL", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreUnavailable, "connecting to redis", err)
	}

	return &Redis{rdb: rdb, keyPrefix: keyPrefix}, nil
}

// key converts a tree path into a namespaced Redis key.
func (s *Redis) key(path string) string {
	p := strings.ReplaceAll(strings.Trim(path, "/"), "/", ":")
	if s.keyPrefix == "" {
		return p
	}
	return s.keyPrefix + ":" + p
}

// channel is the pub/sub channel carrying change events for a path.
func (s *Redis) channel(path string) string {
	return s.key(path) + ":events"
}

// redisEvent is the wire form published on a path's event channel.
type redisEvent struct {
	Type EventType       `json:"event_type"`
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Get reads the value at path. A missing key returns nil data.
func (s *Redis) Get(ctx context.Context, path string) (json.RawMessage, error) {
	val, err := s.rdb.Get(ctx, s.key(path)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreUnavailable, "redis GET failed", err)
	}
	return json.RawMessage(val), nil
}

// Set overwrites the value at path and publishes a put event for
// subscribers. The publish is best-effort: a write that lands but fails to
// notify still counts as a successful write (poll-based deployments never
// listen).
func (s *Redis) Set(ctx context.Context, path string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "encoding store value", err)
	}

	if err := s.rdb.Set(ctx, s.key(path), payload, 0).Err(); err != nil {
		return types.NewAppError(types.ErrCodeStoreWriteFailed, "redis SET failed", err)
	}

	ev, err := json.Marshal(redisEvent{Type: EventPut, Path: "/", Data: payload})
	if err == nil {
		_ = s.rdb.Publish(ctx, s.channel(path), ev).Err()
	}
	return nil
}

// Subscribe delivers change events for path until ctx is cancelled or the
// pub/sub connection fails.
func (s *Redis) Subscribe(ctx context.Context, path string, fn func(Event)) error {
	sub := s.rdb.Subscribe(ctx, s.channel(path))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return types.NewAppError(types.ErrCodeStoreUnavailable, "redis subscription closed", nil)
			}
			var ev redisEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				// Malformed event on the channel; skip it.
				continue
			}
			fn(Event{Type: ev.Type, Path: ev.Path, Data: ev.Data})
		}
	}
}

// Ping reports Redis reachability.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return types.NewAppError(types.ErrCodeStoreUnavailable, "redis ping failed", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Redis) Close() error {
	return s.rdb.Close()
}

var _ KV = (*Redis)(nil)
