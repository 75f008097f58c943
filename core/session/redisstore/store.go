// Package redisstore keeps scene state in Redis and provides a Redis backed
// per-session lock for stages running on several replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/gostage/core/config"
	"github.com/m3rciful/gostage/core/scene"
)

const defaultPrefix = "gostage:session:"

// Store implements scene.Store with one JSON value per session.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires whole sessions after ttl without writes. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewClient builds a go-redis client from configuration.
func NewClient(cfg coreconfig.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New creates a store over an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get loads the state of sessionID; unknown sessions yield the zero State.
func (s *Store) Get(ctx context.Context, sessionID string) (scene.State, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return scene.State{}, nil
		}
		return scene.State{}, fmt.Errorf("redisstore: get %s: %w", sessionID, err)
	}
	var st scene.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return scene.State{}, fmt.Errorf("redisstore: decode %s: %w", sessionID, err)
	}
	return st, nil
}

// Set writes the state of sessionID, refreshing the key TTL.
func (s *Store) Set(ctx context.Context, sessionID string, st scene.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", sessionID, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
