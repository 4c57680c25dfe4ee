package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

var ErrStateNotFound = errors.New("oauth state not found or expired")

// StateStore remembers the CSRF state handed to a provider until the
// callback consumes it. A state can be consumed once.
type StateStore interface {
	Save(ctx context.Context, state, provider string) error
	Consume(ctx context.Context, state string) (provider string, err error)
}

// NewState returns a random URL-safe state value.
func NewState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MemoryStateStore keeps states in process. Use it for a single instance.
type MemoryStateStore struct {
	cache *ttlcache.Cache[string, string]
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &MemoryStateStore{cache: cache}
}

func (s *MemoryStateStore) Save(_ context.Context, state, provider string) error {
	s.cache.Set(state, provider, ttlcache.DefaultTTL)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (string, error) {
	item, ok := s.cache.GetAndDelete(state)
	if !ok || item == nil || item.IsExpired() {
		return "", ErrStateNotFound
	}
	return item.Value(), nil
}

// Stop ends the background expiry loop.
func (s *MemoryStateStore) Stop() {
	s.cache.Stop()
}

// RedisStateStore shares states between instances behind a load balancer.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStateStore) key(state string) string {
	return fmt.Sprintf("%s:oauth_state:%s", s.prefix, state)
}

func (s *RedisStateStore) Save(ctx context.Context, state, provider string) error {
	ok, err := s.client.SetNX(ctx, s.key(state), provider, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	if !ok {
		return fmt.Errorf("save oauth state: duplicate state")
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	provider, err := s.client.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return provider, nil
}
