//go:build !integration

package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// mockRedisClient implements RedisClient with func fields for unit tests.
type mockRedisClient struct {
	GetFunc       func(ctx context.Context, key string) (string, error)
	SetFunc       func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc       func(ctx context.Context, keys ...string) error
	PingFunc      func(ctx context.Context) error
	IncrFunc      func(ctx context.Context, key string) (int64, error)
	ExpireFunc    func(ctx context.Context, key string, expiration time.Duration) error
	PublishFunc   func(ctx context.Context, channel string, payload interface{}) error
	SubscribeFunc func(ctx context.Context, channel string) Subscription
	CloseFunc     func() error
}

var _ RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Publish(ctx context.Context, channel string, payload interface{}) error {
	return m.PublishFunc(ctx, channel, payload)
}
func (m *mockRedisClient) Subscribe(ctx context.Context, channel string) Subscription {
	return m.SubscribeFunc(ctx, channel)
}
func (m *mockRedisClient) FlushDB(ctx context.Context) error { return nil }
func (m *mockRedisClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// mockSubscription feeds canned messages to a Feed watcher.
type mockSubscription struct {
	ch     chan *redis.Message
	closed bool
}

func newMockSubscription() *mockSubscription {
	return &mockSubscription{ch: make(chan *redis.Message, 16)}
}

func (s *mockSubscription) Messages() <-chan *redis.Message { return s.ch }
func (s *mockSubscription) Close() error {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
