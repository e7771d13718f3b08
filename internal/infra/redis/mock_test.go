//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gpu-notebook-bridge/internal/domain"
)

// fakeRedis is an in-memory RedisClient; expirations are recorded, not
// enforced.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Duration
	failOn  string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedis) fail(op string) error {
	if f.failOn == op {
		return fmt.Errorf("fake %s failure", op)
	}
	return nil
}

func (f *fakeRedis) Ping(ctx context.Context) error { return f.fail("ping") }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	if err := f.fail("set"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = toString(value)
	f.expires[key] = exp
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	if err := f.fail("setnx"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = toString(value)
	f.expires[key] = exp
	return true, nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	if err := f.fail("incr"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	fmt.Sscan(f.data[key], &n)
	n++
	f.data[key] = fmt.Sprint(n)
	return n, nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = exp
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeRedis) Close() error { return nil }

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
