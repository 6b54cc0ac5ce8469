package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/kwanza/darasa/core"
)

// in-memory implementations for tests and local tooling; TTLs are ignored.

type dummyCache struct {
	mutex sync.RWMutex
	table map[string]string
}

var _ core.Cache = (*dummyCache)(nil) // interface compliance check

func NewDummyCache() core.Cache {
	return &dummyCache{table: make(map[string]string)}
}

func (c *dummyCache) Get(_ context.Context, key string) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if val, ok := c.table[key]; ok {
		return val, nil
	}
	return "", ErrCacheMiss
}

func (c *dummyCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.table[key] = value
	return nil
}

func (c *dummyCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.table, key)
	return nil
}

type dummyAttemptLimiter struct {
	mutex  sync.Mutex
	counts map[string]int
}

var _ core.AttemptLimiter = (*dummyAttemptLimiter)(nil) // interface compliance check

func NewDummyAttemptLimiter() core.AttemptLimiter {
	return &dummyAttemptLimiter{counts: make(map[string]int)}
}

func (l *dummyAttemptLimiter) Hit(_ context.Context, key string) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.counts[key]++
	return l.counts[key], nil
}

func (l *dummyAttemptLimiter) Reset(_ context.Context, key string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.counts, key)
	return nil
}
