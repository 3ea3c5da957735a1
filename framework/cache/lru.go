package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// LRU keeps up to size reconstructions and evicts the least recently
// used. Merges for one key are serialized by a per key mutex which is
// held for the whole merge, including the streaming read it performs.
type LRU struct {
	entries *lru.Cache[Key, Value]

	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewLRU(size int) (*LRU, error) {
	entries, err := lru.New[Key, Value](size)
	if err != nil {
		return nil, errors.Wrap(err, "cache: can't create lru")
	}
	return &LRU{entries: entries, locks: map[Key]*keyLock{}}, nil
}

func (c *LRU) FetchAndMerge(ctx context.Context, key Key, merge MergeFunc) (Value, error) {
	l := c.acquire(key)
	defer c.release(key, l)

	var cached *Value
	if v, ok := c.entries.Get(key); ok {
		cached = &v
	}
	next, err := merge(ctx, cached)
	if err != nil {
		return Value{}, err
	}
	c.entries.Add(key, next)
	return next, nil
}

// Len is the number of cached reconstructions.
func (c *LRU) Len() int { return c.entries.Len() }

// Purge drops everything, merges in flight still store their result.
func (c *LRU) Purge() { c.entries.Purge() }

func (c *LRU) acquire(key Key) *keyLock {
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()
	l.Lock()
	return l
}

func (c *LRU) release(key Key, l *keyLock) {
	l.Unlock()
	c.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
	c.mu.Unlock()
}
