package gorepl

import (
	"fmt"
	"sync"
	"time"
)

// queryCache memoizes service results per (document, input, caret) key.
// Eviction is strictly time-based: REPL sessions run for hours and every
// distinct keystroke makes a new entry, so size-based policies would churn
// on exactly the entries about to be reused.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// cacheKey builds the composite key. The raw text participates in full:
// a one-character input must never be served a cached multi-character
// result, so nothing about the key may collide across lengths.
func cacheKey(docID, text string, caret int) string {
	return fmt.Sprintf("%s|%d|%d|%s", docID, caret, len(text), text)
}

func (c *queryCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *queryCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{value: value, expires: now.Add(c.ttl)}
}
