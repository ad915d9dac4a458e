package db

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nickyhof/GitDB/core"
)

type cachedDocument struct {
	token string
	doc   core.Document
}

// documentCache remembers recently read or written documents together with
// their version token. An entry is only ever served for a token the caller
// has just seen in the store, so a stale entry is a miss, never a wrong
// answer. A nil cache is valid and caches nothing.
type documentCache struct {
	lru *expirable.LRU[string, cachedDocument]
}

func newDocumentCache(size int, ttl time.Duration) *documentCache {
	if size <= 0 {
		return nil
	}
	return &documentCache{lru: expirable.NewLRU[string, cachedDocument](size, nil, ttl)}
}

func cacheKey(collection, id string) string {
	return collection + "/" + id
}

// get returns a copy of the cached document if its token equals token.
func (c *documentCache) get(collection, id, token string) (core.Document, bool) {
	if c == nil || token == "" {
		return nil, false
	}
	entry, ok := c.lru.Get(cacheKey(collection, id))
	if !ok || entry.token != token {
		return nil, false
	}
	return entry.doc.Clone(), true
}

func (c *documentCache) put(collection, id, token string, doc core.Document) {
	if c == nil || token == "" {
		return
	}
	c.lru.Add(cacheKey(collection, id), cachedDocument{token: token, doc: doc.Clone()})
}

func (c *documentCache) remove(collection, id string) {
	if c == nil {
		return
	}
	c.lru.Remove(cacheKey(collection, id))
}

func (c *documentCache) purgeCollection(collection string) {
	if c == nil {
		return
	}
	prefix := collection + "/"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

func (c *documentCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *documentCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
