/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package translate

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheKey identifies a cached translation. The language pair is part of the
// key so identical text in different languages never collides.
type CacheKey struct {
	Source string
	Target string
	Text   string // cleaned source text
}

// Cache is a TTL and size bounded translation cache. Lookups use Peek, which
// leaves recency untouched, so the entry evicted on overflow is always the
// one inserted longest ago.
type Cache struct {
	lru    *expirable.LRU[CacheKey, string]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache holding at most size entries for ttl each
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[CacheKey, string](size, nil, ttl),
	}
}

// Get returns a cached translation
func (c *Cache) Get(source, target, text string) (string, bool) {
	value, ok := c.lru.Peek(CacheKey{Source: source, Target: target, Text: CleanText(text)})
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return value, ok
}

// Put stores a translation
func (c *Cache) Put(source, target, text, translation string) {
	c.lru.Add(CacheKey{Source: source, Target: target, Text: CleanText(text)}, translation)
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns hit and miss counters
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
