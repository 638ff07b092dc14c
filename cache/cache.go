// Package cache provides a small read-through cache for expensive catalog
// reads (category tree, effective filter schemas). Values are JSON-encoded
// so both drivers store the same representation.
package cache

import "time"

// Store is implemented by the in-memory driver (default) and the Redis
// driver (enabled by REDIS_ADDR). A cache failure is never an application
// error: Get misses, Set and Del degrade silently.
type Store interface {
	// Get unmarshals the cached value into dest and reports a hit.
	Get(key string, dest interface{}) bool
	Set(key string, value interface{}, ttl time.Duration) error
	Del(keys ...string) error
	// DelPrefix drops every key beginning with prefix. Category and
	// attribute writes use it to invalidate the whole catalog namespace
	// rather than tracking individual keys.
	DelPrefix(prefix string) error
}
