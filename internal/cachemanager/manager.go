// Package cachemanager provides typed in-memory key/value stores.
package cachemanager

import "time"

// NoExpiration keeps an entry until it is deleted.
const NoExpiration time.Duration = -1

// CacheManager is a typed key/value store.
type CacheManager[K ~string, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(keys ...K)
	Items() map[K]V
	Flush()
}
