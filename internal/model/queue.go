package model

import "time"

// QueuedItem is a record waiting in the batch aggregator.
type QueuedItem struct {
	Report     EventRecord `json:"report"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
}

// CachedItem is a record persisted by the offline store.
// RetryCount only ever grows.
type CachedItem struct {
	Report     EventRecord `json:"report"`
	CachedAt   time.Time   `json:"cachedAt"`
	RetryCount int         `json:"retryCount"`
}
