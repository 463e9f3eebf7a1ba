package ratelimit

import (
	"fmt"
	"strings"
	"sync"
)

// Registry hands out one shared bucket per provider endpoint. It is injected
// into transports so tests can substitute their own limiter set.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*Bucket)}
}

// Bucket returns the limiter for the given provider endpoint, creating it
// from config on first use. Later calls ignore config and return the
// existing bucket.
func (r *Registry) Bucket(provider, endpoint string, config Config) (*Bucket, error) {
	if r == nil {
		return nil, fmt.Errorf("ratelimit: registry is nil")
	}
	provider = strings.TrimSpace(provider)
	endpoint = strings.TrimSpace(endpoint)
	if provider == "" || endpoint == "" {
		return nil, fmt.Errorf("ratelimit: provider and endpoint are required")
	}
	key := provider + ":" + endpoint

	r.mu.Lock()
	defer r.mu.Unlock()
	if bucket, ok := r.buckets[key]; ok {
		return bucket, nil
	}
	bucket, err := NewBucket(config)
	if err != nil {
		return nil, err
	}
	r.buckets[key] = bucket
	return bucket, nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
