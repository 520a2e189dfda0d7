package queue

import (
	"sort"
	"strings"
	"sync"
)

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry hands out one live Queue per (name, directory) pair.
//
// The first GetOrCreate for a key constructs the queue; later calls with the
// same key return that instance and ignore their config and options.
// Entries are never evicted, and their directory cannot be changed. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*Queue // registry key → *Queue
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// Key returns the registry key for cfg: the trimmed name and the absolute
// cleaned directory joined by a NUL byte.
func Key(cfg Config) (string, error) {
	norm, _, err := normalize(Config{Name: cfg.Name, Directory: cfg.Directory})
	if err != nil {
		return "", err
	}
	return norm.Name + "\x00" + norm.Directory, nil
}

// GetOrCreate returns the live Queue for cfg's (name, directory), creating
// it first if needed.
func (r *Registry) GetOrCreate(cfg Config, opts ...Option) (*Queue, error) {
	key, err := Key(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	q, ok := r.queues[key]
	r.mu.RUnlock()
	if ok {
		return q, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if q, ok := r.queues[key]; ok {
		return q, nil
	}
	q, err = New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	q.registered = true
	r.queues[key] = q
	return q, nil
}

// Len returns the number of registered queues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}

// Keys returns a sorted snapshot of all registry keys, rendered as
// "name@directory".
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.queues))
	for k := range r.queues {
		keys = append(keys, strings.Replace(k, "\x00", "@", 1))
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Queues returns a snapshot of all registered queues ordered by key.
func (r *Registry) Queues() []*Queue {
	r.mu.RLock()
	keys := make([]string, 0, len(r.queues))
	for k := range r.queues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Queue, len(keys))
	for i, k := range keys {
		out[i] = r.queues[k]
	}
	r.mu.RUnlock()
	return out
}

// ─── Process-wide registry ────────────────────────────────────────────────────

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide Registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Singleton returns the process-wide Queue for cfg's (name, directory).
func Singleton(cfg Config, opts ...Option) (*Queue, error) {
	return Default().GetOrCreate(cfg, opts...)
}
