package cart

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry hands out one initialized Store per cart session. Stores not used for
// idleTTL are dropped on a later lookup; their state stays in storage and is
// loaded again when the session comes back. An idleTTL of zero keeps stores for
// the lifetime of the process.
type Registry struct {
	mu        sync.Mutex
	stores    map[string]*registryEntry
	kv        KeyValueStore
	prefix    string
	idleTTL   time.Duration
	lastSweep time.Time
	opts      []Option
}

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

func NewRegistry(kv KeyValueStore, keyPrefix string, idleTTL time.Duration, opts ...Option) *Registry {
	return &Registry{
		stores:  make(map[string]*registryEntry),
		kv:      kv,
		prefix:  keyPrefix,
		idleTTL: idleTTL,
		opts:    opts,
	}
}

func (r *Registry) Store(ctx context.Context, sessionID string) *Store {
	now := time.Now()

	r.mu.Lock()
	if r.idleTTL > 0 && now.Sub(r.lastSweep) >= r.idleTTL {
		r.evictLocked(now.Add(-r.idleTTL))
		r.lastSweep = now
	}

	entry, ok := r.stores[sessionID]
	if !ok {
		entry = &registryEntry{store: NewStore(NewPersister(r.kv, NewKeys(r.prefix, sessionID)), r.opts...)}
		r.stores[sessionID] = entry
		log.Debug().Str("session_id", sessionID).Msg("registry: cart store created")
	}
	entry.lastUsed = now
	r.mu.Unlock()

	entry.store.Init(ctx)
	return entry.store
}

// Evict drops every store last used before cutoff and reports how many went.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.evictLocked(cutoff)
}

// Len is the number of stores currently held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.stores)
}

func (r *Registry) evictLocked(cutoff time.Time) int {
	evicted := 0
	for sessionID, entry := range r.stores {
		if entry.lastUsed.Before(cutoff) {
			delete(r.stores, sessionID)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Int("remaining", len(r.stores)).Msg("registry: idle cart stores dropped")
	}
	return evicted
}
