// Package resolver elects the active origin for a content item and caches
// the election so hot content does not hammer the catalog. Failover past the
// elected source is the playback controller's job; the resolver always hands
// back the single best-priority candidate.
package resolver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/famomatic/streamgate/internal/catalog"
)

// ErrNoSources indicates the content item has no candidate sources.
var ErrNoSources = errors.New("stream source not found")

// DefaultTTL bounds staleness of a cached election against catalog edits.
const DefaultTTL = 5 * time.Minute

// Resolution is the elected origin for a content item.
type Resolution struct {
	URL    string
	Format catalog.Format
}

type cacheEntry struct {
	resolution Resolution
	resolvedAt time.Time
}

// Config holds resolver construction parameters.
type Config struct {
	// Catalog supplies candidate sources. Required.
	Catalog catalog.Catalog

	// TTL is how long a cached election stays valid. If zero, DefaultTTL.
	TTL time.Duration

	// Now overrides the clock. If nil, time.Now is used.
	Now func() time.Time
}

// Resolver elects sources with an in-memory TTL cache. Safe for concurrent
// use; concurrent elections for the same key race benignly because every
// writer computes the same answer from the same catalog state.
type Resolver struct {
	catalog catalog.Catalog
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[catalog.ContentRef]cacheEntry
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("resolver requires a catalog")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		catalog: cfg.Catalog,
		ttl:     ttl,
		now:     now,
		cache:   make(map[catalog.ContentRef]cacheEntry),
	}, nil
}

// Resolve returns the active origin for ref, from cache when fresh. A miss
// or an expired entry triggers one catalog lookup, a stable ascending
// priority sort, and an unconditional cache overwrite.
func (r *Resolver) Resolve(ctx context.Context, ref catalog.ContentRef) (Resolution, error) {
	if cached, ok := r.lookup(ref); ok {
		return cached, nil
	}
	return r.ResolveAt(ctx, ref, 0)
}

// ResolveAt elects the source at the given rank (0 = best priority),
// bypassing the cache. The election is written back unconditionally, so a
// client that failed over to rank n routes its follow-up segment requests to
// the same origin until the TTL elapses. An out-of-range index clamps to the
// last source.
func (r *Resolver) ResolveAt(ctx context.Context, ref catalog.ContentRef, index int) (Resolution, error) {
	sources, err := r.catalog.Sources(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Resolution{}, ErrNoSources
		}
		return Resolution{}, err
	}
	if len(sources) == 0 {
		return Resolution{}, ErrNoSources
	}

	ranked := append([]catalog.StreamSource(nil), sources...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority < ranked[j].Priority
	})
	if index < 0 {
		index = 0
	}
	if index >= len(ranked) {
		index = len(ranked) - 1
	}

	resolution := Resolution{URL: ranked[index].URL, Format: ranked[index].Format}
	r.mu.Lock()
	r.cache[ref] = cacheEntry{resolution: resolution, resolvedAt: r.now()}
	r.mu.Unlock()
	return resolution, nil
}

// SourceCount reports how many candidate sources ref has. Used by the token
// endpoint so clients know how far failover can go.
func (r *Resolver) SourceCount(ctx context.Context, ref catalog.ContentRef) (int, error) {
	sources, err := r.catalog.Sources(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return 0, ErrNoSources
		}
		return 0, err
	}
	return len(sources), nil
}

// Invalidate drops the cached election for ref, forcing the next Resolve to
// consult the catalog again.
func (r *Resolver) Invalidate(ref catalog.ContentRef) {
	r.mu.Lock()
	delete(r.cache, ref)
	r.mu.Unlock()
}

func (r *Resolver) lookup(ref catalog.ContentRef) (Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[ref]
	if !ok || r.now().Sub(entry.resolvedAt) >= r.ttl {
		return Resolution{}, false
	}
	return entry.resolution, true
}
