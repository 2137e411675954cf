package catalog

import (
	"context"
	"sync"
)

// Memory is an in-process Catalog. It backs tests and small standalone
// deployments; the production catalog lives behind the same interface in an
// external service.
type Memory struct {
	mu       sync.RWMutex
	items    map[ContentRef][]StreamSource
	premium  map[ContentRef]bool
	entitled map[string]Entitlement
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		items:    make(map[ContentRef][]StreamSource),
		premium:  make(map[ContentRef]bool),
		entitled: make(map[string]Entitlement),
	}
}

// PutItem registers a content item with its candidate sources.
func (m *Memory) PutItem(ref ContentRef, premium bool, sources ...StreamSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ref] = append([]StreamSource(nil), sources...)
	m.premium[ref] = premium
}

// PutUser registers a user's entitlement.
func (m *Memory) PutUser(userID string, ent Entitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entitled[userID] = ent
}

func (m *Memory) Sources(_ context.Context, ref ContentRef) ([]StreamSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sources, ok := m.items[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]StreamSource(nil), sources...), nil
}

func (m *Memory) Entitlement(_ context.Context, userID string) (Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entitled[userID], nil
}

func (m *Memory) IsPremium(_ context.Context, ref ContentRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.items[ref]; !ok {
		return false, ErrNotFound
	}
	return m.premium[ref], nil
}
