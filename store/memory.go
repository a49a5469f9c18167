package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

type inMemory struct {
	prefix  string
	mu      sync.RWMutex
	storage map[string]*Package
}

// NewMemoryStore returns a PackageStore kept in process memory
func NewMemoryStore(prefix string) PackageStore {
	return &inMemory{prefix: prefix}
}

func (m *inMemory) Get(_ context.Context, key PackageKey) (*Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pkg, ok := m.storage[packagePath(m.prefix, key)]
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "%s", key)
	}
	cp := *pkg
	return &cp, nil
}

func (m *inMemory) Put(_ context.Context, pkg *Package) error {
	if pkg == nil {
		return errors.New("store: package is required")
	}
	if err := pkg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string]*Package)
	}
	cp := *pkg
	cp.Version = cp.GetVersion()
	m.storage[packagePath(m.prefix, cp.PackageKey)] = &cp
	return nil
}

func (m *inMemory) Delete(_ context.Context, key PackageKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, packagePath(m.prefix, key))
	return nil
}

func (m *inMemory) List(_ context.Context) ([]PackageKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]PackageKey, 0, len(m.storage))
	for _, pkg := range m.storage {
		keys = append(keys, pkg.PackageKey)
	}
	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []PackageKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
