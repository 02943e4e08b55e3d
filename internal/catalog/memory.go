package catalog

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Gateway. It backs tests and the demo seed; a real
// deployment plugs the storefront catalog in behind the same interface.
type Memory struct {
	mu       sync.RWMutex
	products map[int64]Product
	order    []int64 // insertion order, for stable iteration
}

func NewMemory() *Memory {
	return &Memory{products: make(map[int64]Product)}
}

// Add inserts or replaces products.
func (m *Memory) Add(products ...Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		if _, ok := m.products[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		m.products[p.ID] = p
	}
}

func (m *Memory) Product(_ context.Context, id int64) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) SearchTaxonomy(_ context.Context, categories, tags []string, exclude []int64, limit int) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	excluded := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	probe := Product{Categories: categories, Tags: tags}
	type match struct {
		p      Product
		shared int
	}
	var matches []match
	for _, id := range m.order {
		p := m.products[id]
		if excluded[p.ID] || !p.Recommendable() {
			continue
		}
		if shared := probe.SharedTerms(p); shared > 0 {
			matches = append(matches, match{p: p, shared: shared})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].shared > matches[j].shared
	})

	var out []Product
	for _, mt := range matches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, mt.p)
	}
	return out, nil
}

func (m *Memory) PopularityRank(_ context.Context, limit int) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []Product
	for _, id := range m.order {
		p := m.products[id]
		if p.Recommendable() {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TotalSales > candidates[j].TotalSales
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
