// Package engine implements the recommendation algorithm library. Every
// public operation returns an ordered list of at most limit catalog-backed
// products, never including the source product, duplicates, or items that
// cannot currently be bought. When an algorithm's primary data source
// under-delivers, the shared fallback chain fills the remainder.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/store"
)

// Algorithm identifiers as recorded in tracking events.
const (
	AlgFrequentlyBoughtTogether = "frequently_bought_together"
	AlgAlsoViewed               = "also_viewed"
	AlgSimilar                  = "similar"
	AlgPersonalized             = "personalized"
	AlgPopular                  = "popular"
)

// historyDepth is how many distinct recently viewed products seed the
// personalized blend.
const historyDepth = 5

// seedSlice is how many candidates each seed product contributes per
// algorithm in the personalized blend.
const seedSlice = 3

// Config tunes the engine.
type Config struct {
	// CacheSize is the maximum number of cached recommendation lists.
	// Zero disables caching.
	CacheSize int

	// CacheTTL bounds how long a cached list may be served.
	CacheTTL time.Duration
}

// Engine computes recommendations from recorded behavior and catalog data.
type Engine struct {
	store   store.Store
	catalog catalog.Gateway
	cache   *expirable.LRU[string, []catalog.Product]
}

func New(s store.Store, c catalog.Gateway, cfg Config) *Engine {
	e := &Engine{store: s, catalog: c}
	if cfg.CacheSize > 0 {
		e.cache = expirable.NewLRU[string, []catalog.Product](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return e
}

// InvalidateCache drops every cached list. Called when new purchase or view
// data arrives.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// FrequentlyBoughtTogether recommends products that co-occur with productID
// in completed orders, most frequent first, ties broken by recency of
// purchase.
func (e *Engine) FrequentlyBoughtTogether(ctx context.Context, productID int64, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return e.cached(fmt.Sprintf("%s:%d::%d", AlgFrequentlyBoughtTogether, productID, limit), func() ([]catalog.Product, error) {
		counts, err := e.store.CoPurchasedWith(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("co-purchase query: %w", err)
		}
		selected, err := e.resolve(ctx, countIDs(counts), productID, nil, limit)
		if err != nil {
			return nil, err
		}
		return e.complete(ctx, selected, productID, limit)
	})
}

// AlsoViewed recommends products viewed by the actors who viewed productID,
// ordered by how many of those actors viewed each.
func (e *Engine) AlsoViewed(ctx context.Context, productID int64, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return e.cached(fmt.Sprintf("%s:%d::%d", AlgAlsoViewed, productID, limit), func() ([]catalog.Product, error) {
		counts, err := e.store.CoViewedWith(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("co-view query: %w", err)
		}
		selected, err := e.resolve(ctx, countIDs(counts), productID, nil, limit)
		if err != nil {
			return nil, err
		}
		return e.complete(ctx, selected, productID, limit)
	})
}

// Similar recommends products sharing taxonomy terms with productID, weighted
// by the number of shared terms. The fallback chain merges into, rather than
// replaces, whatever the taxonomy search found.
func (e *Engine) Similar(ctx context.Context, productID int64, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return e.cached(fmt.Sprintf("%s:%d::%d", AlgSimilar, productID, limit), func() ([]catalog.Product, error) {
		selected, err := e.similar(ctx, productID, limit)
		if err != nil {
			return nil, err
		}
		return e.complete(ctx, selected, productID, limit)
	})
}

func (e *Engine) similar(ctx context.Context, productID int64, limit int) ([]catalog.Product, error) {
	src, err := e.catalog.Product(ctx, productID)
	if err == catalog.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}

	found, err := e.catalog.SearchTaxonomy(ctx, src.Categories, src.Tags, []int64{productID}, 0)
	if err != nil {
		return nil, fmt.Errorf("taxonomy search: %w", err)
	}

	// Re-rank by shared term count; the gateway's ordering is advisory.
	type scored struct {
		p      catalog.Product
		shared int
	}
	ranked := make([]scored, 0, len(found))
	for _, p := range found {
		if !p.Recommendable() || p.ID == productID {
			continue
		}
		ranked = append(ranked, scored{p: p, shared: src.SharedTerms(p)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].shared > ranked[j].shared })

	var out []catalog.Product
	seen := map[int64]bool{productID: true}
	for _, sc := range ranked {
		if limit > 0 && len(out) >= limit {
			break
		}
		if seen[sc.p.ID] {
			continue
		}
		seen[sc.p.ID] = true
		out = append(out, sc.p)
	}
	return out, nil
}

// Personalized blends frequently-bought-together and similar candidates for
// the actor's most recently viewed products. An actor with no view history
// gets the popularity ranking directly.
func (e *Engine) Personalized(ctx context.Context, actor store.Actor, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return e.cached(fmt.Sprintf("%s:0:%s:%d", AlgPersonalized, actor.Key(), limit), func() ([]catalog.Product, error) {
		seeds, err := e.store.RecentViews(ctx, actor, historyDepth)
		if err != nil {
			return nil, fmt.Errorf("recent views query: %w", err)
		}
		if len(seeds) == 0 {
			return e.popular(ctx, limit)
		}

		seedSet := make(map[int64]bool, len(seeds))
		for _, id := range seeds {
			seedSet[id] = true
		}

		// First-seen merge of per-seed candidate slices.
		var merged []int64
		seen := make(map[int64]bool)
		appendIDs := func(ids []int64) {
			for i, id := range ids {
				if i >= seedSlice {
					break
				}
				if seen[id] || seedSet[id] {
					continue
				}
				seen[id] = true
				merged = append(merged, id)
			}
		}

		for _, seed := range seeds {
			counts, err := e.store.CoPurchasedWith(ctx, seed)
			if err != nil {
				return nil, fmt.Errorf("co-purchase query: %w", err)
			}
			appendIDs(countIDs(counts))

			sims, err := e.similar(ctx, seed, seedSlice)
			if err != nil {
				return nil, err
			}
			ids := make([]int64, len(sims))
			for i, p := range sims {
				ids[i] = p.ID
			}
			appendIDs(ids)
		}

		selected, err := e.resolve(ctx, merged, 0, seedSet, limit)
		if err != nil {
			return nil, err
		}

		// The pad must not reintroduce the seed products themselves.
		exclude := make([]int64, 0, len(selected)+len(seeds))
		exclude = append(exclude, seeds...)
		for _, p := range selected {
			exclude = append(exclude, p.ID)
		}
		return e.padWithPopularExcluding(ctx, selected, exclude, limit)
	})
}

// Popular returns the catalog's popularity ranking filtered to products that
// can actually be bought.
func (e *Engine) Popular(ctx context.Context, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return e.cached(fmt.Sprintf("%s:0::%d", AlgPopular, limit), func() ([]catalog.Product, error) {
		return e.popular(ctx, limit)
	})
}

func (e *Engine) popular(ctx context.Context, limit int) ([]catalog.Product, error) {
	ranked, err := e.catalog.PopularityRank(ctx, limit*2)
	if err != nil {
		return nil, fmt.Errorf("popularity rank: %w", err)
	}
	var out []catalog.Product
	for _, p := range ranked {
		if len(out) >= limit {
			break
		}
		if p.Recommendable() {
			out = append(out, p)
		}
	}
	return out, nil
}

// resolve maps ordered candidate ids to recommendable catalog products,
// skipping the source product, anything in extraExclude, unknown ids, and
// items that cannot be bought. Stops at limit.
func (e *Engine) resolve(ctx context.Context, ids []int64, sourceID int64, extraExclude map[int64]bool, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	seen := make(map[int64]bool)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if id == sourceID || seen[id] || extraExclude[id] {
			continue
		}
		seen[id] = true

		p, err := e.catalog.Product(ctx, id)
		if err == catalog.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog lookup: %w", err)
		}
		if p.Recommendable() {
			out = append(out, p)
		}
	}
	return out, nil
}

// complete runs the shared fallback chain: whatever the primary algorithm
// selected, then a same-category sample, then global popularity. Each stage
// contributes only enough to reach limit and never re-adds a selected id.
func (e *Engine) complete(ctx context.Context, selected []catalog.Product, sourceID int64, limit int) ([]catalog.Product, error) {
	if len(selected) >= limit {
		return selected[:limit], nil
	}

	exclude := make([]int64, 0, len(selected)+1)
	exclude = append(exclude, sourceID)
	for _, p := range selected {
		exclude = append(exclude, p.ID)
	}

	if src, err := e.catalog.Product(ctx, sourceID); err == nil && len(src.Categories) > 0 {
		sample, err := e.catalog.SearchTaxonomy(ctx, src.Categories, nil, exclude, 0)
		if err != nil {
			return nil, fmt.Errorf("category sample: %w", err)
		}
		rand.Shuffle(len(sample), func(i, j int) { sample[i], sample[j] = sample[j], sample[i] })
		for _, p := range sample {
			if len(selected) >= limit {
				break
			}
			if p.Recommendable() {
				selected = append(selected, p)
				exclude = append(exclude, p.ID)
			}
		}
	}

	return e.padWithPopularExcluding(ctx, selected, exclude, limit)
}

func (e *Engine) padWithPopularExcluding(ctx context.Context, selected []catalog.Product, exclude []int64, limit int) ([]catalog.Product, error) {
	if len(selected) >= limit {
		return selected[:limit], nil
	}
	excluded := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	ranked, err := e.catalog.PopularityRank(ctx, limit+len(exclude))
	if err != nil {
		return nil, fmt.Errorf("popularity rank: %w", err)
	}
	for _, p := range ranked {
		if len(selected) >= limit {
			break
		}
		if excluded[p.ID] || !p.Recommendable() {
			continue
		}
		excluded[p.ID] = true
		selected = append(selected, p)
	}
	return selected, nil
}

func (e *Engine) cached(key string, fn func() ([]catalog.Product, error)) ([]catalog.Product, error) {
	if e.cache == nil {
		return fn()
	}
	if v, ok := e.cache.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, v)
	return v, nil
}

// checkLimit rejects a negative result limit as invalid input.
func checkLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: negative limit %d", store.ErrInvalidInput, limit)
	}
	return nil
}

func countIDs(counts []store.ProductCount) []int64 {
	ids := make([]int64, len(counts))
	for i, c := range counts {
		ids[i] = c.ProductID
	}
	return ids
}
