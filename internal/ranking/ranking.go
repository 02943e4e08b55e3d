// Package ranking re-scores and merges candidate lists produced by the
// recommendation engine, and derives trending and seasonal lists directly
// from recorded events.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/engine"
	"github.com/shoprec/shoprec/internal/store"
)

// Algorithm identifiers as recorded in tracking events.
const (
	AlgEnhanced = "enhanced"
	AlgTrending = "trending"
	AlgSeasonal = "seasonal"
)

// DefaultWindowDays is the trailing window for Trending when the caller does
// not pick one.
const DefaultWindowDays = 7

// defaultWeights apply when an actor has no click history at all.
var defaultWeights = map[string]float64{
	engine.AlgFrequentlyBoughtTogether: 0.5,
	engine.AlgAlsoViewed:               0.3,
	engine.AlgSimilar:                  0.2,
}

// seasonalTerms maps each calendar month to the taxonomy terms searched by
// Seasonal.
var seasonalTerms = map[time.Month][]string{
	time.January:   {"winter", "clearance"},
	time.February:  {"winter", "valentine"},
	time.March:     {"spring"},
	time.April:     {"spring", "easter"},
	time.May:       {"spring", "garden"},
	time.June:      {"summer"},
	time.July:      {"summer", "outdoor"},
	time.August:    {"summer", "back-to-school"},
	time.September: {"fall", "back-to-school"},
	time.October:   {"fall", "halloween"},
	time.November:  {"fall", "holiday"},
	time.December:  {"winter", "holiday"},
}

// Model blends candidate lists with per-actor positional-decay weights.
type Model struct {
	store   store.Store
	catalog catalog.Gateway
	engine  *engine.Engine
	now     func() time.Time
}

func New(s store.Store, c catalog.Gateway, e *engine.Engine) *Model {
	return &Model{store: s, catalog: c, engine: e, now: time.Now}
}

// SetClock overrides the wall clock for tests.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// Enhanced gathers the three base candidate lists untruncated, weights each
// by the actor's historical click distribution (or fixed defaults when the
// actor has never clicked), applies positional decay within each list,
// accumulates scores additively across lists, and returns the top limit
// products by accumulated score.
func (m *Model) Enhanced(ctx context.Context, productID int64, actor store.Actor, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	fbt, err := m.engine.FrequentlyBoughtTogetherCandidates(ctx, productID)
	if err != nil {
		return nil, err
	}
	viewed, err := m.engine.AlsoViewedCandidates(ctx, productID)
	if err != nil {
		return nil, err
	}
	similar, err := m.engine.SimilarCandidates(ctx, productID)
	if err != nil {
		return nil, err
	}

	weights := m.actorWeights(ctx, actor)

	scores := make(map[int64]float64)
	accumulate := func(ids []int64, weight float64) {
		n := len(ids)
		for i, id := range ids {
			if id == productID {
				continue
			}
			scores[id] += weight * (1 - float64(i)/float64(n))
		}
	}
	accumulate(fbt, weights[engine.AlgFrequentlyBoughtTogether])
	accumulate(viewed, weights[engine.AlgAlsoViewed])
	accumulate(similar, weights[engine.AlgSimilar])

	ranked := make([]int64, 0, len(scores))
	for id := range scores {
		ranked = append(ranked, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	return m.resolve(ctx, ranked, limit)
}

// actorWeights computes weight[alg] = clicks[alg] / total clicks for the
// actor, falling back to the fixed defaults when the actor has no history.
func (m *Model) actorWeights(ctx context.Context, actor store.Actor) map[string]float64 {
	clicks, err := m.store.ClicksByAlgorithm(ctx, actor)
	if err != nil || len(clicks) == 0 {
		return defaultWeights
	}
	total := 0
	for _, n := range clicks {
		total += n
	}
	if total == 0 {
		return defaultWeights
	}
	weights := make(map[string]float64, len(clicks))
	for alg, n := range clicks {
		weights[alg] = float64(n) / float64(total)
	}
	return weights
}

// Trending ranks products by view count within the trailing window, padding
// with the popularity ranking when the window under-delivers or the
// interaction store is unavailable.
func (m *Model) Trending(ctx context.Context, limit, windowDays int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	since := m.now().AddDate(0, 0, -windowDays)

	var selected []catalog.Product
	counts, err := m.store.ViewCounts(ctx, since)
	if err == nil {
		ids := make([]int64, len(counts))
		for i, c := range counts {
			ids[i] = c.ProductID
		}
		selected, err = m.resolve(ctx, ids, limit)
		if err != nil {
			return nil, err
		}
	}

	return m.padWithPopular(ctx, selected, limit)
}

// Seasonal maps the current month to taxonomy terms, pulls matching catalog
// products and pads with the popularity ranking.
func (m *Model) Seasonal(ctx context.Context, limit int) ([]catalog.Product, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	terms := seasonalTerms[m.now().Month()]

	found, err := m.catalog.SearchTaxonomy(ctx, terms, terms, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("taxonomy search: %w", err)
	}

	var selected []catalog.Product
	seen := make(map[int64]bool)
	for _, p := range found {
		if len(selected) >= limit {
			break
		}
		if seen[p.ID] || !p.Recommendable() {
			continue
		}
		seen[p.ID] = true
		selected = append(selected, p)
	}

	return m.padWithPopular(ctx, selected, limit)
}

func (m *Model) resolve(ctx context.Context, ids []int64, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	seen := make(map[int64]bool)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		p, err := m.catalog.Product(ctx, id)
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

func (m *Model) padWithPopular(ctx context.Context, selected []catalog.Product, limit int) ([]catalog.Product, error) {
	if len(selected) >= limit {
		return selected[:limit], nil
	}
	popular, err := m.engine.Popular(ctx, limit)
	if err != nil {
		return nil, err
	}
	have := make(map[int64]bool, len(selected))
	for _, p := range selected {
		have[p.ID] = true
	}
	for _, p := range popular {
		if len(selected) >= limit {
			break
		}
		if !have[p.ID] {
			have[p.ID] = true
			selected = append(selected, p)
		}
	}
	return selected, nil
}

// checkLimit rejects a negative result limit as invalid input.
func checkLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: negative limit %d", store.ErrInvalidInput, limit)
	}
	return nil
}
