package engine

import (
	"context"
	"fmt"
)

// The candidate methods expose each algorithm's full ordered candidate list
// without limit truncation or fallback. The re-ranking model consumes these
// to score across algorithms before resolving against the catalog.

func (e *Engine) FrequentlyBoughtTogetherCandidates(ctx context.Context, productID int64) ([]int64, error) {
	counts, err := e.store.CoPurchasedWith(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("co-purchase query: %w", err)
	}
	return countIDs(counts), nil
}

func (e *Engine) AlsoViewedCandidates(ctx context.Context, productID int64) ([]int64, error) {
	counts, err := e.store.CoViewedWith(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("co-view query: %w", err)
	}
	return countIDs(counts), nil
}

func (e *Engine) SimilarCandidates(ctx context.Context, productID int64) ([]int64, error) {
	products, err := e.similar(ctx, productID, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids, nil
}
