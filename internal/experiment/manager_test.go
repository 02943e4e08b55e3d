package experiment_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/engine"
	"github.com/shoprec/shoprec/internal/experiment"
	"github.com/shoprec/shoprec/internal/ranking"
	"github.com/shoprec/shoprec/internal/store"
)

func setupManager(t *testing.T) (*experiment.Manager, *store.SQLiteStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cat := catalog.NewMemory()
	cat.Add(
		catalog.Product{ID: 1, Name: "Espresso Machine", Price: 249, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, TotalSales: 310, Purchasable: true, InStock: true},
		catalog.Product{ID: 2, Name: "Burr Grinder", Price: 89, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, TotalSales: 270, Purchasable: true, InStock: true},
		catalog.Product{ID: 3, Name: "Milk Frother", Price: 34, Categories: []string{"kitchen"}, Tags: []string{"coffee"}, TotalSales: 190, Purchasable: true, InStock: true},
	)

	e := engine.New(s, cat, engine.Config{})
	r := ranking.New(s, cat, e)
	return experiment.NewManager(s, e, r), s
}

func createActive(t *testing.T, m *experiment.Manager) *store.Experiment {
	t.Helper()
	variants := []store.Variant{
		{Algorithm: "frequently_bought_together", Title: "Control"},
		{Algorithm: "popular", Title: "Challenger"},
	}
	exp, err := m.Create(context.Background(), "test", "", variants, true)
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	return exp
}

func TestAssignVariant_NoActiveExperiment(t *testing.T) {
	m, _ := setupManager(t)

	_, _, err := m.AssignVariant(context.Background(), store.Actor{UserID: "u1"})
	if !errors.Is(err, experiment.ErrNoActiveExperiment) {
		t.Errorf("got %v, want ErrNoActiveExperiment", err)
	}
}

func TestAssignVariant_Deterministic(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	createActive(t, m)

	actor := store.Actor{UserID: "alice"}
	_, first, err := m.AssignVariant(ctx, actor)
	if err != nil {
		t.Fatalf("failed to assign: %v", err)
	}
	for i := 0; i < 10; i++ {
		_, again, err := m.AssignVariant(ctx, actor)
		if err != nil {
			t.Fatalf("failed to assign: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("assignment flapped: got variant %d then %d", first.ID, again.ID)
		}
	}
}

func TestAssignVariant_SpreadsActors(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	createActive(t, m)

	seen := map[int64]int{}
	for i := 0; i < 50; i++ {
		actor := store.Actor{UserID: string(rune('a'+i%26)) + "-shopper-" + string(rune('0'+i%10))}
		_, v, err := m.AssignVariant(ctx, actor)
		if err != nil {
			t.Fatalf("failed to assign: %v", err)
		}
		seen[v.ID]++
	}
	if len(seen) != 2 {
		t.Errorf("expected both variants to receive traffic, got %v", seen)
	}
}

func TestAssignVariant_RecordsImpressionPerCall(t *testing.T) {
	m, s := setupManager(t)
	ctx := context.Background()
	exp := createActive(t, m)

	actor := store.Actor{UserID: "alice"}
	for i := 0; i < 3; i++ {
		if _, _, err := m.AssignVariant(ctx, actor); err != nil {
			t.Fatalf("failed to assign: %v", err)
		}
	}

	events, err := s.Tracking(ctx, store.TrackingFilter{
		Type:         store.TrackingImpression,
		ExperimentID: exp.ID,
	})
	if err != nil {
		t.Fatalf("failed to query tracking: %v", err)
	}
	// One impression per assignment call, repeat calls included. Callers
	// wanting per-page-view semantics dedupe on their side.
	if len(events) != 3 {
		t.Errorf("got %d impressions, want 3", len(events))
	}
}

func TestRecommendationsFor_WithoutExperiment(t *testing.T) {
	m, _ := setupManager(t)

	recs, err := m.RecommendationsFor(context.Background(), store.Actor{UserID: "u1"}, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if recs.Algorithm != "frequently_bought_together" {
		t.Errorf("got algorithm %s, want frequently_bought_together fallback", recs.Algorithm)
	}
	if recs.ExperimentID != 0 || recs.VariantID != 0 {
		t.Errorf("expected no experiment attribution, got %d/%d", recs.ExperimentID, recs.VariantID)
	}
	if recs.Title != "Frequently Bought Together" {
		t.Errorf("got title %q, want default display title", recs.Title)
	}
}

func TestRecommendationsFor_UsesVariantAlgorithmAndTitle(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	exp := createActive(t, m)

	actor := store.Actor{UserID: "alice"}
	_, variant, err := m.AssignVariant(ctx, actor)
	if err != nil {
		t.Fatalf("failed to assign: %v", err)
	}

	recs, err := m.RecommendationsFor(ctx, actor, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if recs.ExperimentID != exp.ID || recs.VariantID != variant.ID {
		t.Errorf("got attribution %d/%d, want %d/%d", recs.ExperimentID, recs.VariantID, exp.ID, variant.ID)
	}
	if recs.Algorithm != variant.Algorithm {
		t.Errorf("got algorithm %s, want %s", recs.Algorithm, variant.Algorithm)
	}
	if recs.Title != variant.Title {
		t.Errorf("got title %q, want variant title %q", recs.Title, variant.Title)
	}
	if len(recs.Products) != 2 {
		t.Errorf("got %d products, want 2", len(recs.Products))
	}
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string
	}{
		{"frequently_bought_together", "Frequently Bought Together"},
		{"also_viewed", "Customers Also Viewed"},
		{"enhanced", "Top Picks For You"},
		{"trending", "Trending Now"},
		{"something_unknown", "You May Also Like"},
	}
	for _, tt := range tests {
		if got := experiment.DisplayTitle(tt.algorithm); got != tt.want {
			t.Errorf("DisplayTitle(%s) = %q, want %q", tt.algorithm, got, tt.want)
		}
	}
}

func TestTrackConversion_NoExperimentIsNoOp(t *testing.T) {
	m, s := setupManager(t)
	ctx := context.Background()

	if err := m.TrackConversion(ctx, store.Actor{UserID: "u1"}, "purchase", "o1", 42); err != nil {
		t.Fatalf("got %v, want nil without an active experiment", err)
	}

	events, err := s.Tracking(ctx, store.TrackingFilter{Type: store.TrackingConversion})
	if err != nil {
		t.Fatalf("failed to query tracking: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d conversion events, want none", len(events))
	}
}

func TestTrackConversion_AttributesWithoutImpression(t *testing.T) {
	m, s := setupManager(t)
	ctx := context.Background()
	exp := createActive(t, m)

	actor := store.Actor{UserID: "alice"}
	if err := m.TrackConversion(ctx, actor, "purchase", "o1", 42); err != nil {
		t.Fatalf("failed to track conversion: %v", err)
	}

	conversions, err := s.Tracking(ctx, store.TrackingFilter{Type: store.TrackingConversion, ExperimentID: exp.ID})
	if err != nil {
		t.Fatalf("failed to query tracking: %v", err)
	}
	if len(conversions) != 1 {
		t.Fatalf("got %d conversions, want 1", len(conversions))
	}
	if conversions[0].VariantID == 0 {
		t.Error("conversion must carry variant attribution")
	}
	if conversions[0].Value != 42 {
		t.Errorf("got value %f, want 42", conversions[0].Value)
	}

	// Conversion tracking must not manufacture impressions.
	impressions, err := s.Tracking(ctx, store.TrackingFilter{Type: store.TrackingImpression, ExperimentID: exp.ID})
	if err != nil {
		t.Fatalf("failed to query tracking: %v", err)
	}
	if len(impressions) != 0 {
		t.Errorf("got %d impressions, want none", len(impressions))
	}
}
