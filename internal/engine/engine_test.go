package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/engine"
	"github.com/shoprec/shoprec/internal/store"
)

func setupEngine(t *testing.T) (*engine.Engine, *store.SQLiteStore, *catalog.Memory) {
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
		catalog.Product{ID: 4, Name: "Mug Set", Price: 28, Categories: []string{"kitchen"}, Tags: []string{"tableware"}, TotalSales: 450, Purchasable: true, InStock: true},
		catalog.Product{ID: 5, Name: "Trail Backpack", Price: 119, Categories: []string{"outdoor"}, Tags: []string{"hiking"}, TotalSales: 220, Purchasable: true, InStock: true},
		catalog.Product{ID: 6, Name: "Water Bottle", Price: 22, Categories: []string{"outdoor"}, Tags: []string{"hiking"}, TotalSales: 520, Purchasable: true, InStock: true},
		catalog.Product{ID: 7, Name: "Discontinued", Price: 0, Categories: []string{"kitchen"}, Purchasable: false, InStock: false},
	)

	// Caching off so each call observes the latest writes.
	e := engine.New(s, cat, engine.Config{})
	return e, s, cat
}

func seedOrder(t *testing.T, s *store.SQLiteStore, orderID string, products ...int64) {
	t.Helper()
	for i, pid := range products {
		p := store.Purchase{
			OrderID:    orderID,
			ProductID:  pid,
			Actor:      store.Actor{UserID: "buyer"},
			Price:      10,
			OccurredAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.RecordPurchase(context.Background(), p); err != nil {
			t.Fatalf("failed to record purchase: %v", err)
		}
	}
}

func seedView(t *testing.T, s *store.SQLiteStore, actor store.Actor, pid int64, at time.Time) {
	t.Helper()
	ev := store.Interaction{Type: store.InteractionView, ProductID: pid, Actor: actor, OccurredAt: at}
	if err := s.RecordInteraction(context.Background(), ev); err != nil {
		t.Fatalf("failed to record view: %v", err)
	}
}

func ids(products []catalog.Product) []int64 {
	out := make([]int64, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestFrequentlyBoughtTogether(t *testing.T) {
	e, s, _ := setupEngine(t)
	ctx := context.Background()

	seedOrder(t, s, "o1", 1, 2, 3)
	seedOrder(t, s, "o2", 1, 2)

	got, err := e.FrequentlyBoughtTogether(ctx, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d products, want 2", len(got))
	}
	if got[0].ID != 2 {
		t.Errorf("got leader %d, want 2 (co-purchased twice)", got[0].ID)
	}
	for _, p := range got {
		if p.ID == 1 {
			t.Error("source product must not be recommended")
		}
	}
}

func TestFrequentlyBoughtTogether_FallsBackWithoutData(t *testing.T) {
	e, _, _ := setupEngine(t)

	got, err := e.FrequentlyBoughtTogether(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	// No purchase signal yet; category sample plus popularity still yield a
	// full list out of the kitchen range.
	if len(got) != 3 {
		t.Fatalf("got %d products, want 3 via fallback", len(got))
	}
	seen := map[int64]bool{}
	for _, p := range got {
		if p.ID == 1 {
			t.Error("source product must not appear in fallback")
		}
		if p.ID == 7 {
			t.Error("non-recommendable product must not appear")
		}
		if seen[p.ID] {
			t.Errorf("duplicate product %d", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestAlsoViewed(t *testing.T) {
	e, s, _ := setupEngine(t)
	ctx := context.Background()
	now := time.Now()

	alice := store.Actor{UserID: "alice"}
	bob := store.Actor{UserID: "bob"}
	seedView(t, s, alice, 1, now)
	seedView(t, s, alice, 2, now)
	seedView(t, s, bob, 1, now)
	seedView(t, s, bob, 2, now)
	seedView(t, s, bob, 3, now)

	got, err := e.AlsoViewed(ctx, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 {
		t.Fatalf("got %v, want product 2 first (two distinct viewers)", ids(got))
	}
}

func TestSimilar_RanksBySharedTerms(t *testing.T) {
	e, _, _ := setupEngine(t)

	got, err := e.Similar(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d products, want 3", len(got))
	}
	// Grinder and frother share category+tag with the machine; the mug set
	// shares only the category.
	if got[0].ID != 2 || got[1].ID != 3 {
		t.Errorf("got order %v, want 2, 3 first on two shared terms", ids(got))
	}
	if got[2].ID != 4 {
		t.Errorf("got third %d, want 4", got[2].ID)
	}
}

func TestSimilar_UnknownProduct(t *testing.T) {
	e, _, _ := setupEngine(t)

	got, err := e.Similar(context.Background(), 999, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	// Unknown source still pads from popularity rather than erroring.
	if len(got) != 2 {
		t.Fatalf("got %d products, want 2", len(got))
	}
}

func TestPopular(t *testing.T) {
	e, _, _ := setupEngine(t)

	got, err := e.Popular(context.Background(), 3)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	want := []int64{6, 4, 1}
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("got %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotIDs, want)
		}
	}
}

func TestNegativeLimitRejected(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	calls := map[string]func() ([]catalog.Product, error){
		"frequently_bought_together": func() ([]catalog.Product, error) { return e.FrequentlyBoughtTogether(ctx, 1, -1) },
		"also_viewed":                func() ([]catalog.Product, error) { return e.AlsoViewed(ctx, 1, -1) },
		"similar":                    func() ([]catalog.Product, error) { return e.Similar(ctx, 1, -1) },
		"personalized":               func() ([]catalog.Product, error) { return e.Personalized(ctx, store.Actor{UserID: "u1"}, -1) },
		"popular":                    func() ([]catalog.Product, error) { return e.Popular(ctx, -1) },
	}
	for name, call := range calls {
		if _, err := call(); !errors.Is(err, store.ErrInvalidInput) {
			t.Errorf("%s with negative limit: got err %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestPersonalized_EmptyHistoryEqualsPopular(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	personalized, err := e.Personalized(ctx, store.Actor{UserID: "newcomer"}, 4)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	popular, err := e.Popular(ctx, 4)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}

	pIDs, wantIDs := ids(personalized), ids(popular)
	if len(pIDs) != len(wantIDs) {
		t.Fatalf("got %v, want %v", pIDs, wantIDs)
	}
	for i := range wantIDs {
		if pIDs[i] != wantIDs[i] {
			t.Fatalf("got %v, want %v", pIDs, wantIDs)
		}
	}
}

func TestPersonalized_ExcludesSeedProducts(t *testing.T) {
	e, s, _ := setupEngine(t)
	ctx := context.Background()
	now := time.Now()

	actor := store.Actor{UserID: "alice"}
	seedView(t, s, actor, 1, now.Add(-2*time.Minute))
	seedView(t, s, actor, 2, now.Add(-time.Minute))
	seedOrder(t, s, "o1", 1, 3)

	got, err := e.Personalized(ctx, actor, 4)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d products, want 4", len(got))
	}
	for _, p := range got {
		if p.ID == 1 || p.ID == 2 {
			t.Errorf("recently viewed product %d must not be recommended", p.ID)
		}
	}
	// The co-purchase candidate ranks ahead of popularity padding.
	if got[0].ID != 3 {
		t.Errorf("got leader %d, want 3 from purchase history", got[0].ID)
	}
}

func TestCacheServesStaleUntilInvalidated(t *testing.T) {
	_, s, cat := setupEngine(t)
	e := engine.New(s, cat, engine.Config{CacheSize: 16, CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := e.FrequentlyBoughtTogether(ctx, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}

	// New purchase data lands; the cached list must survive until
	// invalidation, then reflect the change.
	seedOrder(t, s, "o1", 1, 5)
	seedOrder(t, s, "o2", 1, 5)

	cached, err := e.FrequentlyBoughtTogether(ctx, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if len(cached) != len(first) || cached[0].ID != first[0].ID {
		t.Errorf("expected cached list, got %v then %v", ids(first), ids(cached))
	}

	e.InvalidateCache()
	fresh, err := e.FrequentlyBoughtTogether(ctx, 1, 2)
	if err != nil {
		t.Fatalf("failed to recommend: %v", err)
	}
	if fresh[0].ID != 5 {
		t.Errorf("got leader %d after invalidation, want 5", fresh[0].ID)
	}
}
