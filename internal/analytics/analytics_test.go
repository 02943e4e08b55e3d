package analytics_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shoprec/shoprec/internal/analytics"
	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/store"
)

func setupAggregator(t *testing.T) (*analytics.Aggregator, *store.SQLiteStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cat := catalog.NewMemory()
	cat.Add(
		catalog.Product{ID: 1, Name: "Espresso Machine", Price: 249, Purchasable: true, InStock: true},
		catalog.Product{ID: 2, Name: "Burr Grinder", Price: 89, Purchasable: true, InStock: true},
	)

	return analytics.New(s.DB(), cat), s
}

func track(t *testing.T, s *store.SQLiteStore, typ store.TrackingType, algorithm, placement string, productID int64, at time.Time) {
	t.Helper()
	ev := store.TrackingEvent{
		Type:            typ,
		Algorithm:       algorithm,
		TargetProductID: productID,
		Actor:           store.Actor{SessionID: "s1"},
		Placement:       placement,
		OccurredAt:      at,
	}
	if err := s.RecordTracking(context.Background(), ev); err != nil {
		t.Fatalf("failed to record tracking event: %v", err)
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func TestTimeSeries_DenseGridWithZeroFill(t *testing.T) {
	a, s := setupAggregator(t)
	ctx := context.Background()

	// Impressions on days 1 and 3 only; day 2 must still appear with zero.
	track(t, s, store.TrackingImpression, "popular", "product", 1, day(2026, time.March, 1))
	track(t, s, store.TrackingImpression, "popular", "product", 1, day(2026, time.March, 1))
	track(t, s, store.TrackingImpression, "popular", "product", 1, day(2026, time.March, 3))
	track(t, s, store.TrackingImpression, "similar", "product", 2, day(2026, time.March, 2))

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 3, 23, 59, 59, 0, time.UTC)
	series, err := a.TimeSeries(ctx, store.TrackingImpression, start, end)
	if err != nil {
		t.Fatalf("failed to compute time series: %v", err)
	}

	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}
	// Algorithms come back sorted.
	if series[0].Algorithm != "popular" || series[1].Algorithm != "similar" {
		t.Fatalf("got algorithms %s, %s, want popular, similar", series[0].Algorithm, series[1].Algorithm)
	}

	popular := series[0]
	if len(popular.Points) != 3 {
		t.Fatalf("got %d points, want 3 (dense grid)", len(popular.Points))
	}
	wantCounts := []int{2, 0, 1}
	wantDates := []string{"2026-03-01", "2026-03-02", "2026-03-03"}
	for i, p := range popular.Points {
		if p.Date != wantDates[i] || p.Count != wantCounts[i] {
			t.Errorf("point %d: got %s=%d, want %s=%d", i, p.Date, p.Count, wantDates[i], wantCounts[i])
		}
	}
}

func TestTimeSeries_RejectsInvertedRange(t *testing.T) {
	a, _ := setupAggregator(t)

	end := time.Now()
	start := end.Add(24 * time.Hour)
	_, err := a.TimeSeries(context.Background(), store.TrackingImpression, start, end)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestConversionTable_CTRRounding(t *testing.T) {
	a, s := setupAggregator(t)
	now := time.Now()

	// 1 click over 3 impressions: 33.333...% rounds to 33.33.
	for i := 0; i < 3; i++ {
		track(t, s, store.TrackingImpression, "popular", "product", 1, now)
	}
	track(t, s, store.TrackingClick, "popular", "product", 1, now)

	rows, err := a.ConversionTable(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to compute conversion table: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].CTR != 33.33 {
		t.Errorf("got CTR %f, want 33.33", rows[0].CTR)
	}
}

func TestConversionTable_ZeroImpressionsZeroCTR(t *testing.T) {
	a, s := setupAggregator(t)
	now := time.Now()

	// Clicks with no impressions must not divide by zero.
	track(t, s, store.TrackingClick, "orphan", "product", 1, now)

	rows, err := a.ConversionTable(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to compute conversion table: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].CTR != 0 {
		t.Errorf("got CTR %f, want 0 without impressions", rows[0].CTR)
	}
}

func TestConversionTable_CTRCapsAt100(t *testing.T) {
	a, s := setupAggregator(t)
	now := time.Now()

	// Clicks and impressions are independent writes, so clicks can
	// outnumber impressions. The rate must still stay within 100%.
	track(t, s, store.TrackingImpression, "popular", "product", 1, now)
	track(t, s, store.TrackingClick, "popular", "product", 1, now)
	track(t, s, store.TrackingClick, "popular", "product", 1, now)

	rows, err := a.ConversionTable(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to compute conversion table: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].CTR != 100 {
		t.Errorf("got CTR %f, want 100 cap", rows[0].CTR)
	}

	sum, err := a.Summary(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to compute summary: %v", err)
	}
	if sum.CTR != 100 {
		t.Errorf("got summary CTR %f, want 100 cap", sum.CTR)
	}
}

func TestPlacementTable(t *testing.T) {
	a, s := setupAggregator(t)
	now := time.Now()

	track(t, s, store.TrackingImpression, "popular", "cart", 1, now)
	track(t, s, store.TrackingClick, "popular", "cart", 1, now)
	track(t, s, store.TrackingImpression, "popular", "product", 2, now)

	rows, err := a.PlacementTable(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to compute placement table: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Key != "cart" || rows[0].CTR != 100 {
		t.Errorf("got %+v, want cart at 100%% CTR", rows[0])
	}
	if rows[1].Key != "product" || rows[1].Clicks != 0 {
		t.Errorf("got %+v, want product with no clicks", rows[1])
	}
}

func TestTopProducts(t *testing.T) {
	a, s := setupAggregator(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		track(t, s, store.TrackingClick, "popular", "product", 2, now)
	}
	track(t, s, store.TrackingClick, "popular", "product", 1, now)
	// Product 99 is not in the catalog; it still ranks, just without a name.
	track(t, s, store.TrackingClick, "popular", "product", 99, now)
	track(t, s, store.TrackingClick, "popular", "product", 99, now)

	got, err := a.TopProducts(context.Background(), now.Add(-time.Hour), now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("failed to compute top products: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d products, want 3", len(got))
	}
	if got[0].ProductID != 2 || got[0].Clicks != 3 {
		t.Errorf("got leader %+v, want product 2 with 3 clicks", got[0])
	}
	if got[0].Name != "Burr Grinder" || got[0].Price != 89 {
		t.Errorf("got %+v, want catalog attributes joined", got[0])
	}
	if got[1].ProductID != 99 || got[1].Name != "" {
		t.Errorf("got %+v, want unknown product 99 without a name", got[1])
	}
}

func TestTopProducts_NegativeLimitRejected(t *testing.T) {
	a, _ := setupAggregator(t)
	now := time.Now()

	_, err := a.TopProducts(context.Background(), now.Add(-time.Hour), now, -1)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestSummary(t *testing.T) {
	a, s := setupAggregator(t)
	now := time.Now()

	// popular: 4 impressions, 2 clicks (50%). similar: 4 impressions, 1
	// click (25%).
	for i := 0; i < 4; i++ {
		track(t, s, store.TrackingImpression, "popular", "product", 1, now)
		track(t, s, store.TrackingImpression, "similar", "cart", 2, now)
	}
	track(t, s, store.TrackingClick, "popular", "product", 1, now)
	track(t, s, store.TrackingClick, "popular", "product", 2, now)
	track(t, s, store.TrackingClick, "similar", "cart", 2, now)

	got, err := a.Summary(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to compute summary: %v", err)
	}
	if got.Impressions != 8 || got.Clicks != 3 {
		t.Errorf("got totals %d/%d, want 8 impressions and 3 clicks", got.Impressions, got.Clicks)
	}
	if got.CTR != 37.5 {
		t.Errorf("got CTR %f, want 37.5", got.CTR)
	}
	if got.BestAlgorithm != "popular" || got.WorstAlgorithm != "similar" {
		t.Errorf("got best %s worst %s, want popular and similar", got.BestAlgorithm, got.WorstAlgorithm)
	}
	if got.BestPlacement != "product" {
		t.Errorf("got best placement %s, want product", got.BestPlacement)
	}
	if got.EstimatedRevenue != 1.5 {
		t.Errorf("got estimated revenue %f, want 1.50", got.EstimatedRevenue)
	}
}
