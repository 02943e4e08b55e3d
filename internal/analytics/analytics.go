// Package analytics turns raw tracking events into time-bucketed and summary
// metrics for reporting.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/store"
)

// revenuePerClick is the fixed heuristic multiplier behind the estimated
// revenue figure. Not a measured quantity; treat the output accordingly.
const revenuePerClick = 0.50

const dayFormat = "2006-01-02"

// Aggregator computes reporting metrics from the tracking event table.
type Aggregator struct {
	db      *sql.DB
	sb      goqu.DialectWrapper
	catalog catalog.Gateway
}

func New(db *sql.DB, cat catalog.Gateway) *Aggregator {
	return &Aggregator{db: db, sb: goqu.Dialect("sqlite3"), catalog: cat}
}

// Series is one algorithm's daily counts across the full requested range.
type Series struct {
	Algorithm string
	Points    []SeriesPoint
}

// SeriesPoint is a single day's count. Days with no events carry zero.
type SeriesPoint struct {
	Date  string
	Count int
}

// TimeSeries groups events of the given type by (algorithm, date) within
// [start, end]. Every date in the range appears for every algorithm observed,
// zero-filled where no events occurred.
func (a *Aggregator) TimeSeries(ctx context.Context, eventType store.TrackingType, start, end time.Time) ([]Series, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	query, args, err := a.sb.From("tracking_events").
		Select(
			goqu.C("algorithm"),
			goqu.L("date(occurred_at, 'unixepoch')").As("day"),
			goqu.L("COUNT(*)").As("cnt"),
		).
		Where(
			goqu.C("event_type").Eq(string(eventType)),
			goqu.C("occurred_at").Gte(start.Unix()),
			goqu.C("occurred_at").Lte(end.Unix()),
		).
		GroupBy(goqu.C("algorithm"), goqu.L("day")).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build time series query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time series: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var alg, day string
		var cnt int
		if err := rows.Scan(&alg, &day, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan time series row: %w", err)
		}
		if counts[alg] == nil {
			counts[alg] = make(map[string]int)
		}
		counts[alg][day] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	days := daysBetween(start, end)
	algorithms := make([]string, 0, len(counts))
	for alg := range counts {
		algorithms = append(algorithms, alg)
	}
	sort.Strings(algorithms)

	series := make([]Series, 0, len(algorithms))
	for _, alg := range algorithms {
		s := Series{Algorithm: alg, Points: make([]SeriesPoint, 0, len(days))}
		for _, day := range days {
			s.Points = append(s.Points, SeriesPoint{Date: day, Count: counts[alg][day]})
		}
		series = append(series, s)
	}
	return series, nil
}

// ConversionRow reports impressions, clicks and CTR for one grouping key.
type ConversionRow struct {
	Key         string
	Impressions int
	Clicks      int
	CTR         float64
}

// ConversionTable reports per-algorithm impressions, clicks and CTR
// within [start, end].
func (a *Aggregator) ConversionTable(ctx context.Context, start, end time.Time) ([]ConversionRow, error) {
	return a.conversionRows(ctx, "algorithm", start, end)
}

// PlacementTable is ConversionTable grouped by placement instead.
func (a *Aggregator) PlacementTable(ctx context.Context, start, end time.Time) ([]ConversionRow, error) {
	return a.conversionRows(ctx, "placement", start, end)
}

func (a *Aggregator) conversionRows(ctx context.Context, groupCol string, start, end time.Time) ([]ConversionRow, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	query, args, err := a.sb.From("tracking_events").
		Select(
			goqu.C(groupCol),
			goqu.L("SUM(CASE WHEN event_type = 'impression' THEN 1 ELSE 0 END)").As("impressions"),
			goqu.L("SUM(CASE WHEN event_type = 'click' THEN 1 ELSE 0 END)").As("clicks"),
		).
		Where(
			goqu.C("event_type").In("impression", "click"),
			goqu.C("occurred_at").Gte(start.Unix()),
			goqu.C("occurred_at").Lte(end.Unix()),
		).
		GroupBy(goqu.C(groupCol)).
		Order(goqu.C(groupCol).Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build conversion query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion table: %w", err)
	}
	defer rows.Close()

	var out []ConversionRow
	for rows.Next() {
		var row ConversionRow
		if err := rows.Scan(&row.Key, &row.Impressions, &row.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan conversion row: %w", err)
		}
		row.CTR = ctr(row.Clicks, row.Impressions)
		out = append(out, row)
	}
	return out, rows.Err()
}

// TopProduct is a click-ranked product joined to its catalog attributes.
type TopProduct struct {
	ProductID int64
	Name      string
	Price     float64
	Clicks    int
}

// TopProducts ranks products by click count within [start, end].
func (a *Aggregator) TopProducts(ctx context.Context, start, end time.Time, limit int) ([]TopProduct, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", store.ErrInvalidInput, limit)
	}

	query, args, err := a.sb.From("tracking_events").
		Select(goqu.C("target_product_id"), goqu.L("COUNT(*)").As("cnt")).
		Where(
			goqu.C("event_type").Eq("click"),
			goqu.C("target_product_id").Gt(0),
			goqu.C("occurred_at").Gte(start.Unix()),
			goqu.C("occurred_at").Lte(end.Unix()),
		).
		GroupBy(goqu.C("target_product_id")).
		Order(goqu.L("cnt").Desc(), goqu.C("target_product_id").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build top products query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	var out []TopProduct
	for rows.Next() {
		var tp TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan top product: %w", err)
		}
		out = append(out, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		p, err := a.catalog.Product(ctx, out[i].ProductID)
		if err == catalog.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog lookup: %w", err)
		}
		out[i].Name = p.Name
		out[i].Price = p.Price
	}
	return out, nil
}

// Summary is the headline report across a date range.
type Summary struct {
	Impressions int
	Clicks      int
	CTR         float64

	// Best/worst algorithms by CTR among those with impressions.
	BestAlgorithm  string
	WorstAlgorithm string

	BestPlacement string

	// EstimatedRevenue is clicks multiplied by a fixed heuristic constant.
	EstimatedRevenue float64
}

// Summary aggregates totals, best and worst performing algorithm by CTR
// (only algorithms with impressions are eligible), best placement, and the
// heuristic revenue estimate.
func (a *Aggregator) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	byAlgorithm, err := a.ConversionTable(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byPlacement, err := a.PlacementTable(ctx, start, end)
	if err != nil {
		return nil, err
	}

	s := &Summary{}
	bestCTR, worstCTR := -1.0, math.MaxFloat64
	for _, row := range byAlgorithm {
		s.Impressions += row.Impressions
		s.Clicks += row.Clicks
		if row.Impressions == 0 {
			continue
		}
		if row.CTR > bestCTR {
			bestCTR = row.CTR
			s.BestAlgorithm = row.Key
		}
		if row.CTR < worstCTR {
			worstCTR = row.CTR
			s.WorstAlgorithm = row.Key
		}
	}
	s.CTR = ctr(s.Clicks, s.Impressions)

	bestPlacementCTR := -1.0
	for _, row := range byPlacement {
		if row.Impressions > 0 && row.CTR > bestPlacementCTR {
			bestPlacementCTR = row.CTR
			s.BestPlacement = row.Key
		}
	}

	s.EstimatedRevenue = float64(s.Clicks) * revenuePerClick
	return s, nil
}

// ctr computes clicks/impressions as a percentage rounded to 2 decimals,
// defined as 0 when impressions is 0. Clicks and impressions are recorded
// independently, so clicks can outnumber impressions; the rate caps at 100.
func ctr(clicks, impressions int) float64 {
	if impressions == 0 {
		return 0
	}
	if clicks > impressions {
		clicks = impressions
	}
	return math.Round(float64(clicks)/float64(impressions)*100*100) / 100
}

func checkRange(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", store.ErrInvalidInput)
	}
	return nil
}

// daysBetween lists each calendar day in [start, end] inclusive, UTC.
func daysBetween(start, end time.Time) []string {
	var days []string
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end.UTC()); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dayFormat))
	}
	return days
}
