package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type SQLiteStore struct {
	db  *sql.DB
	sb  goqu.DialectWrapper
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    product_id INTEGER NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    actor_key TEXT NOT NULL,
    quantity INTEGER NOT NULL DEFAULT 1,
    occurred_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_product ON interactions(product_id, type);
CREATE INDEX IF NOT EXISTS idx_interactions_actor ON interactions(actor_key, type, occurred_at);
CREATE INDEX IF NOT EXISTS idx_interactions_age ON interactions(occurred_at);

CREATE TABLE IF NOT EXISTS purchases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id TEXT NOT NULL,
    product_id INTEGER NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    actor_key TEXT NOT NULL,
    quantity INTEGER NOT NULL DEFAULT 1,
    price REAL NOT NULL DEFAULT 0,
    occurred_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_purchases_product ON purchases(product_id);
CREATE INDEX IF NOT EXISTS idx_purchases_order ON purchases(order_id);

CREATE TABLE IF NOT EXISTS tracking_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    algorithm TEXT NOT NULL DEFAULT '',
    source_product_id INTEGER NOT NULL DEFAULT 0,
    target_product_id INTEGER NOT NULL DEFAULT 0,
    user_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    actor_key TEXT NOT NULL,
    placement TEXT NOT NULL DEFAULT '',
    experiment_id INTEGER NOT NULL DEFAULT 0,
    variant_id INTEGER NOT NULL DEFAULT 0,
    conversion_type TEXT NOT NULL DEFAULT '',
    order_id TEXT NOT NULL DEFAULT '',
    value REAL NOT NULL DEFAULT 0,
    occurred_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracking_type_time ON tracking_events(event_type, occurred_at);
CREATE INDEX IF NOT EXISTS idx_tracking_algorithm ON tracking_events(algorithm, event_type);
CREATE INDEX IF NOT EXISTS idx_tracking_experiment ON tracking_events(experiment_id, variant_id, event_type);
CREATE INDEX IF NOT EXISTS idx_tracking_actor ON tracking_events(actor_key, event_type);

CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 0,
    start_at INTEGER NOT NULL DEFAULT 0,
    end_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_active ON experiments(active);

CREATE TABLE IF NOT EXISTS experiment_variants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    algorithm TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_experiment ON experiment_variants(experiment_id, position);
`

// Open opens (creating if needed) the SQLite database at dbPath and applies
// the schema. The schema is idempotent so Open is safe on an existing store.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Concurrent writers wait for the lock instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		sb:  goqu.Dialect("sqlite3"),
		now: time.Now,
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only aggregation queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// SetClock overrides the wall clock. Intended for tests that need to write
// rows with controlled ages.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) RecordInteraction(ctx context.Context, ev Interaction) error {
	if ev.Type == "" {
		return fmt.Errorf("%w: interaction type is required", ErrInvalidInput)
	}
	if ev.ProductID <= 0 {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if ev.Actor.Empty() {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if ev.Quantity <= 0 {
		ev.Quantity = 1
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (type, product_id, user_id, session_id, actor_key, quantity, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.ProductID, ev.Actor.UserID, ev.Actor.SessionID, ev.Actor.Key(), ev.Quantity, occurred.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordPurchase(ctx context.Context, p Purchase) error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if p.ProductID <= 0 {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if p.Actor.Empty() {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (order_id, product_id, user_id, session_id, actor_key, quantity, price, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.ProductID, p.Actor.UserID, p.Actor.SessionID, p.Actor.Key(), p.Quantity, p.Price, occurred.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordTracking(ctx context.Context, ev TrackingEvent) error {
	if ev.Type == "" {
		return fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	if ev.Actor.Empty() {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if ev.Type != TrackingConversion && ev.Algorithm == "" {
		return fmt.Errorf("%w: algorithm is required", ErrInvalidInput)
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracking_events (event_type, algorithm, source_product_id, target_product_id,
		     user_id, session_id, actor_key, placement, experiment_id, variant_id,
		     conversion_type, order_id, value, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.Algorithm, ev.SourceProductID, ev.TargetProductID,
		ev.Actor.UserID, ev.Actor.SessionID, ev.Actor.Key(), ev.Placement, ev.ExperimentID, ev.VariantID,
		ev.ConversionType, ev.OrderID, ev.Value, occurred.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record tracking event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Interactions(ctx context.Context, f InteractionFilter) ([]Interaction, error) {
	q := s.sb.From("interactions").
		Select("id", "type", "product_id", "user_id", "session_id", "quantity", "occurred_at").
		Order(goqu.C("occurred_at").Desc(), goqu.C("id").Desc())

	if f.Type != "" {
		q = q.Where(goqu.C("type").Eq(string(f.Type)))
	}
	if f.ProductID > 0 {
		q = q.Where(goqu.C("product_id").Eq(f.ProductID))
	}
	if f.Actor != nil {
		q = q.Where(goqu.C("actor_key").Eq(f.Actor.Key()))
	}
	if !f.Since.IsZero() {
		q = q.Where(goqu.C("occurred_at").Gte(f.Since.Unix()))
	}
	if !f.Until.IsZero() {
		q = q.Where(goqu.C("occurred_at").Lte(f.Until.Unix()))
	}
	if f.Limit > 0 {
		q = q.Limit(uint(f.Limit))
	}

	query, args, err := q.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build interactions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var events []Interaction
	for rows.Next() {
		var ev Interaction
		var typ string
		var occurredAt int64
		if err := rows.Scan(&ev.ID, &typ, &ev.ProductID, &ev.Actor.UserID, &ev.Actor.SessionID, &ev.Quantity, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		ev.Type = InteractionType(typ)
		ev.OccurredAt = time.Unix(occurredAt, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Tracking(ctx context.Context, f TrackingFilter) ([]TrackingEvent, error) {
	q := s.sb.From("tracking_events").
		Select("id", "event_type", "algorithm", "source_product_id", "target_product_id",
			"user_id", "session_id", "placement", "experiment_id", "variant_id",
			"conversion_type", "order_id", "value", "occurred_at").
		Order(goqu.C("occurred_at").Desc(), goqu.C("id").Desc())

	if f.Type != "" {
		q = q.Where(goqu.C("event_type").Eq(string(f.Type)))
	}
	if f.Algorithm != "" {
		q = q.Where(goqu.C("algorithm").Eq(f.Algorithm))
	}
	if f.TargetProductID > 0 {
		q = q.Where(goqu.C("target_product_id").Eq(f.TargetProductID))
	}
	if f.Actor != nil {
		q = q.Where(goqu.C("actor_key").Eq(f.Actor.Key()))
	}
	if f.Placement != "" {
		q = q.Where(goqu.C("placement").Eq(f.Placement))
	}
	if f.ExperimentID > 0 {
		q = q.Where(goqu.C("experiment_id").Eq(f.ExperimentID))
	}
	if !f.Since.IsZero() {
		q = q.Where(goqu.C("occurred_at").Gte(f.Since.Unix()))
	}
	if !f.Until.IsZero() {
		q = q.Where(goqu.C("occurred_at").Lte(f.Until.Unix()))
	}
	if f.Limit > 0 {
		q = q.Limit(uint(f.Limit))
	}

	query, args, err := q.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build tracking query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking events: %w", err)
	}
	defer rows.Close()

	var events []TrackingEvent
	for rows.Next() {
		var ev TrackingEvent
		var typ string
		var occurredAt int64
		if err := rows.Scan(&ev.ID, &typ, &ev.Algorithm, &ev.SourceProductID, &ev.TargetProductID,
			&ev.Actor.UserID, &ev.Actor.SessionID, &ev.Placement, &ev.ExperimentID, &ev.VariantID,
			&ev.ConversionType, &ev.OrderID, &ev.Value, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracking event: %w", err)
		}
		ev.Type = TrackingType(typ)
		ev.OccurredAt = time.Unix(occurredAt, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CoPurchasedWith counts, per other product, how many order lines share an
// order with productID. Ties break toward the most recently purchased product.
func (s *SQLiteStore) CoPurchasedWith(ctx context.Context, productID int64) ([]ProductCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, COUNT(*) AS cnt
		FROM purchases
		WHERE order_id IN (SELECT order_id FROM purchases WHERE product_id = ?)
		  AND product_id != ?
		GROUP BY product_id
		ORDER BY cnt DESC, MAX(occurred_at) DESC
	`, productID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query co-purchases: %w", err)
	}
	defer rows.Close()
	return scanProductCounts(rows)
}

// CoViewedWith counts, per other product, how many distinct actors who viewed
// productID also viewed it.
func (s *SQLiteStore) CoViewedWith(ctx context.Context, productID int64) ([]ProductCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, COUNT(DISTINCT actor_key) AS cnt
		FROM interactions
		WHERE type = 'view'
		  AND product_id != ?
		  AND actor_key IN (
		      SELECT DISTINCT actor_key FROM interactions WHERE type = 'view' AND product_id = ?
		  )
		GROUP BY product_id
		ORDER BY cnt DESC, MAX(occurred_at) DESC
	`, productID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query co-views: %w", err)
	}
	defer rows.Close()
	return scanProductCounts(rows)
}

// RecentViews returns the actor's last n distinct viewed products,
// most-recent-first.
func (s *SQLiteStore) RecentViews(ctx context.Context, actor Actor, n int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, MAX(occurred_at) AS last_seen
		FROM interactions
		WHERE type = 'view' AND actor_key = ?
		GROUP BY product_id
		ORDER BY last_seen DESC
		LIMIT ?
	`, actor.Key(), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent views: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id, lastSeen int64
		if err := rows.Scan(&id, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan recent view: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ViewCounts counts view interactions per product since the given time.
func (s *SQLiteStore) ViewCounts(ctx context.Context, since time.Time) ([]ProductCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, COUNT(*) AS cnt
		FROM interactions
		WHERE type = 'view' AND occurred_at >= ?
		GROUP BY product_id
		ORDER BY cnt DESC
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query view counts: %w", err)
	}
	defer rows.Close()
	return scanProductCounts(rows)
}

// ClicksByAlgorithm returns the actor's historical click counts keyed by
// algorithm name.
func (s *SQLiteStore) ClicksByAlgorithm(ctx context.Context, actor Actor) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT algorithm, COUNT(*) AS cnt
		FROM tracking_events
		WHERE event_type = 'click' AND actor_key = ?
		GROUP BY algorithm
	`, actor.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks by algorithm: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var alg string
		var cnt int
		if err := rows.Scan(&alg, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan click count: %w", err)
		}
		counts[alg] = cnt
	}
	return counts, rows.Err()
}

// Cleanup deletes interactions and tracking events strictly older than
// now - retentionDays. Purchases are never deleted. Re-running on an already
// clean store is a no-op; the returned count is rows removed.
func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", ErrInvalidInput)
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays).Unix()

	var total int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean interactions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM tracking_events WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("failed to clean tracking events: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

func scanProductCounts(rows *sql.Rows) ([]ProductCount, error) {
	var counts []ProductCount
	for rows.Next() {
		var pc ProductCount
		if err := rows.Scan(&pc.ProductID, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan product count: %w", err)
		}
		counts = append(counts, pc)
	}
	return counts, rows.Err()
}
