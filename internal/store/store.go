package store

import (
	"context"
	"time"
)

// Store defines persistence for behavioral events, tracking data and
// experiments. Writes are append-only; retention cleanup is the only delete
// path and it never touches purchases.
type Store interface {
	// Event writes
	RecordInteraction(ctx context.Context, ev Interaction) error
	RecordPurchase(ctx context.Context, p Purchase) error
	RecordTracking(ctx context.Context, ev TrackingEvent) error

	// Event reads
	Interactions(ctx context.Context, f InteractionFilter) ([]Interaction, error)
	Tracking(ctx context.Context, f TrackingFilter) ([]TrackingEvent, error)

	// Aggregates backing the recommendation algorithms
	CoPurchasedWith(ctx context.Context, productID int64) ([]ProductCount, error)
	CoViewedWith(ctx context.Context, productID int64) ([]ProductCount, error)
	RecentViews(ctx context.Context, actor Actor, n int) ([]int64, error)
	ViewCounts(ctx context.Context, since time.Time) ([]ProductCount, error)
	ClicksByAlgorithm(ctx context.Context, actor Actor) (map[string]int, error)

	// Experiment operations
	CreateExperiment(ctx context.Context, name, description string, variants []Variant) (*Experiment, error)
	GetExperiment(ctx context.Context, id int64) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ActiveExperiment(ctx context.Context) (*Experiment, error)
	ActivateExperiment(ctx context.Context, id int64) error
	EndExperiment(ctx context.Context, id int64) error

	// Retention
	Cleanup(ctx context.Context, retentionDays int) (int64, error)

	// Lifecycle
	Close() error
}
