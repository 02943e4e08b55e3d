// Package experiment runs controlled comparisons of recommendation
// algorithms: deterministic variant assignment, impression and conversion
// recording, lifecycle transitions and results aggregation.
package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/engine"
	"github.com/shoprec/shoprec/internal/logging"
	"github.com/shoprec/shoprec/internal/ranking"
	"github.com/shoprec/shoprec/internal/store"
)

// ErrNoActiveExperiment signals that no experiment is currently running.
var ErrNoActiveExperiment = errors.New("no active experiment")

// Manager coordinates experiment lifecycle, assignment and measurement.
type Manager struct {
	store   store.Store
	engine  *engine.Engine
	ranking *ranking.Model
}

func NewManager(s store.Store, e *engine.Engine, r *ranking.Model) *Manager {
	return &Manager{store: s, engine: e, ranking: r}
}

// Create registers a new experiment in the draft state; activateNow promotes
// it immediately via the atomic activation.
func (m *Manager) Create(ctx context.Context, name, description string, variants []store.Variant, activateNow bool) (*store.Experiment, error) {
	exp, err := m.store.CreateExperiment(ctx, name, description, variants)
	if err != nil {
		return nil, err
	}
	if activateNow {
		if err := m.store.ActivateExperiment(ctx, exp.ID); err != nil {
			return nil, err
		}
		return m.store.GetExperiment(ctx, exp.ID)
	}
	return exp, nil
}

// Get returns one experiment by id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.Experiment, error) {
	return m.store.GetExperiment(ctx, id)
}

// List returns every experiment, newest first.
func (m *Manager) List(ctx context.Context) ([]*store.Experiment, error) {
	return m.store.ListExperiments(ctx)
}

// Activate promotes the experiment to the single active slot. The store
// executes deactivate-all/activate-one in one transaction, so two concurrent
// activations cannot leave zero or two active experiments.
func (m *Manager) Activate(ctx context.Context, id int64) error {
	return m.store.ActivateExperiment(ctx, id)
}

// End transitions the experiment to its terminal state.
func (m *Manager) End(ctx context.Context, id int64) error {
	return m.store.EndExperiment(ctx, id)
}

// AssignVariant deterministically buckets the actor into a variant of the
// active experiment and records an impression for the assignment. The
// impression is recorded on every call; callers wanting one impression per
// page view must dedupe themselves.
func (m *Manager) AssignVariant(ctx context.Context, actor store.Actor) (*store.Experiment, *store.Variant, error) {
	exp, variant, err := m.assignment(ctx, actor)
	if err != nil {
		return nil, nil, err
	}

	impression := store.TrackingEvent{
		Type:         store.TrackingImpression,
		Algorithm:    variant.Algorithm,
		Actor:        actor,
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
	}
	if err := m.store.RecordTracking(ctx, impression); err != nil {
		// Tracking failures never block the recommendation path.
		logging.Warn().Err(err).Int64("experiment", exp.ID).Msg("dropped impression event")
	}

	return exp, variant, nil
}

// assignment resolves the active experiment and the actor's variant without
// recording anything. Pure given (experiment, actor).
func (m *Manager) assignment(ctx context.Context, actor store.Actor) (*store.Experiment, *store.Variant, error) {
	exp, err := m.store.ActiveExperiment(ctx)
	if err == store.ErrNotFound {
		return nil, nil, ErrNoActiveExperiment
	}
	if err != nil {
		return nil, nil, fmt.Errorf("active experiment lookup: %w", err)
	}
	if len(exp.Variants) == 0 {
		return nil, nil, fmt.Errorf("experiment %d has no variants", exp.ID)
	}
	v := exp.Variants[bucket(actor.Key(), len(exp.Variants))]
	return exp, &v, nil
}

// bucket hashes the actor key to a stable pseudo-uniform value in [0,1) and
// scales it to a variant index.
func bucket(actorKey string, variants int) int {
	sum := sha256.Sum256([]byte(actorKey))
	u := binary.BigEndian.Uint64(sum[:8])
	f := float64(u) / (1 << 64)
	idx := int(f * float64(variants))
	if idx >= variants {
		idx = variants - 1
	}
	return idx
}

// Recommendations is a titled recommendation list with its provenance.
type Recommendations struct {
	Title        string
	Algorithm    string
	ExperimentID int64
	VariantID    int64
	Products     []catalog.Product
}

// RecommendationsFor resolves the actor's assigned variant and delegates to
// the variant's algorithm. Without an active experiment it falls back to
// frequently-bought-together.
func (m *Manager) RecommendationsFor(ctx context.Context, actor store.Actor, productID int64, limit int) (*Recommendations, error) {
	exp, variant, err := m.AssignVariant(ctx, actor)
	if err == ErrNoActiveExperiment {
		products, err := m.engine.FrequentlyBoughtTogether(ctx, productID, limit)
		if err != nil {
			return nil, err
		}
		return &Recommendations{
			Title:     DisplayTitle(engine.AlgFrequentlyBoughtTogether),
			Algorithm: engine.AlgFrequentlyBoughtTogether,
			Products:  products,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	products, err := m.Dispatch(ctx, variant.Algorithm, actor, productID, limit)
	if err != nil {
		return nil, err
	}
	title := variant.Title
	if title == "" {
		title = DisplayTitle(variant.Algorithm)
	}
	return &Recommendations{
		Title:        title,
		Algorithm:    variant.Algorithm,
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		Products:     products,
	}, nil
}

// DisplayTitle is the storefront heading shown for an algorithm when a
// variant carries no title of its own.
func DisplayTitle(algorithm string) string {
	switch algorithm {
	case engine.AlgFrequentlyBoughtTogether:
		return "Frequently Bought Together"
	case engine.AlgAlsoViewed:
		return "Customers Also Viewed"
	case engine.AlgSimilar:
		return "Similar Products"
	case engine.AlgPersonalized:
		return "Recommended For You"
	case engine.AlgPopular:
		return "Popular Products"
	case ranking.AlgEnhanced:
		return "Top Picks For You"
	case ranking.AlgTrending:
		return "Trending Now"
	case ranking.AlgSeasonal:
		return "Seasonal Picks"
	default:
		return "You May Also Like"
	}
}

// Dispatch routes an algorithm name to its implementation.
func (m *Manager) Dispatch(ctx context.Context, algorithm string, actor store.Actor, productID int64, limit int) ([]catalog.Product, error) {
	switch algorithm {
	case engine.AlgFrequentlyBoughtTogether:
		return m.engine.FrequentlyBoughtTogether(ctx, productID, limit)
	case engine.AlgAlsoViewed:
		return m.engine.AlsoViewed(ctx, productID, limit)
	case engine.AlgSimilar:
		return m.engine.Similar(ctx, productID, limit)
	case engine.AlgPersonalized:
		return m.engine.Personalized(ctx, actor, limit)
	case engine.AlgPopular:
		return m.engine.Popular(ctx, limit)
	case ranking.AlgEnhanced:
		return m.ranking.Enhanced(ctx, productID, actor, limit)
	case ranking.AlgTrending:
		return m.ranking.Trending(ctx, limit, 0)
	case ranking.AlgSeasonal:
		return m.ranking.Seasonal(ctx, limit)
	default:
		return m.engine.FrequentlyBoughtTogether(ctx, productID, limit)
	}
}

// TrackConversion attributes a conversion to the actor's assigned variant.
// No-op when no experiment is active. Unlike AssignVariant this records no
// impression.
func (m *Manager) TrackConversion(ctx context.Context, actor store.Actor, conversionType, orderID string, value float64) error {
	exp, variant, err := m.assignment(ctx, actor)
	if err == ErrNoActiveExperiment {
		return nil
	}
	if err != nil {
		return err
	}

	ev := store.TrackingEvent{
		Type:           store.TrackingConversion,
		Algorithm:      variant.Algorithm,
		Actor:          actor,
		ExperimentID:   exp.ID,
		VariantID:      variant.ID,
		ConversionType: conversionType,
		OrderID:        orderID,
		Value:          value,
	}
	if err := m.store.RecordTracking(ctx, ev); err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}
