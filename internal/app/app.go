// Package app is the composition root. One wiring function constructs the
// store, engine, ranking model, experiment manager and analytics aggregator
// with explicit dependency injection, and exposes the presentation boundary
// the storefront integrates against.
package app

import (
	"context"

	"github.com/shoprec/shoprec/internal/analytics"
	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/engine"
	"github.com/shoprec/shoprec/internal/experiment"
	"github.com/shoprec/shoprec/internal/logging"
	"github.com/shoprec/shoprec/internal/ranking"
	"github.com/shoprec/shoprec/internal/store"
)

// ActorResolver supplies the current visitor identity. The storefront session
// layer implements it.
type ActorResolver interface {
	CurrentActor() store.Actor
}

// App wires every component together over one store.
type App struct {
	cfg         *config.Config
	store       *store.SQLiteStore
	catalog     catalog.Gateway
	engine      *engine.Engine
	ranking     *ranking.Model
	experiments *experiment.Manager
	analytics   *analytics.Aggregator
}

// New opens the store at cfg.DBPath and wires all components.
func New(cfg *config.Config, cat catalog.Gateway) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	eng := engine.New(st, cat, engine.Config{CacheSize: cfg.CacheSize, CacheTTL: cfg.CacheTTL})
	rank := ranking.New(st, cat, eng)

	return &App{
		cfg:         cfg,
		store:       st,
		catalog:     cat,
		engine:      eng,
		ranking:     rank,
		experiments: experiment.NewManager(st, eng, rank),
		analytics:   analytics.New(st.DB(), cat),
	}, nil
}

func (a *App) Close() error { return a.store.Close() }

func (a *App) Store() *store.SQLiteStore          { return a.store }
func (a *App) Engine() *engine.Engine             { return a.engine }
func (a *App) Ranking() *ranking.Model            { return a.ranking }
func (a *App) Experiments() *experiment.Manager   { return a.experiments }
func (a *App) Analytics() *analytics.Aggregator   { return a.analytics }

// GetRecommendations serves a titled recommendation list for a placement.
// An active experiment overrides the placement's configured algorithm. Every
// call runs under the configured query deadline so a stalled primary path
// still terminates through the fallback chain.
func (a *App) GetRecommendations(ctx context.Context, actor store.Actor, placement string, productID int64, limit int) (*experiment.Recommendations, error) {
	if limit == 0 {
		limit = a.cfg.ResultLimit
	}
	ctx, cancel := a.deadline(ctx)
	defer cancel()

	if _, err := a.store.ActiveExperiment(ctx); err == nil {
		return a.experiments.RecommendationsFor(ctx, actor, productID, limit)
	}

	algorithm := a.cfg.Placements[placement]
	if algorithm == "" {
		algorithm = engine.AlgFrequentlyBoughtTogether
	}
	products, err := a.experiments.Dispatch(ctx, algorithm, actor, productID, limit)
	if err != nil {
		return nil, err
	}
	return &experiment.Recommendations{
		Title:     experiment.DisplayTitle(algorithm),
		Algorithm: algorithm,
		Products:  products,
	}, nil
}

// RunAlgorithm serves a titled list from one named algorithm, bypassing
// placement and experiment resolution. A zero limit uses the configured
// default; a negative limit is rejected as invalid input.
func (a *App) RunAlgorithm(ctx context.Context, algorithm string, actor store.Actor, productID int64, limit int) (*experiment.Recommendations, error) {
	if limit == 0 {
		limit = a.cfg.ResultLimit
	}
	ctx, cancel := a.deadline(ctx)
	defer cancel()

	products, err := a.experiments.Dispatch(ctx, algorithm, actor, productID, limit)
	if err != nil {
		return nil, err
	}
	return &experiment.Recommendations{
		Title:     experiment.DisplayTitle(algorithm),
		Algorithm: algorithm,
		Products:  products,
	}, nil
}

// TrackClick records a click on a recommended product. Failures are logged
// and dropped; a tracking problem must never break the storefront.
func (a *App) TrackClick(ctx context.Context, actor store.Actor, contextProductID, recommendedProductID int64, algorithm, placement string) {
	if !a.trackingEnabled(actor) {
		return
	}
	ev := store.TrackingEvent{
		Type:            store.TrackingClick,
		Algorithm:       algorithm,
		SourceProductID: contextProductID,
		TargetProductID: recommendedProductID,
		Actor:           actor,
		Placement:       placement,
	}
	if err := a.store.RecordTracking(ctx, ev); err != nil {
		logging.Warn().Err(err).Str("algorithm", algorithm).Msg("dropped click event")
	}
}

// TrackImpressions records one impression per recommended product shown.
func (a *App) TrackImpressions(ctx context.Context, actor store.Actor, algorithm string, contextProductID int64, recommendedIDs []int64, placement string) {
	if !a.trackingEnabled(actor) {
		return
	}
	for _, id := range recommendedIDs {
		ev := store.TrackingEvent{
			Type:            store.TrackingImpression,
			Algorithm:       algorithm,
			SourceProductID: contextProductID,
			TargetProductID: id,
			Actor:           actor,
			Placement:       placement,
		}
		if err := a.store.RecordTracking(ctx, ev); err != nil {
			logging.Warn().Err(err).Str("algorithm", algorithm).Msg("dropped impression event")
			return
		}
	}
}

// RecordInteraction appends a behavioral event and invalidates cached
// recommendation lists.
func (a *App) RecordInteraction(ctx context.Context, ev store.Interaction) error {
	if err := a.store.RecordInteraction(ctx, ev); err != nil {
		return err
	}
	a.engine.InvalidateCache()
	return nil
}

// RecordPurchase appends an order line and invalidates cached lists.
func (a *App) RecordPurchase(ctx context.Context, p store.Purchase) error {
	if err := a.store.RecordPurchase(ctx, p); err != nil {
		return err
	}
	a.engine.InvalidateCache()
	return nil
}

// RunRetentionCleanup purges interaction and tracking events older than the
// configured retention window. Intended for periodic external scheduling;
// re-running is harmless.
func (a *App) RunRetentionCleanup(ctx context.Context) (int64, error) {
	removed, err := a.store.Cleanup(ctx, a.cfg.RetentionDays)
	if err != nil {
		return 0, err
	}
	logging.Info().Int64("removed", removed).Int("retention_days", a.cfg.RetentionDays).Msg("retention cleanup finished")
	return removed, nil
}

func (a *App) trackingEnabled(actor store.Actor) bool {
	if actor.Empty() {
		return false
	}
	if actor.Anonymous() {
		return a.cfg.TrackAnonymous && !a.cfg.PrivacyCompliance
	}
	return a.cfg.TrackLoggedIn
}

func (a *App) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.cfg.QueryTimeout)
}
