package store

import "time"

// InteractionType classifies a recorded shopper behavior.
type InteractionType string

const (
	InteractionView           InteractionType = "view"
	InteractionAddToCart      InteractionType = "add_to_cart"
	InteractionRemoveFromCart InteractionType = "remove_from_cart"
	InteractionSearch         InteractionType = "search"
)

// TrackingType classifies a recommendation tracking event.
type TrackingType string

const (
	TrackingImpression TrackingType = "impression"
	TrackingClick      TrackingType = "click"
	TrackingConversion TrackingType = "conversion"
)

// Actor identifies a visitor: a stable user id for logged-in shoppers or an
// anonymous session id. Exactly one of the two must be set per event.
type Actor struct {
	UserID    string
	SessionID string
}

// Key returns the canonical identity key. The user id wins when both are set.
func (a Actor) Key() string {
	if a.UserID != "" {
		return "user:" + a.UserID
	}
	return "session:" + a.SessionID
}

// Anonymous reports whether the actor has no stable user id.
func (a Actor) Anonymous() bool {
	return a.UserID == ""
}

// Empty reports whether neither identity field is set.
func (a Actor) Empty() bool {
	return a.UserID == "" && a.SessionID == ""
}

// Interaction is a single recorded behavioral event. Immutable once written;
// subject to retention cleanup.
type Interaction struct {
	ID         int64
	Type       InteractionType
	ProductID  int64
	Actor      Actor
	Quantity   int
	OccurredAt time.Time
}

// Purchase records one line of a completed order. Purchase history is
// permanent and never removed by retention cleanup.
type Purchase struct {
	ID         int64
	OrderID    string
	ProductID  int64
	Actor      Actor
	Quantity   int
	Price      float64
	OccurredAt time.Time
}

// TrackingEvent records an impression, click or conversion attributed to a
// recommendation algorithm and, when an experiment is running, to a variant.
type TrackingEvent struct {
	ID              int64
	Type            TrackingType
	Algorithm       string
	SourceProductID int64
	TargetProductID int64
	Actor           Actor
	Placement       string

	// Experiment attribution; zero when no experiment was active.
	ExperimentID int64
	VariantID    int64

	// Conversion payload; only meaningful when Type == TrackingConversion.
	ConversionType string
	OrderID        string
	Value          float64

	OccurredAt time.Time
}

// ExperimentState is the lifecycle state of an experiment.
type ExperimentState string

const (
	StateDraft  ExperimentState = "draft"
	StateActive ExperimentState = "active"
	StateEnded  ExperimentState = "ended"
)

// Experiment is an A/B test comparing recommendation algorithm variants.
type Experiment struct {
	ID          int64
	Name        string
	Description string
	Variants    []Variant // Position order is significant: it is the bucket index.
	Active      bool
	StartAt     time.Time
	EndAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// State derives the lifecycle state. Ended is terminal.
func (e *Experiment) State() ExperimentState {
	switch {
	case e.EndAt != nil:
		return StateEnded
	case e.Active:
		return StateActive
	default:
		return StateDraft
	}
}

// Variant is one algorithm configuration under test.
type Variant struct {
	ID        int64
	Algorithm string
	Title     string
	Position  int
}

// ProductCount pairs a product with an aggregate count, ordered descending by
// the query that produced it.
type ProductCount struct {
	ProductID int64
	Count     int
}

// InteractionFilter narrows interaction queries. Zero values mean "any".
type InteractionFilter struct {
	Type      InteractionType
	ProductID int64
	Actor     *Actor
	Since     time.Time
	Until     time.Time
	Limit     int
}

// TrackingFilter narrows tracking queries. Zero values mean "any".
type TrackingFilter struct {
	Type            TrackingType
	Algorithm       string
	TargetProductID int64
	Actor           *Actor
	Placement       string
	ExperimentID    int64
	Since           time.Time
	Until           time.Time
	Limit           int
}
