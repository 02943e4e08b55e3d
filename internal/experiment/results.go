package experiment

import (
	"context"

	"github.com/shoprec/shoprec/internal/stats"
	"github.com/shoprec/shoprec/internal/store"
)

// ConversionStat aggregates conversions of a single type.
type ConversionStat struct {
	Count int
	Value float64
}

// VariantResult summarizes measured performance of one variant.
type VariantResult struct {
	Variant     store.Variant
	Impressions int
	Conversions map[string]ConversionStat

	// TotalConversions sums all conversion types.
	TotalConversions int

	// Rate is conversions/impressions, 0 when there are no impressions.
	Rate float64

	// 95% Wilson score interval around Rate.
	CILower float64
	CIUpper float64
}

// Results is the aggregated outcome of an experiment.
type Results struct {
	Experiment *store.Experiment
	Variants   []VariantResult

	// LeadingVariant indexes the variant with the best conversion rate.
	LeadingVariant int

	// Confidence is the two-proportion z-test confidence that the leading
	// variant beats the control (or the control beats its best challenger).
	Confidence float64

	// Confident is true at the conventional 95% threshold.
	Confident bool
}

// Results aggregates impressions and conversions per variant for the given
// experiment, in variant position order.
func (m *Manager) Results(ctx context.Context, experimentID int64) (*Results, error) {
	exp, err := m.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	events, err := m.store.Tracking(ctx, store.TrackingFilter{ExperimentID: experimentID})
	if err != nil {
		return nil, err
	}

	byVariant := make(map[int64]*VariantResult, len(exp.Variants))
	results := make([]VariantResult, len(exp.Variants))
	for i, v := range exp.Variants {
		results[i] = VariantResult{Variant: v, Conversions: make(map[string]ConversionStat)}
		byVariant[v.ID] = &results[i]
	}

	for _, ev := range events {
		vr, ok := byVariant[ev.VariantID]
		if !ok {
			continue
		}
		switch ev.Type {
		case store.TrackingImpression:
			vr.Impressions++
		case store.TrackingConversion:
			cs := vr.Conversions[ev.ConversionType]
			cs.Count++
			cs.Value += ev.Value
			vr.Conversions[ev.ConversionType] = cs
			vr.TotalConversions++
		}
	}

	leading := 0
	maxRate := 0.0
	for i := range results {
		vr := &results[i]
		if vr.Impressions > 0 {
			vr.Rate = float64(vr.TotalConversions) / float64(vr.Impressions)
		}
		vr.CILower, vr.CIUpper = stats.WilsonInterval(vr.TotalConversions, vr.Impressions, 0.95)
		if vr.Rate > maxRate {
			maxRate = vr.Rate
			leading = i
		}
	}

	res := &Results{
		Experiment:     exp,
		Variants:       results,
		LeadingVariant: leading,
	}

	// Significance of the leading variant against the control (position 0),
	// or of the control against its best challenger when the control leads.
	if len(results) >= 2 {
		if leading == 0 {
			challenger := 1
			bestRate := 0.0
			for i := 1; i < len(results); i++ {
				if results[i].Rate > bestRate {
					bestRate = results[i].Rate
					challenger = i
				}
			}
			res.Confidence = stats.SignificanceTest(
				results[0].TotalConversions, results[0].Impressions,
				results[challenger].TotalConversions, results[challenger].Impressions,
			)
		} else {
			res.Confidence = stats.SignificanceTest(
				results[leading].TotalConversions, results[leading].Impressions,
				results[0].TotalConversions, results[0].Impressions,
			)
		}
		res.Confident = res.Confidence >= 0.95
	}

	return res, nil
}
