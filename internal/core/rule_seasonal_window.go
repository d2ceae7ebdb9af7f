package core

import (
	"context"
	"fmt"

	"herbtrace/pkg/domain"
)

// SeasonalWindowRule blocks collections recorded outside a species'
// configured harvesting window. Species without a window are always
// permitted. The check uses the submitted collection timestamp, never the
// host clock.
func SeasonalWindowRule(seasons map[string]SeasonWindow) domain.Rule {
	return seasonalWindowRule{seasons: seasons}
}

type seasonalWindowRule struct {
	seasons map[string]SeasonWindow
}

func (seasonalWindowRule) Name() string { return "seasonal_window" }

func (r seasonalWindowRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []Change) (Result, error) {
	res := Result{}
	for _, event := range collectionCreates(changes) {
		window, configured := r.seasons[event.Species]
		if !configured {
			continue
		}
		if !window.Contains(event.Timestamp) {
			res.Violations = append(res.Violations, Violation{
				Rule:     "seasonal_window",
				Kind:     domain.KindSeasonalRestriction,
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("%s collected in %s, permitted window is %s through %s", event.Species, event.Timestamp.UTC().Month(), window.StartMonth, window.EndMonth),
				Entity:   domain.EntityCollection,
				EntityID: event.EventID,
			})
		}
	}
	return res, nil
}
