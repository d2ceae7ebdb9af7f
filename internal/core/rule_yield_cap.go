package core

import (
	"context"
	"fmt"

	"herbtrace/pkg/domain"
)

// YieldCapRule blocks any single collection whose weight exceeds the flat
// per-transaction ceiling.
func YieldCapRule(maxWeight float64) domain.Rule {
	return yieldCapRule{maxWeight: maxWeight}
}

type yieldCapRule struct {
	maxWeight float64
}

func (yieldCapRule) Name() string { return "yield_cap" }

func (r yieldCapRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []Change) (Result, error) {
	res := Result{}
	for _, event := range collectionCreates(changes) {
		if event.Weight > r.maxWeight {
			res.Violations = append(res.Violations, Violation{
				Rule:     "yield_cap",
				Kind:     domain.KindYieldLimitExceeded,
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("collection weight %.1f exceeds the per-collection limit of %.1f", event.Weight, r.maxWeight),
				Entity:   domain.EntityCollection,
				EntityID: event.EventID,
			})
		}
	}
	return res, nil
}
