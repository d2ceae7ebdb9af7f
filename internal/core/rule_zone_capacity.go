package core

import (
	"context"
	"fmt"

	"herbtrace/pkg/domain"
)

// ZoneCapacityRule blocks a collection when the cumulative weight tracked by
// the yield accumulator for cells inside the containing zone would exceed
// that zone's configured capacity. The accumulator is updated within the
// same transaction, so the totals seen here already include the new
// collection.
func ZoneCapacityRule() domain.Rule {
	return zoneCapacityRule{}
}

type zoneCapacityRule struct{}

func (zoneCapacityRule) Name() string { return "zone_capacity" }

func (zoneCapacityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []Change) (Result, error) {
	res := Result{}
	creates := collectionCreates(changes)
	if len(creates) == 0 {
		return res, nil
	}
	zones := view.ListApprovedZones()
	yields := view.ListZoneYields()
	for _, event := range creates {
		for _, zone := range zones {
			if !zone.Contains(event.Latitude, event.Longitude) || zone.MaxYield <= 0 {
				continue
			}
			var total float64
			for _, y := range yields {
				if zone.Contains(y.Latitude, y.Longitude) {
					total += y.TotalWeight
				}
			}
			if total > zone.MaxYield {
				res.Violations = append(res.Violations, Violation{
					Rule:     "zone_capacity",
					Kind:     domain.KindYieldLimitExceeded,
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("cumulative yield %.1f exceeds capacity %.1f for zone %s", total, zone.MaxYield, zone.Name),
					Entity:   domain.EntityCollection,
					EntityID: event.EventID,
				})
			}
		}
	}
	return res, nil
}
