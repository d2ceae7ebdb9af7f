package core

import (
	"context"
	"fmt"

	"herbtrace/pkg/domain"
)

// GeofenceRule blocks collections recorded outside every approved zone.
// Zone bounds are inclusive: a point exactly on a boundary is inside.
func GeofenceRule() domain.Rule {
	return geofenceRule{}
}

type geofenceRule struct{}

func (geofenceRule) Name() string { return "geofence" }

func (geofenceRule) Evaluate(_ context.Context, view domain.TransactionView, changes []Change) (Result, error) {
	res := Result{}
	var zones []ApprovedZone
	for _, event := range collectionCreates(changes) {
		if zones == nil {
			zones = view.ListApprovedZones()
		}
		inside := false
		for _, zone := range zones {
			if zone.Contains(event.Latitude, event.Longitude) {
				inside = true
				break
			}
		}
		if !inside {
			res.Violations = append(res.Violations, Violation{
				Rule:     "geofence",
				Kind:     domain.KindInvalidGeofence,
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("collection at (%.4f, %.4f) is not in an approved zone", event.Latitude, event.Longitude),
				Entity:   domain.EntityCollection,
				EntityID: event.EventID,
			})
		}
	}
	return res, nil
}
