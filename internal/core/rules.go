package core

import "herbtrace/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in validator set
// configured from cfg.
func NewDefaultRulesEngine(cfg Config) *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(GeofenceRule())
	engine.Register(SeasonalWindowRule(cfg.Seasons))
	engine.Register(YieldCapRule(cfg.MaxCollectionWeight))
	engine.Register(ZoneCapacityRule())
	engine.Register(QualityGateRule(cfg.Quality))
	return engine
}

// collectionCreates extracts newly created collection events from a change set.
func collectionCreates(changes []Change) []CollectionEvent {
	var out []CollectionEvent
	for _, change := range changes {
		if change.Entity != domain.EntityCollection || change.Action != domain.ActionCreate {
			continue
		}
		if event, ok := change.After.(CollectionEvent); ok {
			out = append(out, event)
		}
	}
	return out
}

// attestationCreates extracts newly created quality attestations from a change set.
func attestationCreates(changes []Change) []QualityAttestation {
	var out []QualityAttestation
	for _, change := range changes {
		if change.Entity != domain.EntityQuality || change.Action != domain.ActionCreate {
			continue
		}
		if att, ok := change.After.(QualityAttestation); ok {
			out = append(out, att)
		}
	}
	return out
}
