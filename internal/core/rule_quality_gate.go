package core

import (
	"context"
	"fmt"

	"herbtrace/pkg/domain"
)

// QualityGateRule blocks quality attestations whose measurements violate the
// configured thresholds. Because the violation aborts the whole transaction,
// a failing submission persists nothing.
func QualityGateRule(thresholds QualityThresholds) domain.Rule {
	return qualityGateRule{thresholds: thresholds}
}

type qualityGateRule struct {
	thresholds QualityThresholds
}

func (qualityGateRule) Name() string { return "quality_gate" }

func (r qualityGateRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []Change) (Result, error) {
	res := Result{}
	for _, att := range attestationCreates(changes) {
		if r.thresholds.Evaluate(att.Moisture, att.Pesticides, att.HeavyMetals, att.Microbial) {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     "quality_gate",
			Kind:     domain.KindQualityGateFailed,
			Severity: SeverityBlock,
			Message: fmt.Sprintf("attestation for event %s failed thresholds (moisture %.2f, pesticides %.4f, heavy metals %.2f, microbial %q)",
				att.EventID, att.Moisture, att.Pesticides, att.HeavyMetals, att.Microbial),
			Entity:   domain.EntityQuality,
			EntityID: att.TestID,
		})
	}
	return res, nil
}
