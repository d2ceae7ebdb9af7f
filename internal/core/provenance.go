package core

import (
	"strconv"

	"herbtrace/pkg/domain"
)

// Stage labels carried on provenance steps.
const (
	StageCollection     = "Collection"
	StageQualityTesting = "Quality Testing"
	StageProcessing     = "Processing"
)

// BuildProvenanceChain walks backward from a processing record
// (process -> quality -> collection) and emits the forward-ordered chain.
// It is invoked at batch creation; the result is frozen into the batch
// record and never recomputed.
func BuildProvenanceChain(view domain.TransactionView, processID string) (ProvenanceChain, error) {
	processing, ok := view.FindProcessingRecord(processID)
	if !ok {
		return ProvenanceChain{}, domain.Errorf(domain.KindProcessingNotFound, "processing record %q not found", processID)
	}
	quality, ok := view.FindQualityAttestation(processing.TestID)
	if !ok {
		return ProvenanceChain{}, domain.Errorf(domain.KindQualityTestNotFound, "quality test %q not found", processing.TestID)
	}
	collection, ok := view.FindCollectionEvent(quality.EventID)
	if !ok {
		return ProvenanceChain{}, domain.Errorf(domain.KindCollectionNotFound, "collection event %q not found", quality.EventID)
	}

	steps := []ProvenanceStep{
		{
			Stage:        StageCollection,
			Timestamp:    collection.Timestamp,
			Organization: orgDisplayName(collection.CollectorOrg),
			Latitude:     collection.Latitude,
			Longitude:    collection.Longitude,
			Details: map[string]string{
				"species":   collection.Species,
				"weight":    formatFloat(collection.Weight),
				"collector": collection.CollectorID,
			},
			ImageHash:    collection.ImageHash,
			MetadataHash: collection.MetadataHash,
		},
		{
			Stage:        StageQualityTesting,
			Timestamp:    quality.TestedAt,
			Organization: orgDisplayName(quality.LabOrg),
			Details: map[string]string{
				"moisture":    formatFloat(quality.Moisture),
				"pesticides":  formatFloat(quality.Pesticides),
				"heavyMetals": formatFloat(quality.HeavyMetals),
				"microbial":   quality.Microbial,
				"passed":      strconv.FormatBool(quality.Passed),
			},
			ImageHash:    quality.ImageHash,
			MetadataHash: quality.MetadataHash,
		},
		{
			Stage:        StageProcessing,
			Timestamp:    processing.ProcessedAt,
			Organization: orgDisplayName(processing.ProcessorOrg),
			Details: map[string]string{
				"processType": processing.ProcessType,
				"temperature": formatFloat(processing.Temperature),
				"duration":    formatFloat(processing.Duration),
				"yield":       formatFloat(processing.Yield),
			},
			ImageHash:    processing.ImageHash,
			MetadataHash: processing.MetadataHash,
		},
	}

	return ProvenanceChain{
		Steps:      steps,
		TotalSteps: len(steps),
		Verified:   true,
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
