package core

import (
	"context"
	"testing"
	"time"

	"herbtrace/internal/infra/persistence/memory"
	"herbtrace/pkg/domain"
)

func seedChain(t *testing.T, store *memory.Store) (collectionID, testID, processID string) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		collection, err := tx.CreateCollectionEvent(CollectionEvent{
			Species:      "Ashwagandha",
			Weight:       25.5,
			Latitude:     27.0,
			Longitude:    75.9,
			Timestamp:    time.Date(2024, time.November, 5, 8, 0, 0, 0, time.UTC),
			CollectorID:  "collector-1",
			CollectorOrg: OrgCollectors,
			ImageHash:    "img-c",
			MetadataHash: "meta-c",
		})
		if err != nil {
			return err
		}
		collectionID = collection.EventID
		quality, err := tx.CreateQualityAttestation(QualityAttestation{
			EventID:     collectionID,
			Moisture:    10.5,
			Pesticides:  0.005,
			HeavyMetals: 5.2,
			Microbial:   "Negative",
			Passed:      true,
			LabID:       "lab-1",
			LabOrg:      OrgLabs,
			TestedAt:    time.Date(2024, time.November, 6, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			return err
		}
		testID = quality.TestID
		processing, err := tx.CreateProcessingRecord(ProcessingRecord{
			TestID:       testID,
			EventID:      collectionID,
			ProcessType:  "Drying",
			Temperature:  45,
			Duration:     12,
			Yield:        20.25,
			ProcessorID:  "processor-1",
			ProcessorOrg: OrgProcessors,
			ProcessedAt:  time.Date(2024, time.November, 7, 10, 0, 0, 0, time.UTC),
		})
		if err != nil {
			return err
		}
		processID = processing.ProcessID
		return nil
	})
	if err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	return collectionID, testID, processID
}

func TestBuildProvenanceChain(t *testing.T) {
	store := memory.NewStore(nil)
	_, _, processID := seedChain(t, store)

	var chain ProvenanceChain
	err := store.View(context.Background(), func(view domain.TransactionView) error {
		var e error
		chain, e = BuildProvenanceChain(view, processID)
		return e
	})
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	if chain.TotalSteps != 3 || !chain.Verified {
		t.Fatalf("unexpected chain summary: %+v", chain)
	}

	collection := chain.Steps[0]
	if collection.Stage != StageCollection || collection.Organization != "FarmersCoop" {
		t.Fatalf("unexpected collection step: %+v", collection)
	}
	if collection.Details["weight"] != "25.5" || collection.Details["collector"] != "collector-1" {
		t.Fatalf("unexpected collection details: %v", collection.Details)
	}
	if collection.Latitude != 27.0 || collection.Longitude != 75.9 {
		t.Fatalf("collection coordinates missing")
	}

	quality := chain.Steps[1]
	if quality.Stage != StageQualityTesting || quality.Organization != "LabsOrg" {
		t.Fatalf("unexpected quality step: %+v", quality)
	}
	if quality.Details["pesticides"] != "0.005" || quality.Details["passed"] != "true" {
		t.Fatalf("unexpected quality details: %v", quality.Details)
	}
	if quality.Latitude != 0 || quality.Longitude != 0 {
		t.Fatalf("coordinates leaked onto the quality step")
	}

	processing := chain.Steps[2]
	if processing.Stage != StageProcessing || processing.Organization != "ProcessorsOrg" {
		t.Fatalf("unexpected processing step: %+v", processing)
	}
	if processing.Details["yield"] != "20.25" || processing.Details["temperature"] != "45" {
		t.Fatalf("unexpected processing details: %v", processing.Details)
	}

	// Steps carry ordered timestamps.
	if !chain.Steps[0].Timestamp.Before(chain.Steps[1].Timestamp) || !chain.Steps[1].Timestamp.Before(chain.Steps[2].Timestamp) {
		t.Fatalf("steps out of chronological order")
	}
}

func TestBuildProvenanceChainBrokenReferences(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	err := store.View(ctx, func(view domain.TransactionView) error {
		_, e := BuildProvenanceChain(view, "PROC_000001_deadbeef")
		return e
	})
	if !domain.IsKind(err, domain.KindProcessingNotFound) {
		t.Fatalf("expected PROCESSING_NOT_FOUND, got %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.CreateProcessingRecord(ProcessingRecord{
			ProcessID: "PROC_000002_deadbeef",
			TestID:    "TEST_404404_deadbeef",
		})
		return e
	})
	if err != nil {
		t.Fatalf("seed dangling record: %v", err)
	}
	err = store.View(ctx, func(view domain.TransactionView) error {
		_, e := BuildProvenanceChain(view, "PROC_000002_deadbeef")
		return e
	})
	if !domain.IsKind(err, domain.KindQualityTestNotFound) {
		t.Fatalf("expected QUALITY_TEST_NOT_FOUND, got %v", err)
	}
}

func TestFormatFloatCompact(t *testing.T) {
	cases := map[float64]string{
		25:     "25",
		25.5:   "25.5",
		0.005:  "0.005",
		20.25:  "20.25",
		0:      "0",
	}
	for in, want := range cases {
		if got := formatFloat(in); got != want {
			t.Fatalf("formatFloat(%v)=%q want %q", in, got, want)
		}
	}
}
