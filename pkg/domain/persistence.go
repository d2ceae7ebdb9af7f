package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Create operations mint identifiers
// when the incoming record carries none.
type Transaction interface {
	Snapshot() TransactionView
	CreateCollectionEvent(CollectionEvent) (CollectionEvent, error)
	UpdateCollectionStatus(id string, status CollectionStatus) (CollectionEvent, error)
	CreateQualityAttestation(QualityAttestation) (QualityAttestation, error)
	CreateProcessingRecord(ProcessingRecord) (ProcessingRecord, error)
	CreateProductBatch(ProductBatch) (ProductBatch, error)
	AddZoneYield(lat, long, weight float64, at time.Time) (ZoneYield, error)
	PutApprovedZone(ApprovedZone) error
	RemoveApprovedZone(name string) error
	AppendZoneUpdate(ZoneUpdate) (ZoneUpdate, error)
	CreateRecallNotice(RecallNotice) (RecallNotice, error)
	FindCollectionEvent(id string) (CollectionEvent, bool)
	FindQualityAttestation(id string) (QualityAttestation, bool)
	FindProcessingRecord(id string) (ProcessingRecord, bool)
	FindProductBatch(id string) (ProductBatch, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// the provenance assembler.
type TransactionView interface {
	FindCollectionEvent(id string) (CollectionEvent, bool)
	FindQualityAttestation(id string) (QualityAttestation, bool)
	FindProcessingRecord(id string) (ProcessingRecord, bool)
	FindProductBatch(id string) (ProductBatch, bool)
	FindZoneYield(cellKey string) (ZoneYield, bool)
	ListZoneYields() []ZoneYield
	ListApprovedZones() []ApprovedZone
	ListRecallNotices() []RecallNotice
}

// PersistentStore is a minimal abstraction over durable backends. Each
// RunInTransaction invocation is atomic: reads see a consistent snapshot and
// either every write commits or none do.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCollectionEvent(id string) (CollectionEvent, bool)
	GetQualityAttestation(id string) (QualityAttestation, bool)
	GetProcessingRecord(id string) (ProcessingRecord, bool)
	GetProductBatch(id string) (ProductBatch, bool)
	GetZoneYield(cellKey string) (ZoneYield, bool)
	ListApprovedZones() []ApprovedZone
	ListRecallNotices() []RecallNotice
}
