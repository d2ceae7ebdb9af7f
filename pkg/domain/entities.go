// Package domain defines the stage records, value types, and rule
// evaluation primitives used by herbtrace.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCollection identifies a collection event record.
	EntityCollection EntityType = "collection_event"
	// EntityQuality identifies a quality attestation record.
	EntityQuality EntityType = "quality_attestation"
	// EntityProcessing identifies a processing record.
	EntityProcessing EntityType = "processing_record"
	// EntityBatch identifies a product batch record.
	EntityBatch EntityType = "product_batch"
	// EntityZoneYield identifies a per-cell yield accumulator record.
	EntityZoneYield EntityType = "zone_yield"
	// EntityZone identifies an approved collection zone.
	EntityZone EntityType = "approved_zone"
	// EntityRecall identifies a recall notice record.
	EntityRecall EntityType = "recall_notice"
	// EntityZoneUpdate identifies an administrative zone update entry.
	EntityZoneUpdate EntityType = "zone_update"
)

// CollectionStatus represents the lifecycle states of a collection event.
type CollectionStatus string

// Collection event statuses. Transitions are monotone: COLLECTED may move to
// QUALITY_PASSED or QUALITY_FAILED exactly once; both are terminal.
const (
	StatusCollected     CollectionStatus = "COLLECTED"
	StatusQualityPassed CollectionStatus = "QUALITY_PASSED"
	StatusQualityFailed CollectionStatus = "QUALITY_FAILED"
)

// ProcessingStatus represents the state of a processing record.
type ProcessingStatus string

// StatusProcessed is the only processing record state; the record is terminal
// at creation.
const StatusProcessed ProcessingStatus = "PROCESSED"

// BatchStatus represents the state of a product batch.
type BatchStatus string

// StatusManufactured is the only batch state; batches are terminal records.
const StatusManufactured BatchStatus = "MANUFACTURED"

// RecallStatus represents the state of a recall notice.
type RecallStatus string

// Recall notice statuses.
const (
	RecallStatusActive RecallStatus = "ACTIVE"
	RecallStatusClosed RecallStatus = "CLOSED"
)

// Actor is the resolved caller identity consumed by mutating operations:
// an individual identifier plus the organizational tag used for
// role-based authorization.
type Actor struct {
	ID  string `json:"id"`
	Org string `json:"org"`
}

// CollectionEvent is the root stage record: a single physical collection of
// an herb lot. Identity-bearing fields never change after creation; only
// Status is rewritten, by the quality attestation operation.
type CollectionEvent struct {
	EventID      string           `json:"event_id"`
	Species      string           `json:"species"`
	Weight       float64          `json:"weight"`
	Latitude     float64          `json:"latitude"`
	Longitude    float64          `json:"longitude"`
	Timestamp    time.Time        `json:"timestamp"`
	CollectorID  string           `json:"collector_id"`
	CollectorOrg string           `json:"collector_org"`
	ImageHash    string           `json:"image_hash"`
	MetadataHash string           `json:"metadata_hash"`
	Status       CollectionStatus `json:"status"`
	QRCode       string           `json:"qr_code"`
}

// QualityAttestation records a lab's measurements against a collection
// event. Passed is derived from the configured thresholds, never taken from
// caller input.
type QualityAttestation struct {
	TestID       string    `json:"test_id"`
	EventID      string    `json:"event_id"`
	Moisture     float64   `json:"moisture"`
	Pesticides   float64   `json:"pesticides"`
	HeavyMetals  float64   `json:"heavy_metals"`
	Microbial    string    `json:"microbial"`
	Passed       bool      `json:"passed"`
	LabID        string    `json:"lab_id"`
	LabOrg       string    `json:"lab_org"`
	TestedAt     time.Time `json:"tested_at"`
	ImageHash    string    `json:"image_hash"`
	MetadataHash string    `json:"metadata_hash"`
	QRCode       string    `json:"qr_code"`
}

// ProcessingRecord captures a custody transfer to a processor. EventID is the
// transitive reference to the originating collection, copied from the
// attestation at creation.
type ProcessingRecord struct {
	ProcessID    string           `json:"process_id"`
	TestID       string           `json:"test_id"`
	EventID      string           `json:"event_id"`
	ProcessType  string           `json:"process_type"`
	Temperature  float64          `json:"temperature"`
	Duration     float64          `json:"duration"`
	Yield        float64          `json:"yield"`
	ProcessorID  string           `json:"processor_id"`
	ProcessorOrg string           `json:"processor_org"`
	ProcessedAt  time.Time        `json:"processed_at"`
	ImageHash    string           `json:"image_hash"`
	MetadataHash string           `json:"metadata_hash"`
	Status       ProcessingStatus `json:"status"`
	QRCode       string           `json:"qr_code"`
}

// ProductBatch is the terminal stage record. Provenance is assembled once at
// creation and frozen into the record; later queries return the snapshot.
type ProductBatch struct {
	BatchID         string          `json:"batch_id"`
	ProcessID       string          `json:"process_id"`
	ProductName     string          `json:"product_name"`
	BatchSize       int             `json:"batch_size"`
	Formulation     string          `json:"formulation"`
	ExpiryDate      string          `json:"expiry_date"`
	ManufacturerID  string          `json:"manufacturer_id"`
	ManufacturerOrg string          `json:"manufacturer_org"`
	ManufacturedAt  time.Time       `json:"manufactured_at"`
	ImageHash       string          `json:"image_hash"`
	MetadataHash    string          `json:"metadata_hash"`
	Provenance      ProvenanceChain `json:"provenance_chain"`
	Status          BatchStatus     `json:"status"`
	QRCode          string          `json:"qr_code"`
}

// ProvenanceChain is the ordered forward sequence of stage summaries
// supporting end-to-end verification of a finished batch.
type ProvenanceChain struct {
	Steps      []ProvenanceStep `json:"steps"`
	TotalSteps int              `json:"total_steps"`
	Verified   bool             `json:"verified"`
}

// ProvenanceStep summarizes one hand-off stage. Latitude/Longitude are set
// only on the collection step.
type ProvenanceStep struct {
	Stage        string            `json:"stage"`
	Timestamp    time.Time         `json:"timestamp"`
	Organization string            `json:"organization"`
	Latitude     float64           `json:"latitude,omitempty"`
	Longitude    float64           `json:"longitude,omitempty"`
	Details      map[string]string `json:"details"`
	ImageHash    string            `json:"image_hash"`
	MetadataHash string            `json:"metadata_hash"`
}

// ZoneYield is the running collected-weight total for one quantized
// geographic cell. It is the only entity that is read-modified-written
// repeatedly; the total is monotonically increasing.
type ZoneYield struct {
	CellKey     string    `json:"cell_key"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	TotalWeight float64   `json:"total_weight"`
	LastUpdated time.Time `json:"last_updated"`
}

// ApprovedZone is a configured rectangular region in which collection is
// permitted. Bounds are inclusive. MaxYield caps the cumulative collected
// weight attributed to cells inside the zone.
type ApprovedZone struct {
	Name     string  `json:"name"`
	MinLat   float64 `json:"min_lat"`
	MinLong  float64 `json:"min_long"`
	MaxLat   float64 `json:"max_lat"`
	MaxLong  float64 `json:"max_long"`
	MaxYield float64 `json:"max_yield"`
}

// Contains reports whether the point lies within the zone, bounds inclusive.
func (z ApprovedZone) Contains(lat, long float64) bool {
	return lat >= z.MinLat && lat <= z.MaxLat && long >= z.MinLong && long <= z.MaxLong
}

// ZoneAction enumerates administrative zone operations.
type ZoneAction string

// Supported zone update actions.
const (
	ZoneActionAdd    ZoneAction = "add"
	ZoneActionRemove ZoneAction = "remove"
)

// ZoneUpdate is the append-only audit entry recorded for every
// administrative zone change.
type ZoneUpdate struct {
	UpdateID   string       `json:"update_id"`
	Action     ZoneAction   `json:"action"`
	Zone       ApprovedZone `json:"zone"`
	UpdatedBy  string       `json:"updated_by"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// RecallNotice is an overlay record attached to a batch; it never mutates
// the batch itself.
type RecallNotice struct {
	RecallID     string       `json:"recall_id"`
	BatchID      string       `json:"batch_id"`
	Reason       string       `json:"reason"`
	InitiatedBy  string       `json:"initiated_by"`
	InitiatedOrg string       `json:"initiated_org"`
	InitiatedAt  time.Time    `json:"initiated_at"`
	Status       RecallStatus `json:"status"`
}

// QRPayload mints the stable identifier string encoded into a stage record's
// QR code. The timestamp is the record's own, so the payload is a pure
// function of the record.
func QRPayload(id, kind string, ts time.Time) string {
	return fmt.Sprintf(`{"id":%q,"type":%q,"timestamp":%q,"network":"herbtrace"}`, id, kind, ts.UTC().Format(time.RFC3339))
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the transaction change set.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation. Kind carries the structured
// error classification surfaced to callers.
type Violation struct {
	Rule     string
	Kind     Kind
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// FirstBlocking returns the first blocking violation, if any.
func (r Result) FirstBlocking() (Violation, bool) {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return v, true
		}
	}
	return Violation{}, false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	if v, ok := e.Result.FirstBlocking(); ok {
		return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
	}
	return "transaction blocked by rules"
}
