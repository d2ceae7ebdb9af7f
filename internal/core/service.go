package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"herbtrace/internal/blob"
	"herbtrace/internal/infra/persistence/memory"
	"herbtrace/pkg/domain"
)

// Service exposes the stage-gated workflow operations over a persistent
// store. Every mutating operation is authorization-gated, executes as one
// atomic transaction, and emits a notification event on success.
type Service struct {
	store       domain.PersistentStore
	cfg         Config
	logger      *slog.Logger
	metrics     MetricsRecorder
	events      EventSink
	attachments blob.Store
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger attaches a structured logger to the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches a metrics recorder to the service.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithEventSink attaches an event sink to the service.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithAttachments attaches an off-chain content store for image and metadata
// payloads. Records only ever carry the content hashes.
func WithAttachments(store blob.Store) Option {
	return func(s *Service) { s.attachments = store }
}

// NewService constructs a service backed by the supplied store. The
// configured approved zones are seeded into the store so the geofence and
// capacity rules, and the ListApprovedZones query, read one source of truth.
func NewService(ctx context.Context, store domain.PersistentStore, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(store.ListApprovedZones()) == 0 && len(cfg.Zones) > 0 {
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for _, zone := range cfg.Zones {
				if err := tx.PutApprovedZone(zone); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// observe wraps one operation invocation for metrics and logging.
func (s *Service) observe(ctx context.Context, operation string) func(error) {
	start := time.Now()
	return func(err error) {
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
		}
		if err != nil {
			kind, _ := domain.KindOf(err)
			s.logger.WarnContext(ctx, "operation rejected", "operation", operation, "kind", string(kind), "err", err)
		}
	}
}

func (s *Service) emit(ctx context.Context, name string, payload any) {
	if s.events != nil {
		s.events.Emit(ctx, Event{Name: name, Payload: payload})
	}
	s.logger.InfoContext(ctx, "event emitted", "event", name)
}

// translateErr maps blocked-rule transaction failures onto the structured
// domain error taxonomy.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var rve domain.RuleViolationError
	if errors.As(err, &rve) {
		if v, ok := rve.Result.FirstBlocking(); ok {
			return domain.NewError(v.Kind, v.Message)
		}
	}
	return err
}

// CollectionRequest is the payload for recordCollection.
type CollectionRequest struct {
	Species      string    `json:"species"`
	Weight       float64   `json:"weight"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Timestamp    time.Time `json:"timestamp"`
	ImageHash    string    `json:"image_hash"`
	MetadataHash string    `json:"metadata_hash"`
}

// RecordCollection records a new collection event and folds its weight into
// the zone yield accumulator. Geofence, seasonal window, and yield cap rules
// gate the commit.
func (s *Service) RecordCollection(ctx context.Context, actor Actor, req CollectionRequest) (CollectionEvent, error) {
	finish := s.observe(ctx, string(OpRecordCollection))
	if err := Authorize(OpRecordCollection, actor.Org); err != nil {
		finish(err)
		return CollectionEvent{}, err
	}
	var created CollectionEvent
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		event := CollectionEvent{
			Species:      req.Species,
			Weight:       req.Weight,
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			Timestamp:    req.Timestamp,
			CollectorID:  actor.ID,
			CollectorOrg: actor.Org,
			ImageHash:    req.ImageHash,
			MetadataHash: req.MetadataHash,
			Status:       StatusCollected,
		}
		var err error
		created, err = tx.CreateCollectionEvent(event)
		if err != nil {
			return err
		}
		_, err = tx.AddZoneYield(req.Latitude, req.Longitude, req.Weight, req.Timestamp)
		return err
	})
	if err != nil {
		err = translateErr(err)
		finish(err)
		return CollectionEvent{}, err
	}
	finish(nil)
	s.emit(ctx, EventCollectionRecorded, created)
	return created, nil
}

// AttestationRequest is the payload for attestQuality. The stored passed
// flag is derived from the configured thresholds, not accepted as input.
type AttestationRequest struct {
	EventID      string    `json:"event_id"`
	Moisture     float64   `json:"moisture"`
	Pesticides   float64   `json:"pesticides"`
	HeavyMetals  float64   `json:"heavy_metals"`
	Microbial    string    `json:"microbial"`
	Timestamp    time.Time `json:"timestamp"`
	ImageHash    string    `json:"image_hash"`
	MetadataHash string    `json:"metadata_hash"`
}

// AttestQuality records a lab attestation against an existing collection
// event and advances the event's status. A threshold violation aborts the
// whole submission.
func (s *Service) AttestQuality(ctx context.Context, actor Actor, req AttestationRequest) (QualityAttestation, error) {
	finish := s.observe(ctx, string(OpAttestQuality))
	if err := Authorize(OpAttestQuality, actor.Org); err != nil {
		finish(err)
		return QualityAttestation{}, err
	}
	var created QualityAttestation
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindCollectionEvent(req.EventID); !ok {
			return domain.Errorf(domain.KindCollectionNotFound, "collection event %q not found", req.EventID)
		}
		passed := s.cfg.Quality.Evaluate(req.Moisture, req.Pesticides, req.HeavyMetals, req.Microbial)
		att := QualityAttestation{
			EventID:      req.EventID,
			Moisture:     req.Moisture,
			Pesticides:   req.Pesticides,
			HeavyMetals:  req.HeavyMetals,
			Microbial:    req.Microbial,
			Passed:       passed,
			LabID:        actor.ID,
			LabOrg:       actor.Org,
			TestedAt:     req.Timestamp,
			ImageHash:    req.ImageHash,
			MetadataHash: req.MetadataHash,
		}
		var err error
		created, err = tx.CreateQualityAttestation(att)
		if err != nil {
			return err
		}
		status := StatusQualityPassed
		if !passed {
			status = StatusQualityFailed
		}
		_, err = tx.UpdateCollectionStatus(req.EventID, status)
		return err
	})
	if err != nil {
		err = translateErr(err)
		finish(err)
		return QualityAttestation{}, err
	}
	finish(nil)
	s.emit(ctx, EventQualityAttested, created)
	return created, nil
}

// CustodyRequest is the payload for transferCustody.
type CustodyRequest struct {
	TestID       string    `json:"test_id"`
	ProcessType  string    `json:"process_type"`
	Temperature  float64   `json:"temperature"`
	Duration     float64   `json:"duration"`
	Yield        float64   `json:"yield"`
	Timestamp    time.Time `json:"timestamp"`
	ImageHash    string    `json:"image_hash"`
	MetadataHash string    `json:"metadata_hash"`
}

// TransferCustody records a processing hand-off. The referenced attestation
// must exist and have passed the quality gate.
func (s *Service) TransferCustody(ctx context.Context, actor Actor, req CustodyRequest) (ProcessingRecord, error) {
	finish := s.observe(ctx, string(OpTransferCustody))
	if err := Authorize(OpTransferCustody, actor.Org); err != nil {
		finish(err)
		return ProcessingRecord{}, err
	}
	var created ProcessingRecord
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		quality, ok := tx.FindQualityAttestation(req.TestID)
		if !ok {
			return domain.Errorf(domain.KindQualityTestNotFound, "quality test %q not found", req.TestID)
		}
		if !quality.Passed {
			return domain.Errorf(domain.KindQualityGateFailed, "cannot process lot whose quality test %s failed", req.TestID)
		}
		record := ProcessingRecord{
			TestID:       req.TestID,
			EventID:      quality.EventID,
			ProcessType:  req.ProcessType,
			Temperature:  req.Temperature,
			Duration:     req.Duration,
			Yield:        req.Yield,
			ProcessorID:  actor.ID,
			ProcessorOrg: actor.Org,
			ProcessedAt:  req.Timestamp,
			ImageHash:    req.ImageHash,
			MetadataHash: req.MetadataHash,
			Status:       StatusProcessed,
		}
		var err error
		created, err = tx.CreateProcessingRecord(record)
		return err
	})
	if err != nil {
		err = translateErr(err)
		finish(err)
		return ProcessingRecord{}, err
	}
	finish(nil)
	s.emit(ctx, EventCustodyTransferred, created)
	return created, nil
}

// BatchRequest is the payload for createBatch.
type BatchRequest struct {
	ProcessID    string    `json:"process_id"`
	ProductName  string    `json:"product_name"`
	BatchSize    int       `json:"batch_size"`
	Formulation  string    `json:"formulation"`
	ExpiryDate   string    `json:"expiry_date"`
	Timestamp    time.Time `json:"timestamp"`
	ImageHash    string    `json:"image_hash"`
	MetadataHash string    `json:"metadata_hash"`
}

// CreateBatch records the terminal product batch. The provenance chain is
// assembled from the referenced processing record inside the same
// transaction and frozen into the batch.
func (s *Service) CreateBatch(ctx context.Context, actor Actor, req BatchRequest) (ProductBatch, error) {
	finish := s.observe(ctx, string(OpCreateBatch))
	if err := Authorize(OpCreateBatch, actor.Org); err != nil {
		finish(err)
		return ProductBatch{}, err
	}
	var created ProductBatch
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		chain, err := BuildProvenanceChain(tx.Snapshot(), req.ProcessID)
		if err != nil {
			return err
		}
		batch := ProductBatch{
			ProcessID:       req.ProcessID,
			ProductName:     req.ProductName,
			BatchSize:       req.BatchSize,
			Formulation:     req.Formulation,
			ExpiryDate:      req.ExpiryDate,
			ManufacturerID:  actor.ID,
			ManufacturerOrg: actor.Org,
			ManufacturedAt:  req.Timestamp,
			ImageHash:       req.ImageHash,
			MetadataHash:    req.MetadataHash,
			Provenance:      chain,
			Status:          StatusManufactured,
		}
		created, err = tx.CreateProductBatch(batch)
		return err
	})
	if err != nil {
		err = translateErr(err)
		finish(err)
		return ProductBatch{}, err
	}
	finish(nil)
	s.emit(ctx, EventBatchCreated, created)
	return created, nil
}

// ZoneUpdateRequest is the payload for updateZones.
type ZoneUpdateRequest struct {
	Action    domain.ZoneAction   `json:"action"`
	Zone      domain.ApprovedZone `json:"zone"`
	Timestamp time.Time           `json:"timestamp"`
}

// UpdateZones applies a regulator-gated change to the approved zone
// configuration and records the audit entry.
func (s *Service) UpdateZones(ctx context.Context, actor Actor, req ZoneUpdateRequest) (ZoneUpdate, error) {
	finish := s.observe(ctx, string(OpUpdateZones))
	if err := Authorize(OpUpdateZones, actor.Org); err != nil {
		finish(err)
		return ZoneUpdate{}, err
	}
	if req.Zone.Name == "" {
		err := domain.Errorf(domain.KindInvalidZoneDefinition, "zone name is required")
		finish(err)
		return ZoneUpdate{}, err
	}
	if req.Action == domain.ZoneActionAdd && (req.Zone.MinLat > req.Zone.MaxLat || req.Zone.MinLong > req.Zone.MaxLong) {
		err := domain.Errorf(domain.KindInvalidZoneDefinition, "zone %q has an inverted bounding box", req.Zone.Name)
		finish(err)
		return ZoneUpdate{}, err
	}
	var created ZoneUpdate
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		switch req.Action {
		case domain.ZoneActionAdd:
			if err := tx.PutApprovedZone(req.Zone); err != nil {
				return err
			}
		case domain.ZoneActionRemove:
			if err := tx.RemoveApprovedZone(req.Zone.Name); err != nil {
				return err
			}
		default:
			return domain.Errorf(domain.KindInvalidZoneDefinition, "unknown zone action %q", req.Action)
		}
		var err error
		created, err = tx.AppendZoneUpdate(ZoneUpdate{
			Action:     req.Action,
			Zone:       req.Zone,
			UpdatedBy:  actor.ID,
			RecordedAt: req.Timestamp,
		})
		return err
	})
	if err != nil {
		err = translateErr(err)
		finish(err)
		return ZoneUpdate{}, err
	}
	finish(nil)
	s.emit(ctx, EventZoneUpdated, created)
	return created, nil
}

// RecallRequest is the payload for initiateRecall.
type RecallRequest struct {
	BatchID   string    `json:"batch_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// InitiateRecall opens a recall notice against an existing batch. The notice
// is an overlay record; the batch itself is never mutated.
func (s *Service) InitiateRecall(ctx context.Context, actor Actor, req RecallRequest) (RecallNotice, error) {
	finish := s.observe(ctx, string(OpInitiateRecall))
	if err := Authorize(OpInitiateRecall, actor.Org); err != nil {
		finish(err)
		return RecallNotice{}, err
	}
	var created RecallNotice
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindProductBatch(req.BatchID); !ok {
			return domain.Errorf(domain.KindBatchNotFound, "product batch %q not found", req.BatchID)
		}
		var err error
		created, err = tx.CreateRecallNotice(RecallNotice{
			BatchID:      req.BatchID,
			Reason:       req.Reason,
			InitiatedBy:  actor.ID,
			InitiatedOrg: actor.Org,
			InitiatedAt:  req.Timestamp,
			Status:       domain.RecallStatusActive,
		})
		return err
	})
	if err != nil {
		err = translateErr(err)
		finish(err)
		return RecallNotice{}, err
	}
	finish(nil)
	s.emit(ctx, EventRecallInitiated, created)
	return created, nil
}

// GetCollectionEvent fetches a collection event by identifier.
func (s *Service) GetCollectionEvent(_ context.Context, id string) (CollectionEvent, error) {
	event, ok := s.store.GetCollectionEvent(id)
	if !ok {
		return CollectionEvent{}, domain.Errorf(domain.KindCollectionNotFound, "collection event %q not found", id)
	}
	return event, nil
}

// GetQualityTest fetches a quality attestation by identifier.
func (s *Service) GetQualityTest(_ context.Context, id string) (QualityAttestation, error) {
	att, ok := s.store.GetQualityAttestation(id)
	if !ok {
		return QualityAttestation{}, domain.Errorf(domain.KindQualityTestNotFound, "quality test %q not found", id)
	}
	return att, nil
}

// GetProcessingDetails fetches a processing record by identifier.
func (s *Service) GetProcessingDetails(_ context.Context, id string) (ProcessingRecord, error) {
	record, ok := s.store.GetProcessingRecord(id)
	if !ok {
		return ProcessingRecord{}, domain.Errorf(domain.KindProcessingNotFound, "processing record %q not found", id)
	}
	return record, nil
}

// GetProvenance fetches a batch with its frozen provenance snapshot for
// consumer verification.
func (s *Service) GetProvenance(_ context.Context, batchID string) (ProductBatch, error) {
	batch, ok := s.store.GetProductBatch(batchID)
	if !ok {
		return ProductBatch{}, domain.Errorf(domain.KindBatchNotFound, "product batch %q not found", batchID)
	}
	return batch, nil
}

// ListApprovedZones returns the current zone configuration.
func (s *Service) ListApprovedZones(_ context.Context) []ApprovedZone {
	return s.store.ListApprovedZones()
}

// ListRecallNotices returns all recall notices.
func (s *Service) ListRecallNotices(_ context.Context) []RecallNotice {
	return s.store.ListRecallNotices()
}

// ZoneYieldTotal returns the accumulated weight for the quantized cell
// containing the given point.
func (s *Service) ZoneYieldTotal(_ context.Context, lat, long float64) (ZoneYield, bool) {
	return s.store.GetZoneYield(memory.CellKey(lat, long))
}

// StoreAttachment writes an off-chain payload to the configured content
// store and returns its content hash, which is what the stage records carry.
func (s *Service) StoreAttachment(ctx context.Context, r io.Reader, contentType string) (string, error) {
	if s.attachments == nil {
		return "", blob.ErrUnsupported
	}
	info, err := blob.PutContent(ctx, s.attachments, r, contentType)
	if err != nil {
		return "", err
	}
	return info.Hash, nil
}
