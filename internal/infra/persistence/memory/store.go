// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"herbtrace/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// CollectionEvent aliases domain.CollectionEvent for in-memory persistence operations.
	CollectionEvent = domain.CollectionEvent
	// CollectionStatus aliases domain.CollectionStatus.
	CollectionStatus = domain.CollectionStatus
	// QualityAttestation aliases domain.QualityAttestation.
	QualityAttestation = domain.QualityAttestation
	// ProcessingRecord aliases domain.ProcessingRecord.
	ProcessingRecord = domain.ProcessingRecord
	// ProductBatch aliases domain.ProductBatch.
	ProductBatch = domain.ProductBatch
	// ZoneYield aliases domain.ZoneYield.
	ZoneYield = domain.ZoneYield
	// ApprovedZone aliases domain.ApprovedZone.
	ApprovedZone = domain.ApprovedZone
	// ZoneUpdate aliases domain.ZoneUpdate.
	ZoneUpdate = domain.ZoneUpdate
	// RecallNotice aliases domain.RecallNotice.
	RecallNotice = domain.RecallNotice
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// Identifier prefixes per stage namespace.
const (
	prefixCollection = "EVT"
	prefixQuality    = "TEST"
	prefixProcessing = "PROC"
	prefixBatch      = "BATCH"
	prefixRecall     = "RECALL"
	prefixZoneUpdate = "ZUPD"
)

// CellKey derives the quantized-cell accumulator key from a coordinate pair.
// Coordinates are truncated to a 0.01 degree grid.
func CellKey(lat, long float64) string {
	return fmt.Sprintf("ZONE_YIELD_%d_%d", int(math.Trunc(lat*100)), int(math.Trunc(long*100)))
}

// QuantizeCell returns the truncated cell-corner coordinates for a point.
func QuantizeCell(lat, long float64) (float64, float64) {
	return math.Trunc(lat*100) / 100, math.Trunc(long*100) / 100
}

type memoryState struct {
	collections  map[string]CollectionEvent
	attestations map[string]QualityAttestation
	processing   map[string]ProcessingRecord
	batches      map[string]ProductBatch
	zoneYields   map[string]ZoneYield
	zones        map[string]ApprovedZone
	recalls      map[string]RecallNotice
	zoneUpdates  map[string]ZoneUpdate
	sequence     uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Collections  map[string]CollectionEvent    `json:"collections"`
	Attestations map[string]QualityAttestation `json:"attestations"`
	Processing   map[string]ProcessingRecord   `json:"processing"`
	Batches      map[string]ProductBatch       `json:"batches"`
	ZoneYields   map[string]ZoneYield          `json:"zone_yields"`
	Zones        map[string]ApprovedZone       `json:"zones"`
	Recalls      map[string]RecallNotice       `json:"recalls"`
	ZoneUpdates  map[string]ZoneUpdate         `json:"zone_updates"`
	Sequence     uint64                        `json:"sequence"`
}

func newMemoryState() memoryState {
	return memoryState{
		collections:  make(map[string]CollectionEvent),
		attestations: make(map[string]QualityAttestation),
		processing:   make(map[string]ProcessingRecord),
		batches:      make(map[string]ProductBatch),
		zoneYields:   make(map[string]ZoneYield),
		zones:        make(map[string]ApprovedZone),
		recalls:      make(map[string]RecallNotice),
		zoneUpdates:  make(map[string]ZoneUpdate),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.sequence = s.sequence
	for k, v := range s.collections {
		cloned.collections[k] = v
	}
	for k, v := range s.attestations {
		cloned.attestations[k] = v
	}
	for k, v := range s.processing {
		cloned.processing[k] = v
	}
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.zoneYields {
		cloned.zoneYields[k] = v
	}
	for k, v := range s.zones {
		cloned.zones[k] = v
	}
	for k, v := range s.recalls {
		cloned.recalls[k] = v
	}
	for k, v := range s.zoneUpdates {
		cloned.zoneUpdates[k] = v
	}
	return cloned
}

// cloneBatch deep-copies the embedded provenance snapshot so a committed
// batch can never be mutated through a returned reference.
func cloneBatch(b ProductBatch) ProductBatch {
	cp := b
	cp.Provenance.Steps = make([]domain.ProvenanceStep, len(b.Provenance.Steps))
	for i, step := range b.Provenance.Steps {
		sc := step
		if step.Details != nil {
			sc.Details = make(map[string]string, len(step.Details))
			for k, v := range step.Details {
				sc.Details[k] = v
			}
		}
		cp.Provenance.Steps[i] = sc
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Collections:  make(map[string]CollectionEvent, len(state.collections)),
		Attestations: make(map[string]QualityAttestation, len(state.attestations)),
		Processing:   make(map[string]ProcessingRecord, len(state.processing)),
		Batches:      make(map[string]ProductBatch, len(state.batches)),
		ZoneYields:   make(map[string]ZoneYield, len(state.zoneYields)),
		Zones:        make(map[string]ApprovedZone, len(state.zones)),
		Recalls:      make(map[string]RecallNotice, len(state.recalls)),
		ZoneUpdates:  make(map[string]ZoneUpdate, len(state.zoneUpdates)),
		Sequence:     state.sequence,
	}
	for k, v := range state.collections {
		s.Collections[k] = v
	}
	for k, v := range state.attestations {
		s.Attestations[k] = v
	}
	for k, v := range state.processing {
		s.Processing[k] = v
	}
	for k, v := range state.batches {
		s.Batches[k] = cloneBatch(v)
	}
	for k, v := range state.zoneYields {
		s.ZoneYields[k] = v
	}
	for k, v := range state.zones {
		s.Zones[k] = v
	}
	for k, v := range state.recalls {
		s.Recalls[k] = v
	}
	for k, v := range state.zoneUpdates {
		s.ZoneUpdates[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.sequence = s.Sequence
	for k, v := range s.Collections {
		state.collections[k] = v
	}
	for k, v := range s.Attestations {
		state.attestations[k] = v
	}
	for k, v := range s.Processing {
		state.processing[k] = v
	}
	for k, v := range s.Batches {
		state.batches[k] = cloneBatch(v)
	}
	for k, v := range s.ZoneYields {
		state.zoneYields[k] = v
	}
	for k, v := range s.Zones {
		state.zones[k] = v
	}
	for k, v := range s.Recalls {
		state.recalls[k] = v
	}
	for k, v := range s.ZoneUpdates {
		state.zoneUpdates[k] = v
	}
	return state
}

// Store provides an in-memory transactional store for the trace domain.
// All transactions run under a single write lock, which serializes the
// zone-yield read-modify-write sequence per cell.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

func randSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// nextID mints <prefix>_<sequence>_<random-suffix>. The sequence is part of
// the persisted state, so identifiers stay unique for the lifetime of the
// store and never depend on the wall clock.
func (t *transaction) nextID(prefix string) string {
	t.state.sequence++
	return fmt.Sprintf("%s_%06d_%s", prefix, t.state.sequence, randSuffix())
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// FindCollectionEvent retrieves a collection event by ID from the snapshot.
func (v transactionView) FindCollectionEvent(id string) (CollectionEvent, bool) {
	e, ok := v.state.collections[id]
	return e, ok
}

// FindQualityAttestation retrieves an attestation by ID from the snapshot.
func (v transactionView) FindQualityAttestation(id string) (QualityAttestation, bool) {
	a, ok := v.state.attestations[id]
	return a, ok
}

// FindProcessingRecord retrieves a processing record by ID from the snapshot.
func (v transactionView) FindProcessingRecord(id string) (ProcessingRecord, bool) {
	p, ok := v.state.processing[id]
	return p, ok
}

// FindProductBatch retrieves a batch by ID from the snapshot.
func (v transactionView) FindProductBatch(id string) (ProductBatch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return ProductBatch{}, false
	}
	return cloneBatch(b), true
}

// FindZoneYield retrieves the accumulator record for a cell key.
func (v transactionView) FindZoneYield(cellKey string) (ZoneYield, bool) {
	z, ok := v.state.zoneYields[cellKey]
	return z, ok
}

// ListZoneYields returns all accumulator records, ordered by cell key.
func (v transactionView) ListZoneYields() []ZoneYield {
	out := make([]ZoneYield, 0, len(v.state.zoneYields))
	for _, z := range v.state.zoneYields {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellKey < out[j].CellKey })
	return out
}

// ListApprovedZones returns the configured zones, ordered by name.
func (v transactionView) ListApprovedZones() []ApprovedZone {
	out := make([]ApprovedZone, 0, len(v.state.zones))
	for _, z := range v.state.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListRecallNotices returns all recall notices, ordered by recall ID.
func (v transactionView) ListRecallNotices() []RecallNotice {
	out := make([]RecallNotice, 0, len(v.state.recalls))
	for _, r := range v.state.recalls {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecallID < out[j].RecallID })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The rules engine evaluates the accumulated change set against the
// post-mutation snapshot; any blocking violation aborts the commit, so no
// partial state ever becomes visible.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindCollectionEvent exposes collection lookup within the transaction scope.
func (tx *transaction) FindCollectionEvent(id string) (CollectionEvent, bool) {
	e, ok := tx.state.collections[id]
	return e, ok
}

// FindQualityAttestation exposes attestation lookup within the transaction scope.
func (tx *transaction) FindQualityAttestation(id string) (QualityAttestation, bool) {
	a, ok := tx.state.attestations[id]
	return a, ok
}

// FindProcessingRecord exposes processing lookup within the transaction scope.
func (tx *transaction) FindProcessingRecord(id string) (ProcessingRecord, bool) {
	p, ok := tx.state.processing[id]
	return p, ok
}

// FindProductBatch exposes batch lookup within the transaction scope.
func (tx *transaction) FindProductBatch(id string) (ProductBatch, bool) {
	b, ok := tx.state.batches[id]
	if !ok {
		return ProductBatch{}, false
	}
	return cloneBatch(b), true
}

// CreateCollectionEvent stores a new collection event within the transaction.
func (tx *transaction) CreateCollectionEvent(e CollectionEvent) (CollectionEvent, error) {
	if e.EventID == "" {
		e.EventID = tx.nextID(prefixCollection)
	}
	if _, exists := tx.state.collections[e.EventID]; exists {
		return CollectionEvent{}, domain.Errorf(domain.KindDuplicateIdentifier, "collection event %q already exists", e.EventID)
	}
	if e.Status == "" {
		e.Status = domain.StatusCollected
	}
	if e.QRCode == "" {
		e.QRCode = domain.QRPayload(e.EventID, "collection", e.Timestamp)
	}
	tx.state.collections[e.EventID] = e
	tx.recordChange(Change{Entity: domain.EntityCollection, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateCollectionStatus rewrites the status field of a collection event.
// Only the COLLECTED -> {QUALITY_PASSED, QUALITY_FAILED} transitions are
// permitted; both targets are terminal.
func (tx *transaction) UpdateCollectionStatus(id string, status CollectionStatus) (CollectionEvent, error) {
	before, ok := tx.state.collections[id]
	if !ok {
		return CollectionEvent{}, domain.Errorf(domain.KindCollectionNotFound, "collection event %q not found", id)
	}
	if before.Status != domain.StatusCollected {
		return CollectionEvent{}, domain.Errorf(domain.KindInvalidStatusChange, "collection event %q is already %s", id, before.Status)
	}
	if status != domain.StatusQualityPassed && status != domain.StatusQualityFailed {
		return CollectionEvent{}, domain.Errorf(domain.KindInvalidStatusChange, "collection event %q cannot move to %s", id, status)
	}
	after := before
	after.Status = status
	tx.state.collections[id] = after
	tx.recordChange(Change{Entity: domain.EntityCollection, Action: domain.ActionUpdate, Before: before, After: after})
	return after, nil
}

// CreateQualityAttestation stores a new attestation within the transaction.
func (tx *transaction) CreateQualityAttestation(a QualityAttestation) (QualityAttestation, error) {
	if a.TestID == "" {
		a.TestID = tx.nextID(prefixQuality)
	}
	if _, exists := tx.state.attestations[a.TestID]; exists {
		return QualityAttestation{}, domain.Errorf(domain.KindDuplicateIdentifier, "quality attestation %q already exists", a.TestID)
	}
	if a.QRCode == "" {
		a.QRCode = domain.QRPayload(a.TestID, "quality", a.TestedAt)
	}
	tx.state.attestations[a.TestID] = a
	tx.recordChange(Change{Entity: domain.EntityQuality, Action: domain.ActionCreate, After: a})
	return a, nil
}

// CreateProcessingRecord stores a new processing record within the transaction.
func (tx *transaction) CreateProcessingRecord(p ProcessingRecord) (ProcessingRecord, error) {
	if p.ProcessID == "" {
		p.ProcessID = tx.nextID(prefixProcessing)
	}
	if _, exists := tx.state.processing[p.ProcessID]; exists {
		return ProcessingRecord{}, domain.Errorf(domain.KindDuplicateIdentifier, "processing record %q already exists", p.ProcessID)
	}
	if p.Status == "" {
		p.Status = domain.StatusProcessed
	}
	if p.QRCode == "" {
		p.QRCode = domain.QRPayload(p.ProcessID, "processing", p.ProcessedAt)
	}
	tx.state.processing[p.ProcessID] = p
	tx.recordChange(Change{Entity: domain.EntityProcessing, Action: domain.ActionCreate, After: p})
	return p, nil
}

// CreateProductBatch stores the terminal batch record within the transaction.
func (tx *transaction) CreateProductBatch(b ProductBatch) (ProductBatch, error) {
	if b.BatchID == "" {
		b.BatchID = tx.nextID(prefixBatch)
	}
	if _, exists := tx.state.batches[b.BatchID]; exists {
		return ProductBatch{}, domain.Errorf(domain.KindDuplicateIdentifier, "product batch %q already exists", b.BatchID)
	}
	if b.Status == "" {
		b.Status = domain.StatusManufactured
	}
	if b.QRCode == "" {
		b.QRCode = domain.QRPayload(b.BatchID, "final-product", b.ManufacturedAt)
	}
	b = cloneBatch(b)
	tx.state.batches[b.BatchID] = b
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: b})
	return b, nil
}

// AddZoneYield folds a collection's weight into the quantized-cell
// accumulator. The read-modify-write runs under the store's transaction
// lock, so concurrent collections can never lose an update.
func (tx *transaction) AddZoneYield(lat, long, weight float64, at time.Time) (ZoneYield, error) {
	key := CellKey(lat, long)
	cellLat, cellLong := QuantizeCell(lat, long)
	before, existed := tx.state.zoneYields[key]
	after := ZoneYield{
		CellKey:     key,
		Latitude:    cellLat,
		Longitude:   cellLong,
		TotalWeight: weight,
		LastUpdated: at,
	}
	if existed {
		after.TotalWeight += before.TotalWeight
	}
	tx.state.zoneYields[key] = after
	change := Change{Entity: domain.EntityZoneYield, Action: domain.ActionUpdate, After: after}
	if existed {
		change.Before = before
	} else {
		change.Action = domain.ActionCreate
	}
	tx.recordChange(change)
	return after, nil
}

// PutApprovedZone inserts or replaces a zone definition by name.
func (tx *transaction) PutApprovedZone(z ApprovedZone) error {
	before, existed := tx.state.zones[z.Name]
	tx.state.zones[z.Name] = z
	change := Change{Entity: domain.EntityZone, Action: domain.ActionCreate, After: z}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = before
	}
	tx.recordChange(change)
	return nil
}

// RemoveApprovedZone deletes a zone definition by name.
func (tx *transaction) RemoveApprovedZone(name string) error {
	before, ok := tx.state.zones[name]
	if !ok {
		return domain.Errorf(domain.KindInvalidZoneDefinition, "approved zone %q not found", name)
	}
	delete(tx.state.zones, name)
	tx.recordChange(Change{Entity: domain.EntityZone, Action: domain.ActionDelete, Before: before})
	return nil
}

// AppendZoneUpdate records an administrative zone change entry.
func (tx *transaction) AppendZoneUpdate(u ZoneUpdate) (ZoneUpdate, error) {
	if u.UpdateID == "" {
		u.UpdateID = tx.nextID(prefixZoneUpdate)
	}
	if _, exists := tx.state.zoneUpdates[u.UpdateID]; exists {
		return ZoneUpdate{}, domain.Errorf(domain.KindDuplicateIdentifier, "zone update %q already exists", u.UpdateID)
	}
	tx.state.zoneUpdates[u.UpdateID] = u
	tx.recordChange(Change{Entity: domain.EntityZoneUpdate, Action: domain.ActionCreate, After: u})
	return u, nil
}

// CreateRecallNotice stores a recall overlay record within the transaction.
func (tx *transaction) CreateRecallNotice(r RecallNotice) (RecallNotice, error) {
	if r.RecallID == "" {
		r.RecallID = tx.nextID(prefixRecall)
	}
	if _, exists := tx.state.recalls[r.RecallID]; exists {
		return RecallNotice{}, domain.Errorf(domain.KindDuplicateIdentifier, "recall notice %q already exists", r.RecallID)
	}
	if r.Status == "" {
		r.Status = domain.RecallStatusActive
	}
	tx.state.recalls[r.RecallID] = r
	tx.recordChange(Change{Entity: domain.EntityRecall, Action: domain.ActionCreate, After: r})
	return r, nil
}

// GetCollectionEvent returns a collection event from the committed state.
func (s *Store) GetCollectionEvent(id string) (CollectionEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.collections[id]
	return e, ok
}

// GetQualityAttestation returns an attestation from the committed state.
func (s *Store) GetQualityAttestation(id string) (QualityAttestation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.attestations[id]
	return a, ok
}

// GetProcessingRecord returns a processing record from the committed state.
func (s *Store) GetProcessingRecord(id string) (ProcessingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.processing[id]
	return p, ok
}

// GetProductBatch returns a batch from the committed state.
func (s *Store) GetProductBatch(id string) (ProductBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return ProductBatch{}, false
	}
	return cloneBatch(b), true
}

// GetZoneYield returns the accumulator record for a cell key.
func (s *Store) GetZoneYield(cellKey string) (ZoneYield, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.state.zoneYields[cellKey]
	return z, ok
}

// ListApprovedZones returns the configured zones from the committed state.
func (s *Store) ListApprovedZones() []ApprovedZone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := newTransactionView(&s.state)
	return view.ListApprovedZones()
}

// ListRecallNotices returns all recall notices from the committed state.
func (s *Store) ListRecallNotices() []RecallNotice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := newTransactionView(&s.state)
	return view.ListRecallNotices()
}
