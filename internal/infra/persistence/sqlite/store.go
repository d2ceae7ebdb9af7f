// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics and snapshots the full state after every successful
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"herbtrace/internal/infra/persistence/memory"
	"herbtrace/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "herbtrace.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{
	"collections",
	"attestations",
	"processing",
	"batches",
	"zone_yields",
	"zones",
	"recalls",
	"zone_updates",
	"sequence",
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case "collections":
			if err := json.Unmarshal(r.payload, &snapshot.Collections); err != nil {
				return fmt.Errorf("decode collections: %w", err)
			}
		case "attestations":
			if err := json.Unmarshal(r.payload, &snapshot.Attestations); err != nil {
				return fmt.Errorf("decode attestations: %w", err)
			}
		case "processing":
			if err := json.Unmarshal(r.payload, &snapshot.Processing); err != nil {
				return fmt.Errorf("decode processing: %w", err)
			}
		case "batches":
			if err := json.Unmarshal(r.payload, &snapshot.Batches); err != nil {
				return fmt.Errorf("decode batches: %w", err)
			}
		case "zone_yields":
			if err := json.Unmarshal(r.payload, &snapshot.ZoneYields); err != nil {
				return fmt.Errorf("decode zone_yields: %w", err)
			}
		case "zones":
			if err := json.Unmarshal(r.payload, &snapshot.Zones); err != nil {
				return fmt.Errorf("decode zones: %w", err)
			}
		case "recalls":
			if err := json.Unmarshal(r.payload, &snapshot.Recalls); err != nil {
				return fmt.Errorf("decode recalls: %w", err)
			}
		case "zone_updates":
			if err := json.Unmarshal(r.payload, &snapshot.ZoneUpdates); err != nil {
				return fmt.Errorf("decode zone_updates: %w", err)
			}
		case "sequence":
			seq, err := strconv.ParseUint(string(r.payload), 10, 64)
			if err != nil {
				return fmt.Errorf("decode sequence: %w", err)
			}
			snapshot.Sequence = seq
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "collections":
			data, err = json.Marshal(snapshot.Collections)
		case "attestations":
			data, err = json.Marshal(snapshot.Attestations)
		case "processing":
			data, err = json.Marshal(snapshot.Processing)
		case "batches":
			data, err = json.Marshal(snapshot.Batches)
		case "zone_yields":
			data, err = json.Marshal(snapshot.ZoneYields)
		case "zones":
			data, err = json.Marshal(snapshot.Zones)
		case "recalls":
			data, err = json.Marshal(snapshot.Recalls)
		case "zone_updates":
			data, err = json.Marshal(snapshot.ZoneUpdates)
		case "sequence":
			data = []byte(strconv.FormatUint(snapshot.Sequence, 10))
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
