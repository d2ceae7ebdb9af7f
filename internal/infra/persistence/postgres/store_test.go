package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"herbtrace/pkg/domain"
)

// Stub driver recording every statement so snapshot persistence can be
// asserted without a live server.

type stubConn struct {
	execs   []string
	execErr error
	closes  int
}

type stubConnector struct{ conn *stubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return stubDriverConn{c.conn}, nil }

func (c stubConnector) Driver() driver.Driver { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubDriverConn{&stubConn{}}, nil }

type stubDriverConn struct{ rec *stubConn }

func (c stubDriverConn) Prepare(query string) (driver.Stmt, error) {
	return &stubStmt{rec: c.rec, query: query}, nil
}

func (c stubDriverConn) Close() error {
	if c.rec != nil {
		c.rec.closes++
	}
	return nil
}

func (stubDriverConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error { return nil }

func (stubTx) Rollback() error { return nil }

type stubStmt struct {
	rec   *stubConn
	query string
}

func (s *stubStmt) Close() error { return nil }

func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) Exec([]driver.Value) (driver.Result, error) {
	if s.rec.execErr != nil {
		return nil, s.rec.execErr
	}
	s.rec.execs = append(s.rec.execs, s.query)
	return driver.RowsAffected(1), nil
}

func (s *stubStmt) Query([]driver.Value) (driver.Rows, error) {
	return emptyRows{cols: []string{"bucket", "payload"}}, nil
}

type emptyRows struct{ cols []string }

func (r emptyRows) Columns() []string { return r.cols }

func (r emptyRows) Close() error { return nil }

func (r emptyRows) Next([]driver.Value) error { return io.EOF }

func openStub(t *testing.T) (*stubConn, func()) {
	t.Helper()
	conn := &stubConn{}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.OpenDB(stubConnector{conn: conn}), nil
	})
	return conn, restore
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.execs)
	}
}

func TestNewStoreClosesHandleOnSetupFailure(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()
	conn.execErr = errors.New("relation cannot be created")

	if _, err := NewStore("", nil); err == nil {
		t.Fatalf("expected setup failure")
	}
	if conn.closes == 0 {
		t.Fatalf("expected the db handle to be closed on failure")
	}
}

func TestRunInTransactionPersistsBuckets(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateCollectionEvent(domain.CollectionEvent{
			Species:   "Ashwagandha",
			Weight:    25,
			Latitude:  27.0,
			Longitude: 75.9,
			Timestamp: time.Date(2024, time.November, 5, 8, 0, 0, 0, time.UTC),
		})
		return e
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	var upserts int
	for _, stmt := range conn.execs {
		if strings.Contains(stmt, "INSERT INTO state") {
			upserts++
		}
	}
	if upserts != len(postgresBuckets) {
		t.Fatalf("expected %d bucket upserts, got %d", len(postgresBuckets), upserts)
	}
	if _, ok := store.GetCollectionEvent(""); ok {
		t.Fatalf("empty id lookup should miss")
	}
}
