package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

func TestStubDBStoresAndQueriesBuckets(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	for _, b := range []string{"sessions", "patients"} {
		_, err := conn.ExecContext(ctx, "INSERT INTO state (bucket, payload) VALUES ($1,$2) ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload", []driver.NamedValue{
			{Value: b},
			{Value: []byte(`{"` + b + `":true}`)},
		})
		if err != nil {
			t.Fatalf("ExecContext insert %s: %v", b, err)
		}
	}
	if payload, ok := conn.Bucket("patients"); !ok || string(payload) != `{"patients":true}` {
		t.Fatalf("unexpected patients bucket %q %v", payload, ok)
	}
	if _, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS state (bucket TEXT PRIMARY KEY, payload BYTEA)", nil); err != nil {
		t.Fatalf("ExecContext ddl: %v", err)
	}
	if len(conn.Execs) != 3 {
		t.Fatalf("expected 3 recorded statements, got %d", len(conn.Execs))
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "patients" {
		t.Fatalf("expected buckets in sorted order, got %v", dest[0])
	}
	_ = rows.Next(dest)
	if err := rows.Next(dest); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestStubDBFailureSwitches(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing, conn.FailExec, conn.FailQuery, conn.FailBegin = true, true, true, true

	if err := conn.Ping(ctx); err == nil {
		t.Fatal("expected ping failure")
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO state VALUES ($1,$2)", nil); err == nil {
		t.Fatal("expected exec failure")
	}
	if _, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil); err == nil {
		t.Fatal("expected query failure")
	}
	if _, err := conn.Begin(); err == nil {
		t.Fatal("expected begin failure")
	}

	conn.FailQuery = false
	if _, err := conn.QueryContext(ctx, "SELECT id FROM sessions", nil); err == nil {
		t.Fatal("expected unsupported query error")
	}

	conn.FailBegin = false
	conn.FailCommit = true
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatal("expected commit failure")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
}
