package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"capturecore/internal/infra/persistence/memory"
	"capturecore/internal/infra/persistence/postgres"
	pgstub "capturecore/internal/infra/persistence/postgres/testutil"
	"capturecore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()
	db, _ := pgstub.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	cases := []struct {
		cfg   StorageConfig
		check func(PersistentStore) bool
	}{
		{StorageConfig{}, func(s PersistentStore) bool { _, ok := s.(*memory.Store); return ok }},
		{StorageConfig{Driver: string(StorageMemory)}, func(s PersistentStore) bool { _, ok := s.(*memory.Store); return ok }},
		{StorageConfig{Driver: string(StorageSQLite), SQLitePath: filepath.Join(t.TempDir(), "registry.db")}, func(s PersistentStore) bool { _, ok := s.(*sqlite.Store); return ok }},
		{StorageConfig{Driver: string(StoragePostgres), PostgresDSN: "postgres://stub"}, func(s PersistentStore) bool { _, ok := s.(*postgres.Store); return ok }},
	}
	for _, c := range cases {
		store, err := OpenPersistentStore(ctx, c.cfg)
		if err != nil {
			t.Fatalf("driver %q: %v", c.cfg.Driver, err)
		}
		if !c.check(store) {
			t.Fatalf("driver %q: unexpected store %T", c.cfg.Driver, store)
		}
		_ = store.Close()
	}

	if _, err := OpenPersistentStore(ctx, StorageConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
