package core

import (
	"context"
	"fmt"

	"capturecore/internal/infra/persistence/memory"
	"capturecore/internal/infra/persistence/postgres"
	"capturecore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete registry persistence implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process lifetime only (default)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects the registry backend.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore builds the registry backend named by cfg.Driver.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, opts ...memory.Option) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageMemory)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(opts...), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath, opts...)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
