package domain

import (
	"context"
	"time"
)

// Transaction exposes the registry mutations a persistence implementation
// must support within an atomic scope. Returned records are copies.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreatePatient(Patient) (Patient, error)
	CreateSession(Session) (Session, error)
	UpdateSession(id string, mutator func(*Session) error) (Session, error)
	CreateChunk(AudioChunk) (AudioChunk, error)
	UpdateChunk(id string, mutator func(*AudioChunk) error) (AudioChunk, error)
	FindPatient(id string) (Patient, bool)
	FindSession(id string) (Session, bool)
	FindChunk(id string) (AudioChunk, bool)
}

// TransactionView provides read-only access to registry state. List results
// are in insertion order.
type TransactionView interface {
	ListPatients() []Patient
	ListSessions() []Session
	ListSessionsForPatient(patientID string) []Session
	FindPatient(id string) (Patient, bool)
	FindSession(id string) (Session, bool)
	FindChunk(id string) (AudioChunk, bool)
}

// PersistentStore is the abstraction over registry backends. Implementations
// serialize RunInTransaction calls; a failed fn leaves state untouched.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
