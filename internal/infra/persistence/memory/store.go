// Package memory provides an in-memory implementation of the registry
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"capturecore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Patient aliases domain.Patient.
	Patient = domain.Patient
	// Session aliases domain.Session.
	Session = domain.Session
	// AudioChunk aliases domain.AudioChunk.
	AudioChunk = domain.AudioChunk
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	patients     map[string]Patient
	patientOrder []string
	sessions     map[string]Session
	sessionOrder []string
	chunks       map[string]AudioChunk
	chunkOrder   []string
}

// Snapshot captures a point-in-time clone of the store state. Slices keep insertion order.
type Snapshot struct {
	Patients []Patient    `json:"patients"`
	Sessions []Session    `json:"sessions"`
	Chunks   []AudioChunk `json:"chunks"`
}

func newMemoryState() memoryState {
	return memoryState{
		patients: make(map[string]Patient),
		sessions: make(map[string]Session),
		chunks:   make(map[string]AudioChunk),
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		patients:     make(map[string]Patient, len(s.patients)),
		patientOrder: append([]string(nil), s.patientOrder...),
		sessions:     make(map[string]Session, len(s.sessions)),
		sessionOrder: append([]string(nil), s.sessionOrder...),
		chunks:       make(map[string]AudioChunk, len(s.chunks)),
		chunkOrder:   append([]string(nil), s.chunkOrder...),
	}
	for k, v := range s.patients {
		cp.patients[k] = v
	}
	for k, v := range s.sessions {
		cp.sessions[k] = domain.CloneSession(v)
	}
	for k, v := range s.chunks {
		cp.chunks[k] = domain.CloneChunk(v)
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Patients: make([]Patient, 0, len(state.patientOrder)),
		Sessions: make([]Session, 0, len(state.sessionOrder)),
		Chunks:   make([]AudioChunk, 0, len(state.chunkOrder)),
	}
	for _, id := range state.patientOrder {
		s.Patients = append(s.Patients, state.patients[id])
	}
	for _, id := range state.sessionOrder {
		s.Sessions = append(s.Sessions, domain.CloneSession(state.sessions[id]))
	}
	for _, id := range state.chunkOrder {
		s.Chunks = append(s.Chunks, domain.CloneChunk(state.chunks[id]))
	}
	return s
}

// memoryStateFromSnapshot rebuilds state; duplicate ids keep their first position.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, p := range s.Patients {
		if _, ok := state.patients[p.ID]; !ok {
			state.patientOrder = append(state.patientOrder, p.ID)
		}
		state.patients[p.ID] = p
	}
	for _, sess := range s.Sessions {
		if _, ok := state.sessions[sess.ID]; !ok {
			state.sessionOrder = append(state.sessionOrder, sess.ID)
		}
		state.sessions[sess.ID] = domain.CloneSession(sess)
	}
	for _, c := range s.Chunks {
		if _, ok := state.chunks[c.ID]; !ok {
			state.chunkOrder = append(state.chunkOrder, c.ID)
		}
		state.chunks[c.ID] = domain.CloneChunk(c)
	}
	return state
}

// Store provides an in-memory transactional store for the registry.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
	idFn  func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/ConfirmedAt stamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithIDGenerator overrides the random suffix generator for new identifiers.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
		idFn:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID(entity domain.EntityType) string {
	return entity.IDPrefix() + s.idFn()
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

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return s.RunInTransactionWithPersist(ctx, fn, nil)
}

// RunInTransactionWithPersist is RunInTransaction with a persist step that
// receives the candidate state after fn succeeds. The live state is replaced
// only when persist also returns nil. persist runs under the write lock.
func (s *Store) RunInTransactionWithPersist(_ context.Context, fn func(tx Transaction) error, persist func(Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if persist != nil {
		if err := persist(snapshotFromMemoryState(tx.state)); err != nil {
			return err
		}
	}
	s.state = tx.state
	return nil
}

// View executes fn against the current state under a read lock.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(transactionView{state: &s.state})
}

type transaction struct {
	store *Store
	state memoryState
	now   time.Time
}

type transactionView struct {
	state *memoryState
}

// ListPatients returns all patients in insertion order.
func (v transactionView) ListPatients() []Patient {
	out := make([]Patient, 0, len(v.state.patientOrder))
	for _, id := range v.state.patientOrder {
		out = append(out, v.state.patients[id])
	}
	return out
}

// ListSessions returns all sessions in insertion order.
func (v transactionView) ListSessions() []Session {
	out := make([]Session, 0, len(v.state.sessionOrder))
	for _, id := range v.state.sessionOrder {
		out = append(out, domain.CloneSession(v.state.sessions[id]))
	}
	return out
}

// ListSessionsForPatient returns the patient's sessions in insertion order.
func (v transactionView) ListSessionsForPatient(patientID string) []Session {
	out := make([]Session, 0)
	for _, id := range v.state.sessionOrder {
		sess := v.state.sessions[id]
		if sess.PatientID == patientID {
			out = append(out, domain.CloneSession(sess))
		}
	}
	return out
}

func (v transactionView) FindPatient(id string) (Patient, bool) {
	p, ok := v.state.patients[id]
	return p, ok
}

func (v transactionView) FindSession(id string) (Session, bool) {
	sess, ok := v.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return domain.CloneSession(sess), true
}

func (v transactionView) FindChunk(id string) (AudioChunk, bool) {
	c, ok := v.state.chunks[id]
	if !ok {
		return AudioChunk{}, false
	}
	return domain.CloneChunk(c), true
}

func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: &tx.state}
}

func (tx *transaction) FindPatient(id string) (Patient, bool) {
	return tx.Snapshot().FindPatient(id)
}

func (tx *transaction) FindSession(id string) (Session, bool) {
	return tx.Snapshot().FindSession(id)
}

func (tx *transaction) FindChunk(id string) (AudioChunk, bool) {
	return tx.Snapshot().FindChunk(id)
}

// CreatePatient stores a new patient, generating an id when empty.
func (tx *transaction) CreatePatient(p Patient) (Patient, error) {
	if p.ID == "" {
		p.ID = tx.store.newID(domain.EntityPatient)
	}
	if _, exists := tx.state.patients[p.ID]; exists {
		return Patient{}, fmt.Errorf("patient %q already exists", p.ID)
	}
	tx.state.patients[p.ID] = p
	tx.state.patientOrder = append(tx.state.patientOrder, p.ID)
	return p, nil
}

// CreateSession stores a new session for an existing patient.
func (tx *transaction) CreateSession(sess Session) (Session, error) {
	if _, ok := tx.state.patients[sess.PatientID]; !ok {
		return Session{}, domain.ErrNotFound{Entity: domain.EntityPatient, ID: sess.PatientID}
	}
	if sess.ID == "" {
		sess.ID = tx.store.newID(domain.EntitySession)
	}
	if _, exists := tx.state.sessions[sess.ID]; exists {
		return Session{}, fmt.Errorf("session %q already exists", sess.ID)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = tx.now
	}
	sess = domain.CloneSession(sess)
	tx.state.sessions[sess.ID] = sess
	tx.state.sessionOrder = append(tx.state.sessionOrder, sess.ID)
	return domain.CloneSession(sess), nil
}

// UpdateSession mutates a session. The id and owning patient cannot change.
func (tx *transaction) UpdateSession(id string, mutator func(*Session) error) (Session, error) {
	current, ok := tx.state.sessions[id]
	if !ok {
		return Session{}, domain.ErrNotFound{Entity: domain.EntitySession, ID: id}
	}
	updated := domain.CloneSession(current)
	if err := mutator(&updated); err != nil {
		return Session{}, err
	}
	updated.ID = id
	updated.PatientID = current.PatientID
	tx.state.sessions[id] = domain.CloneSession(updated)
	return domain.CloneSession(updated), nil
}

// CreateChunk stores a new chunk for an existing session.
func (tx *transaction) CreateChunk(c AudioChunk) (AudioChunk, error) {
	if _, ok := tx.state.sessions[c.SessionID]; !ok {
		return AudioChunk{}, domain.ErrNotFound{Entity: domain.EntitySession, ID: c.SessionID}
	}
	if c.ID == "" {
		c.ID = tx.store.newID(domain.EntityChunk)
	}
	if _, exists := tx.state.chunks[c.ID]; exists {
		return AudioChunk{}, fmt.Errorf("chunk %q already exists", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = tx.now
	}
	tx.state.chunks[c.ID] = domain.CloneChunk(c)
	tx.state.chunkOrder = append(tx.state.chunkOrder, c.ID)
	return domain.CloneChunk(c), nil
}

// UpdateChunk mutates a chunk. The id and owning session cannot change.
func (tx *transaction) UpdateChunk(id string, mutator func(*AudioChunk) error) (AudioChunk, error) {
	current, ok := tx.state.chunks[id]
	if !ok {
		return AudioChunk{}, domain.ErrNotFound{Entity: domain.EntityChunk, ID: id}
	}
	updated := domain.CloneChunk(current)
	if err := mutator(&updated); err != nil {
		return AudioChunk{}, err
	}
	updated.ID = id
	updated.SessionID = current.SessionID
	tx.state.chunks[id] = domain.CloneChunk(updated)
	return domain.CloneChunk(updated), nil
}

// Now returns the transaction timestamp.
func (tx *transaction) Now() time.Time { return tx.now }
