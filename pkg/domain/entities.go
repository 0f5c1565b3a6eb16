// Package domain defines the registry entities, error kinds and persistence
// contracts used by capturecore.
package domain

import "time"

// EntityType identifies the type of record stored in the registry.
type EntityType string

// Supported entity type identifiers used in errors and persistence buckets.
const (
	// EntityPatient identifies a patient directory record.
	EntityPatient EntityType = "patient"
	// EntitySession identifies a recording session record.
	EntitySession EntityType = "session"
	// EntityChunk identifies an audio chunk record.
	EntityChunk EntityType = "chunk"
)

// IDPrefix returns the human-readable prefix used for generated identifiers.
func (e EntityType) IDPrefix() string {
	return string(e) + "-"
}

// Patient is an entry in the patient directory. Patients are immutable once created.
type Patient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is a recording session owned by exactly one patient. ChunkIDs lists
// confirmed chunk ids in confirmation order; repeated confirmations repeat ids.
type Session struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	ChunkIDs  []string  `json:"chunkIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// AudioChunk tracks one upload slot through the store-then-confirm handshake.
// Byte storage is not reflected here; only confirmation flips Uploaded.
type AudioChunk struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Uploaded    bool       `json:"uploaded"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// ClonePatient returns a copy of p.
func ClonePatient(p Patient) Patient { return p }

// CloneSession returns a deep copy of s.
func CloneSession(s Session) Session {
	cp := s
	cp.ChunkIDs = append(make([]string, 0, len(s.ChunkIDs)), s.ChunkIDs...)
	return cp
}

// CloneChunk returns a deep copy of c.
func CloneChunk(c AudioChunk) AudioChunk {
	cp := c
	if c.ConfirmedAt != nil {
		t := *c.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return cp
}
