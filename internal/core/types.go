// Package core implements the session and patient registry: the operations
// that create recording sessions, hand out chunk upload slots, store chunk
// bytes and confirm uploads, plus the small patient directory.
package core

import "capturecore/pkg/domain"

type (
	// Patient aliases domain.Patient.
	Patient = domain.Patient
	// Session aliases domain.Session.
	Session = domain.Session
	// AudioChunk aliases domain.AudioChunk.
	AudioChunk = domain.AudioChunk
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)

// UploadSlot is the destination handed to a client for one audio chunk.
type UploadSlot struct {
	URL     string `json:"url"`
	ChunkID string `json:"chunkId"`
	// Direct is true when URL is a presigned object store address rather
	// than the service's own chunk endpoint.
	Direct bool `json:"-"`
}

// ChunkContentType is recorded for every stored chunk payload.
const ChunkContentType = "audio/wav"

// ChunkPathPrefix is the service route that accepts chunk bytes.
const ChunkPathPrefix = "/v1/audio-chunk/"

// ChunkKey maps a chunk id to its blob key.
func ChunkKey(chunkID string) string {
	return chunkID + ".wav"
}
