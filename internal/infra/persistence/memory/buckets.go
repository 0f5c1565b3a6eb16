package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by snapshotting backends.
const (
	BucketPatients = "patients"
	BucketSessions = "sessions"
	BucketChunks   = "chunks"
)

// Buckets lists snapshot buckets in persistence order.
var Buckets = []string{BucketPatients, BucketSessions, BucketChunks}

// EncodeBucket marshals one bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketPatients:
		return json.Marshal(s.Patients)
	case BucketSessions:
		return json.Marshal(s.Sessions)
	case BucketChunks:
		return json.Marshal(s.Chunks)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the matching snapshot field.
// Unknown buckets are ignored so older databases keep loading.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketPatients:
		target = &s.Patients
	case BucketSessions:
		target = &s.Sessions
	case BucketChunks:
		target = &s.Chunks
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
