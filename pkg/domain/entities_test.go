package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestIDPrefix(t *testing.T) {
	for entity, want := range map[EntityType]string{
		EntityPatient: "patient-",
		EntitySession: "session-",
		EntityChunk:   "chunk-",
	} {
		if got := entity.IDPrefix(); got != want {
			t.Fatalf("%s prefix: got %q want %q", entity, got, want)
		}
	}
}

func TestCloneSessionIsDeep(t *testing.T) {
	orig := Session{ID: "session-1", PatientID: "patient-1", ChunkIDs: []string{"chunk-1"}}
	cp := CloneSession(orig)
	cp.ChunkIDs[0] = "chunk-x"
	if orig.ChunkIDs[0] != "chunk-1" {
		t.Fatalf("clone shares chunk slice with original")
	}
	for _, in := range [][]string{nil, {}} {
		empty := CloneSession(Session{ID: "session-2", ChunkIDs: in})
		if empty.ChunkIDs == nil || len(empty.ChunkIDs) != 0 {
			t.Fatalf("clone of %#v: expected non-nil empty chunk list, got %#v", in, empty.ChunkIDs)
		}
		data, err := json.Marshal(empty)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !strings.Contains(string(data), `"chunkIds":[]`) {
			t.Fatalf("expected empty chunk array in %s", data)
		}
	}
}

func TestCloneChunkCopiesConfirmation(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	orig := AudioChunk{ID: "chunk-1", SessionID: "session-1", Uploaded: true, ConfirmedAt: &at}
	cp := CloneChunk(orig)
	*cp.ConfirmedAt = at.Add(time.Hour)
	if !orig.ConfirmedAt.Equal(at) {
		t.Fatalf("clone shares confirmation time with original")
	}
	if CloneChunk(AudioChunk{ID: "chunk-2"}).ConfirmedAt != nil {
		t.Fatalf("unconfirmed chunk gained a confirmation time")
	}
	if ClonePatient(Patient{ID: "p", Name: "n"}) != (Patient{ID: "p", Name: "n"}) {
		t.Fatalf("patient clone differs")
	}
}
