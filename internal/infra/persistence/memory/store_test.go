package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"capturecore/pkg/domain"
)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%d", n)
	}
}

func fixedClock() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestCreatePatientGeneratesPrefixedID(t *testing.T) {
	store := NewStore(WithIDGenerator(sequentialIDs()))
	var created Patient
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreatePatient(Patient{Name: "Alice"})
		return err
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if created.ID != "patient-1" {
		t.Fatalf("unexpected id %q", created.ID)
	}
}

func TestCreatePatientRejectsDuplicateID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	create := func() error {
		return store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.CreatePatient(Patient{ID: "patient-1", Name: "John Doe"})
			return err
		})
	}
	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestCreateSessionRequiresPatient(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateSession(Session{PatientID: "missing"})
		return err
	})
	if !domain.IsNotFound(err, domain.EntityPatient) {
		t.Fatalf("expected patient not found, got %v", err)
	}
}

func TestCreateChunkRequiresSession(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateChunk(AudioChunk{SessionID: "missing"})
		return err
	})
	if !domain.IsNotFound(err, domain.EntitySession) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreatePatient(Patient{Name: "Alice"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = store.View(ctx, func(v TransactionView) error {
		if n := len(v.ListPatients()); n != 0 {
			t.Fatalf("expected no patients after rollback, got %d", n)
		}
		return nil
	})
}

func TestPersistFailureLeavesStateUntouched(t *testing.T) {
	store := NewStore(WithIDGenerator(sequentialIDs()))
	ctx := context.Background()
	writeErr := errors.New("disk full")
	var persisted Snapshot
	err := store.RunInTransactionWithPersist(ctx, func(tx Transaction) error {
		_, err := tx.CreatePatient(Patient{Name: "Alice"})
		return err
	}, func(snap Snapshot) error {
		persisted = snap
		return writeErr
	})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected persist error, got %v", err)
	}
	if len(persisted.Patients) != 1 || persisted.Patients[0].Name != "Alice" {
		t.Fatalf("persist saw unexpected candidate %#v", persisted.Patients)
	}
	if n := len(store.ExportState().Patients); n != 0 {
		t.Fatalf("expected no patients after failed persist, got %d", n)
	}

	err = store.RunInTransactionWithPersist(ctx, func(tx Transaction) error {
		_, err := tx.CreatePatient(Patient{Name: "Bob"})
		return err
	}, func(Snapshot) error { return nil })
	if err != nil {
		t.Fatalf("persisted transaction: %v", err)
	}
	if got := store.ExportState().Patients; len(got) != 1 || got[0].Name != "Bob" {
		t.Fatalf("unexpected patients %#v", got)
	}
}

func TestSessionLifecycleAndOrdering(t *testing.T) {
	store := NewStore(WithIDGenerator(sequentialIDs()), WithClock(fixedClock()))
	ctx := context.Background()
	var alice, bob Patient
	var s1, s2, s3 Session
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		if alice, err = tx.CreatePatient(Patient{Name: "Alice"}); err != nil {
			return err
		}
		if bob, err = tx.CreatePatient(Patient{Name: "Bob"}); err != nil {
			return err
		}
		if s1, err = tx.CreateSession(Session{PatientID: alice.ID}); err != nil {
			return err
		}
		if s2, err = tx.CreateSession(Session{PatientID: bob.ID}); err != nil {
			return err
		}
		s3, err = tx.CreateSession(Session{PatientID: alice.ID})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if s1.ChunkIDs == nil || len(s1.ChunkIDs) != 0 {
		t.Fatalf("expected empty chunk list, got %#v", s1.ChunkIDs)
	}
	if !s1.CreatedAt.Equal(fixedClock()()) {
		t.Fatalf("expected createdAt from clock, got %v", s1.CreatedAt)
	}

	_ = store.View(ctx, func(v TransactionView) error {
		patients := v.ListPatients()
		if len(patients) != 2 || patients[0].ID != alice.ID || patients[1].ID != bob.ID {
			t.Fatalf("patients not in insertion order: %#v", patients)
		}
		sessions := v.ListSessionsForPatient(alice.ID)
		if len(sessions) != 2 || sessions[0].ID != s1.ID || sessions[1].ID != s3.ID {
			t.Fatalf("unexpected alice sessions: %#v", sessions)
		}
		if got := v.ListSessionsForPatient("nobody"); got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", got)
		}
		if len(v.ListSessions()) != 3 {
			t.Fatalf("expected three sessions")
		}
		return nil
	})
	_ = s2
}

func TestUpdateSessionKeepsIdentity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	var sess Session
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		p, err := tx.CreatePatient(Patient{Name: "Alice"})
		if err != nil {
			return err
		}
		sess, err = tx.CreateSession(Session{PatientID: p.ID})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateSession(sess.ID, func(s *Session) error {
			s.ID = "hijack"
			s.PatientID = "other"
			s.ChunkIDs = append(s.ChunkIDs, "chunk-1")
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = store.View(ctx, func(v TransactionView) error {
		got, ok := v.FindSession(sess.ID)
		if !ok {
			t.Fatalf("session lost")
		}
		if got.PatientID != sess.PatientID || len(got.ChunkIDs) != 1 {
			t.Fatalf("unexpected session %#v", got)
		}
		if _, ok := v.FindSession("hijack"); ok {
			t.Fatalf("id must not change")
		}
		return nil
	})
}

func TestUpdateUnknownRecordsReturnNotFound(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateChunk("nope", func(*AudioChunk) error { return nil })
		return err
	})
	if !domain.IsNotFound(err, domain.EntityChunk) {
		t.Fatalf("expected chunk not found, got %v", err)
	}
	err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateSession("nope", func(*Session) error { return nil })
		return err
	})
	if !domain.IsNotFound(err, domain.EntitySession) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestExportImportRoundTripPreservesOrder(t *testing.T) {
	src := NewStore(WithIDGenerator(sequentialIDs()))
	ctx := context.Background()
	err := src.RunInTransaction(ctx, func(tx Transaction) error {
		for _, name := range []string{"Zed", "Amy", "Mo"} {
			if _, err := tx.CreatePatient(Patient{Name: name}); err != nil {
				return err
			}
		}
		sess, err := tx.CreateSession(Session{PatientID: "patient-2"})
		if err != nil {
			return err
		}
		c, err := tx.CreateChunk(AudioChunk{SessionID: sess.ID})
		if err != nil {
			return err
		}
		_, err = tx.UpdateChunk(c.ID, func(c *AudioChunk) error {
			now := tx.Now()
			c.Uploaded = true
			c.ConfirmedAt = &now
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	dst := NewStore()
	dst.ImportState(src.ExportState())
	snap := dst.ExportState()
	if len(snap.Patients) != 3 || snap.Patients[0].Name != "Zed" || snap.Patients[2].Name != "Mo" {
		t.Fatalf("unexpected patients %#v", snap.Patients)
	}
	if len(snap.Chunks) != 1 || !snap.Chunks[0].Uploaded || snap.Chunks[0].ConfirmedAt == nil {
		t.Fatalf("unexpected chunks %#v", snap.Chunks)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].PatientID != "patient-2" {
		t.Fatalf("unexpected sessions %#v", snap.Sessions)
	}
}

func TestConcurrentTransactionsAreSerialized(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.RunInTransaction(ctx, func(tx Transaction) error {
				_, err := tx.CreatePatient(Patient{Name: "p"})
				return err
			})
		}()
	}
	wg.Wait()
	if n := len(store.ExportState().Patients); n != 50 {
		t.Fatalf("expected 50 patients, got %d", n)
	}
}
