package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"capturecore/internal/blob"
	"capturecore/internal/infra/persistence/memory"
	"capturecore/pkg/domain"
)

// Service coordinates the registry store and chunk blob storage.
type Service struct {
	store         PersistentStore
	blobs         blob.Store
	clock         Clock
	logger        Logger
	metrics       MetricsRecorder
	tracer        Tracer
	directUploads bool
	presignExpiry time.Duration
}

// NewService constructs a service over store and blobs.
func NewService(store PersistentStore, blobs blob.Store, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:         store,
		blobs:         blobs,
		clock:         o.clock,
		logger:        o.logger,
		metrics:       o.metrics,
		tracer:        o.tracer,
		directUploads: o.directUploads,
		presignExpiry: o.presignExpiry,
	}
}

// NewInMemoryService wires a service to in-memory registry and blob stores.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), blob.NewMemory(), opts...)
}

// Store returns the registry store.
func (s *Service) Store() PersistentStore { return s.store }

// Blobs returns the chunk blob store.
func (s *Service) Blobs() blob.Store { return s.blobs }

func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			s.logger.Error("operation failed", "operation", operation, "error", err)
		} else {
			s.logger.Debug("operation rejected", "operation", operation, "error", err)
		}
	}
	return err
}

// CreateSession opens a recording session for an existing patient.
func (s *Service) CreateSession(ctx context.Context, patientID string) (Session, error) {
	var created Session
	err := s.run(ctx, "CreateSession", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateSession(Session{PatientID: patientID})
			return err
		})
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("session created", "session_id", created.ID, "patient_id", patientID)
	return created, nil
}

// RequestUploadSlot registers a new, not yet uploaded chunk for sessionID and
// returns where its bytes should be sent. baseURL is the externally visible
// service root used to build the callback address.
func (s *Service) RequestUploadSlot(ctx context.Context, sessionID, baseURL string) (UploadSlot, error) {
	var slot UploadSlot
	err := s.run(ctx, "RequestUploadSlot", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			chunk, err := tx.CreateChunk(AudioChunk{SessionID: sessionID})
			if err != nil {
				return err
			}
			slot, err = s.slotFor(ctx, chunk.ID, baseURL)
			return err
		})
	})
	if err != nil {
		return UploadSlot{}, err
	}
	s.logger.Info("upload slot issued", "session_id", sessionID, "chunk_id", slot.ChunkID, "direct", slot.Direct)
	return slot, nil
}

func (s *Service) slotFor(ctx context.Context, chunkID, baseURL string) (UploadSlot, error) {
	if s.directUploads {
		signed, err := s.blobs.PresignURL(ctx, ChunkKey(chunkID), blob.SignedURLOptions{
			Method:      http.MethodPut,
			Expiry:      s.presignExpiry,
			ContentType: ChunkContentType,
		})
		switch {
		case err == nil:
			return UploadSlot{URL: signed, ChunkID: chunkID, Direct: true}, nil
		case !errors.Is(err, blob.ErrUnsupported):
			return UploadSlot{}, fmt.Errorf("presign chunk %s: %w", chunkID, err)
		}
	}
	return UploadSlot{URL: CallbackURL(baseURL, chunkID), ChunkID: chunkID}, nil
}

// CallbackURL is the service address that accepts bytes for chunkID.
func CallbackURL(baseURL, chunkID string) string {
	return strings.TrimRight(baseURL, "/") + ChunkPathPrefix + chunkID
}

// StoreChunkBytes writes the payload for a known chunk, replacing earlier
// content. The chunk stays unconfirmed.
func (s *Service) StoreChunkBytes(ctx context.Context, chunkID string, r io.Reader) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "StoreChunkBytes", func(ctx context.Context) error {
		if err := s.requireChunk(ctx, chunkID); err != nil {
			return err
		}
		var err error
		info, err = s.blobs.Put(ctx, ChunkKey(chunkID), r, blob.PutOptions{ContentType: ChunkContentType})
		if err != nil {
			return fmt.Errorf("store chunk %s: %w", chunkID, err)
		}
		return nil
	})
	if err != nil {
		return blob.Info{}, err
	}
	if rec, ok := s.metrics.(ChunkBytesRecorder); ok {
		rec.AddChunkBytes(info.Size)
	}
	s.logger.Info("chunk bytes stored", "chunk_id", chunkID, "size_bytes", info.Size, "driver", string(s.blobs.Driver()))
	return info, nil
}

// ChunkBytes opens the stored payload of a chunk.
func (s *Service) ChunkBytes(ctx context.Context, chunkID string) (blob.Info, io.ReadCloser, error) {
	var (
		info blob.Info
		rc   io.ReadCloser
	)
	err := s.run(ctx, "ChunkBytes", func(ctx context.Context) error {
		if err := s.requireChunk(ctx, chunkID); err != nil {
			return err
		}
		var err error
		info, rc, err = s.blobs.Get(ctx, ChunkKey(chunkID))
		if errors.Is(err, blob.ErrNotFound) {
			return domain.ErrNotFound{Entity: domain.EntityChunk, ID: chunkID}
		}
		return err
	})
	if err != nil {
		return blob.Info{}, nil, err
	}
	return info, rc, nil
}

// ChunkInfo returns the stored payload metadata of a chunk without opening it.
func (s *Service) ChunkInfo(ctx context.Context, chunkID string) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "ChunkInfo", func(ctx context.Context) error {
		if err := s.requireChunk(ctx, chunkID); err != nil {
			return err
		}
		var err error
		info, err = s.blobs.Head(ctx, ChunkKey(chunkID))
		if errors.Is(err, blob.ErrNotFound) {
			return domain.ErrNotFound{Entity: domain.EntityChunk, ID: chunkID}
		}
		return err
	})
	if err != nil {
		return blob.Info{}, err
	}
	return info, nil
}

func (s *Service) requireChunk(ctx context.Context, chunkID string) error {
	return s.store.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindChunk(chunkID); !ok {
			return domain.ErrNotFound{Entity: domain.EntityChunk, ID: chunkID}
		}
		return nil
	})
}

// ConfirmChunkUploaded marks a chunk uploaded and appends it to its session's
// chunk list. Repeated confirmations append again.
func (s *Service) ConfirmChunkUploaded(ctx context.Context, sessionID, chunkID string) (Session, error) {
	var updated Session
	err := s.run(ctx, "ConfirmChunkUploaded", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindSession(sessionID); !ok {
				return domain.ErrNotFound{Entity: domain.EntitySession, ID: sessionID}
			}
			chunk, ok := tx.FindChunk(chunkID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityChunk, ID: chunkID}
			}
			if chunk.SessionID != sessionID {
				return domain.ErrOwnershipMismatch{ChunkID: chunkID, SessionID: sessionID, OwnerSessionID: chunk.SessionID}
			}
			now := tx.Now()
			if _, err := tx.UpdateChunk(chunkID, func(c *AudioChunk) error {
				c.Uploaded = true
				if c.ConfirmedAt == nil {
					c.ConfirmedAt = &now
				}
				return nil
			}); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateSession(sessionID, func(sess *Session) error {
				sess.ChunkIDs = append(sess.ChunkIDs, chunkID)
				return nil
			})
			return err
		})
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("chunk marked as uploaded", "session_id", sessionID, "chunk_id", chunkID, "chunks", len(updated.ChunkIDs))
	return updated, nil
}

// ListPatients returns every patient in insertion order. userID is accepted
// for API compatibility and does not filter.
func (s *Service) ListPatients(ctx context.Context, userID string) ([]Patient, error) {
	var patients []Patient
	err := s.run(ctx, "ListPatients", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			patients = v.ListPatients()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("patients listed", "user_id", userID, "count", len(patients))
	return patients, nil
}

// AddPatient registers a patient under a generated id.
func (s *Service) AddPatient(ctx context.Context, name string) (Patient, error) {
	var created Patient
	err := s.run(ctx, "AddPatient", func(ctx context.Context) error {
		if name == "" {
			return domain.ErrInvalidArgument{Field: "name", Reason: "required"}
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreatePatient(Patient{Name: name})
			return err
		})
	})
	if err != nil {
		return Patient{}, err
	}
	s.logger.Info("patient added", "patient_id", created.ID)
	return created, nil
}

// ListSessionsForPatient returns the patient's sessions in insertion order.
func (s *Service) ListSessionsForPatient(ctx context.Context, patientID string) ([]Session, error) {
	var sessions []Session
	err := s.run(ctx, "ListSessionsForPatient", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			if _, ok := v.FindPatient(patientID); !ok {
				return domain.ErrNotFound{Entity: domain.EntityPatient, ID: patientID}
			}
			sessions = v.ListSessionsForPatient(patientID)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
