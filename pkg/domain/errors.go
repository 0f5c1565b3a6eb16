package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies registry failures for transport adapters.
type ErrorKind string

const (
	// KindUnknown covers infrastructure failures that are not caller mistakes.
	KindUnknown ErrorKind = "unknown"
	// KindInvalidArgument marks a missing or empty required field.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindNotFound marks an unknown patient, session or chunk id.
	KindNotFound ErrorKind = "not_found"
	// KindOwnershipMismatch marks a chunk confirmed against the wrong session.
	KindOwnershipMismatch ErrorKind = "ownership_mismatch"
)

// ErrNotFound reports an unknown identifier.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ErrInvalidArgument reports a missing or malformed request field.
type ErrInvalidArgument struct {
	Field  string
	Reason string
}

func (e ErrInvalidArgument) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrOwnershipMismatch reports a chunk that belongs to a different session.
type ErrOwnershipMismatch struct {
	ChunkID        string
	SessionID      string
	OwnerSessionID string
}

func (e ErrOwnershipMismatch) Error() string {
	return fmt.Sprintf("chunk %q belongs to session %q, not %q", e.ChunkID, e.OwnerSessionID, e.SessionID)
}

// KindOf classifies err, looking through wrapped errors.
func KindOf(err error) ErrorKind {
	var (
		notFound ErrNotFound
		invalid  ErrInvalidArgument
		mismatch ErrOwnershipMismatch
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &invalid):
		return KindInvalidArgument
	case errors.As(err, &mismatch):
		return KindOwnershipMismatch
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err (or anything it wraps) is an ErrNotFound for entity.
// An empty entity matches any ErrNotFound.
func IsNotFound(err error, entity EntityType) bool {
	var nf ErrNotFound
	if !errors.As(err, &nf) {
		return false
	}
	return entity == "" || nf.Entity == entity
}
