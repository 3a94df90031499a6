package storage

import (
	"fmt"

	"github.com/jrife/kvbackend/storage/kv"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when an operation addresses
	// a record that does not exist or was deleted
	ErrNotFound = errors.New("record not found")
	// ErrUniqueConstraint is matched by every *UniqueConstraintError
	ErrUniqueConstraint = errors.New("unique constraint violated")
	// ErrInvalidFilter is returned by list operations given an
	// unsupported filter operator, value or sort field
	ErrInvalidFilter = errors.New("invalid filter or sort")
	// ErrInvalidToken is returned for a pagination token that
	// was not issued by List
	ErrInvalidToken = errors.New("invalid pagination token")
	// ErrInvalidRecord is returned for records whose id is not
	// a non-empty string or that cannot be encoded
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidCollection is returned when a single-record
	// operation addresses a wildcard collection
	ErrInvalidCollection = errors.New("operation requires a single collection")
	// ErrReadOnly is returned by mutations of a read-only backend
	ErrReadOnly = errors.New("storage backend is read-only")
	// ErrBackendUnavailable is returned when the KV store fails
	ErrBackendUnavailable = kv.ErrUnavailable
)

// UniqueConstraintError is returned by Create when the
// record id is taken by a live record.
type UniqueConstraintError struct {
	Field string
	// Existing is the record holding the id. It may be nil
	// if that record is still being written.
	Existing Record
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("%s: a record with this %s already exists", ErrUniqueConstraint, e.Field)
}

// Unwrap makes UniqueConstraintError match ErrUniqueConstraint
func (e *UniqueConstraintError) Unwrap() error {
	return ErrUniqueConstraint
}

func wrapError(wrap string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUniqueConstraint),
		errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidRecord),
		errors.Is(err, ErrInvalidCollection),
		errors.Is(err, ErrReadOnly):
		return err
	}

	return errors.Wrap(err, wrap)
}
