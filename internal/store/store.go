// Package store defines the persistence contract the migration engine
// writes through, plus the typed write-error taxonomy adapters must emit.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is a single row as exchanged with the store.
type Record = map[string]any

// ErrNotFound is returned by FindFirst when no row matches.
var ErrNotFound = errors.New("store: not found")

// UpsertPayload carries one write: Where selects the row by primary key,
// Update applies when the row exists, Create when it does not.
type UpsertPayload struct {
	Where  map[string]any
	Update map[string]any
	Create map[string]any
}

// UpsertResult reports the written row and whether it was newly created.
type UpsertResult struct {
	Record  Record
	Created bool
}

// Store is the contract consumed by the engine. Implementations must be safe
// for concurrent use; Transact serializes a function against a transaction
// scope that commits on nil and rolls back on error.
type Store interface {
	FindFirst(ctx context.Context, model string, where map[string]any) (Record, error)
	FindMany(ctx context.Context, model string, where map[string]any) ([]Record, error)
	Upsert(ctx context.Context, model string, p UpsertPayload) (UpsertResult, error)
	Transact(ctx context.Context, fn func(tx Store) error) error
}

// WriteErrorKind classifies a failed write.
type WriteErrorKind int

const (
	// WriteUnknown is any failure the adapter cannot classify. It aborts the
	// containing batch.
	WriteUnknown WriteErrorKind = iota
	// WriteOverflow means a numeric column could not hold the value.
	WriteOverflow
	// WriteTypeMismatch means a string value was rejected for a numeric
	// column. FieldTypes carries the expected type per field when the
	// adapter could extract it.
	WriteTypeMismatch
)

func (k WriteErrorKind) String() string {
	switch k {
	case WriteOverflow:
		return "overflow"
	case WriteTypeMismatch:
		return "type-mismatch"
	default:
		return "unknown"
	}
}

// FieldType is the numeric representation a column expects.
type FieldType int

const (
	FieldInt FieldType = iota
	FieldFloat
	FieldDecimal
)

// WriteError is the stable contract between a store adapter and the
// recovery executor. Adapters populate FieldTypes on a best-effort basis;
// an empty map on a type mismatch means the metadata could not be
// extracted and recovery gives up.
type WriteError struct {
	Kind       WriteErrorKind
	Model      string
	FieldTypes map[string]FieldType
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store: %s write on %s: %v", e.Kind, e.Model, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// AsWriteError unwraps err into a WriteError, if it is one.
func AsWriteError(err error) (*WriteError, bool) {
	var we *WriteError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
