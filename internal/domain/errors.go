package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPatientExists indicates a create for an id that is already stored.
	ErrPatientExists = errors.New("patient already exists")
	// ErrPatientNotFound indicates that no record is stored under the id.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrStoreCorrupt indicates persisted data that cannot be decoded.
	ErrStoreCorrupt = errors.New("store corrupt")
	// ErrStoreIO indicates a failure reading or writing the backing storage.
	ErrStoreIO = errors.New("store i/o failure")
)

// FieldError describes a single failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when patient attributes violate a constraint.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StoreError wraps a backend failure. It matches ErrStoreCorrupt or
// ErrStoreIO under errors.Is, depending on Kind.
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// CorruptError reports undecodable persisted data.
func CorruptError(op string, err error) error {
	return &StoreError{Op: op, Kind: ErrStoreCorrupt, Err: err}
}

// IOError reports a read or write failure of the backing storage.
func IOError(op string, err error) error {
	return &StoreError{Op: op, Kind: ErrStoreIO, Err: err}
}
