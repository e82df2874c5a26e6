// Package memory implements an in-memory patient store for development and
// testing.
package memory

import (
	"context"
	"maps"
	"sync"

	"carelytics/internal/domain"
)

// DB implements an in-memory patient store.
type DB struct {
	mu       sync.Mutex
	patients map[string]domain.Record
	saves    int
}

// New creates a new in-memory store, optionally seeded with patients.
func New(seed map[string]domain.Record) *DB {
	db := &DB{patients: make(map[string]domain.Record, len(seed))}
	maps.Copy(db.patients, seed)
	return db
}

// Ensure interfaces are met.
var _ domain.PatientStore = (*DB)(nil)

// Load returns a copy of the stored mapping.
func (db *DB) Load(ctx context.Context) (map[string]domain.Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return maps.Clone(db.patients), nil
}

// Save replaces the stored mapping with a copy of patients.
func (db *DB) Save(ctx context.Context, patients map[string]domain.Record) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.patients = make(map[string]domain.Record, len(patients))
	maps.Copy(db.patients, patients)
	db.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (db *DB) Saves() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.saves
}
