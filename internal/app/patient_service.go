// Package app holds the application services and business logic.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"carelytics/internal/domain"
)

// PatientService encapsulates the patient record use cases. Every mutation is
// a single load -> mutate -> save cycle run under one lock, so concurrent
// requests cannot lose each other's writes.
type PatientService struct {
	store domain.PatientStore
	log   *zap.Logger
	mu    sync.Mutex
}

// NewPatientService creates a PatientService backed by the given store.
func NewPatientService(store domain.PatientStore, log *zap.Logger) *PatientService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PatientService{store: store, log: log}
}

// ViewAll returns every stored patient keyed by id, with derived fields.
func (s *PatientService) ViewAll(ctx context.Context) (map[string]domain.PatientView, error) {
	patients, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.PatientView, len(patients))
	for id, r := range patients {
		out[id] = r.View()
	}
	return out, nil
}

// Create validates in and inserts it. It fails with ErrPatientExists when the
// id is already stored, leaving the store untouched.
func (s *PatientService) Create(ctx context.Context, in domain.PatientInput) (domain.Patient, error) {
	p, err := domain.ValidateFull(in)
	if err != nil {
		return domain.Patient{}, err
	}
	err = s.mutate(ctx, func(patients map[string]domain.Record) error {
		if _, ok := patients[p.ID]; ok {
			return fmt.Errorf("create %q: %w", p.ID, domain.ErrPatientExists)
		}
		patients[p.ID] = p.Record
		return nil
	})
	if err != nil {
		return domain.Patient{}, err
	}
	s.log.Info("patient created", zap.String("id", p.ID))
	return p, nil
}

// Update merges u into the stored record and re-validates the result. It
// fails with ErrPatientNotFound when the id is absent.
func (s *PatientService) Update(ctx context.Context, id string, u domain.PatientUpdate) (domain.Patient, error) {
	var updated domain.Patient
	err := s.mutate(ctx, func(patients map[string]domain.Record) error {
		r, ok := patients[id]
		if !ok {
			return fmt.Errorf("update %q: %w", id, domain.ErrPatientNotFound)
		}
		p, err := domain.MergeUpdate(domain.Patient{ID: id, Record: r}, u)
		if err != nil {
			return err
		}
		patients[id] = p.Record
		updated = p
		return nil
	})
	if err != nil {
		return domain.Patient{}, err
	}
	s.log.Info("patient updated", zap.String("id", id))
	return updated, nil
}

// Delete removes the record stored under id. It fails with
// ErrPatientNotFound when the id is absent.
func (s *PatientService) Delete(ctx context.Context, id string) error {
	err := s.mutate(ctx, func(patients map[string]domain.Record) error {
		if _, ok := patients[id]; !ok {
			return fmt.Errorf("delete %q: %w", id, domain.ErrPatientNotFound)
		}
		delete(patients, id)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("patient deleted", zap.String("id", id))
	return nil
}

// Invalid is a stored record that no longer satisfies the constraints.
type Invalid struct {
	ID  string
	Err error
}

// CheckReport summarizes a pass over the whole store.
type CheckReport struct {
	Total   int
	Invalid []Invalid
}

// Check loads the store and re-validates every record, returning the ids
// that fail in sorted order.
func (s *PatientService) Check(ctx context.Context) (CheckReport, error) {
	patients, err := s.load(ctx)
	if err != nil {
		return CheckReport{}, err
	}
	report := CheckReport{Total: len(patients)}
	for id, r := range patients {
		if _, err := domain.ValidateFull(domain.Patient{ID: id, Record: r}.Input()); err != nil {
			report.Invalid = append(report.Invalid, Invalid{ID: id, Err: err})
		}
	}
	sort.Slice(report.Invalid, func(i, j int) bool {
		return report.Invalid[i].ID < report.Invalid[j].ID
	})
	return report, nil
}

func (s *PatientService) load(ctx context.Context) (map[string]domain.Record, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.store.Load(ctx)
}

// mutate runs fn against a freshly loaded mapping and saves the result only
// when fn succeeds.
func (s *PatientService) mutate(ctx context.Context, fn func(map[string]domain.Record) error) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	patients, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if patients == nil {
		patients = make(map[string]domain.Record)
	}
	if err := fn(patients); err != nil {
		return err
	}
	return s.store.Save(ctx, patients)
}

func (s *PatientService) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	l, ok := s.store.(domain.Locker)
	if !ok {
		return s.mu.Unlock, nil
	}
	release, err := l.Lock(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := release(); err != nil {
			s.log.Warn("release store lock", zap.Error(err))
		}
		s.mu.Unlock()
	}, nil
}
