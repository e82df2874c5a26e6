package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"carelytics/internal/adapter/memory"
	"carelytics/internal/app"
	"carelytics/internal/domain"
)

type mockStore struct {
	loadFn func(ctx context.Context) (map[string]domain.Record, error)
	saveFn func(ctx context.Context, patients map[string]domain.Record) error
}

func (m *mockStore) Load(ctx context.Context) (map[string]domain.Record, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return map[string]domain.Record{}, nil
}

func (m *mockStore) Save(ctx context.Context, patients map[string]domain.Record) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, patients)
	}
	return nil
}

type lockingStore struct {
	mockStore
	locked   int
	released int
	lockErr  error
}

func (l *lockingStore) Lock(ctx context.Context) (func() error, error) {
	if l.lockErr != nil {
		return nil, l.lockErr
	}
	l.locked++
	return func() error { l.released++; return nil }, nil
}

func ptr[T any](v T) *T { return &v }

func input(id string, height, weight float64) domain.PatientInput {
	return domain.PatientInput{
		ID:     ptr(id),
		Name:   ptr("John"),
		City:   ptr("Lisbon"),
		Age:    ptr(30),
		Gender: ptr(domain.GenderMale),
		Height: ptr(height),
		Weight: ptr(weight),
	}
}

func seeded() *memory.DB {
	return memory.New(map[string]domain.Record{
		"p1": {Name: "John", City: "Lisbon", Age: 30, Gender: domain.GenderMale, Height: 1.75, Weight: 70},
		"p2": {Name: "Jane", City: "Porto", Age: 41, Gender: domain.GenderFemale, Height: 1.60, Weight: 50},
	})
}

func TestCreate_RoundTrip(t *testing.T) {
	svc := app.NewPatientService(memory.New(nil), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, input("p1", 1.75, 70))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "p1" {
		t.Fatalf("unexpected id %q", p.ID)
	}

	all, err := svc.ViewAll(ctx)
	if err != nil {
		t.Fatalf("ViewAll: %v", err)
	}
	got, ok := all["p1"]
	if !ok {
		t.Fatal("created patient missing from view")
	}
	want := domain.PatientView{
		Name: "John", City: "Lisbon", Age: 30, Gender: domain.GenderMale,
		Height: 1.75, Weight: 70, BMI: 22.86, Verdict: domain.VerdictNormal,
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	db := seeded()
	svc := app.NewPatientService(db, nil)
	before, _ := db.Load(context.Background())

	_, err := svc.Create(context.Background(), input("p1", 1.80, 90))
	if !errors.Is(err, domain.ErrPatientExists) {
		t.Fatalf("expected ErrPatientExists, got %v", err)
	}
	after, _ := db.Load(context.Background())
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Fatalf("store changed: %v -> %v", before, after)
	}
	if db.Saves() != 0 {
		t.Fatalf("expected no save, got %d", db.Saves())
	}
}

func TestCreate_Validation(t *testing.T) {
	saved := false
	svc := app.NewPatientService(&mockStore{
		saveFn: func(_ context.Context, _ map[string]domain.Record) error { saved = true; return nil },
	}, nil)

	in := input("p1", 1.75, 70)
	in.Age = ptr(130)
	_, err := svc.Create(context.Background(), in)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if saved {
		t.Fatal("invalid patient was saved")
	}
}

func TestCreate_NilLoadResult(t *testing.T) {
	var saved map[string]domain.Record
	svc := app.NewPatientService(&mockStore{
		loadFn: func(_ context.Context) (map[string]domain.Record, error) { return nil, nil },
		saveFn: func(_ context.Context, p map[string]domain.Record) error { saved = p; return nil },
	}, nil)
	if _, err := svc.Create(context.Background(), input("p1", 1.75, 70)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 saved record, got %d", len(saved))
	}
}

func TestUpdate_Partial(t *testing.T) {
	db := seeded()
	svc := app.NewPatientService(db, nil)
	ctx := context.Background()

	p, err := svc.Update(ctx, "p1", domain.PatientUpdate{Weight: domain.Some(100.0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Age != 30 || p.Gender != domain.GenderMale || p.Height != 1.75 || p.Weight != 100 {
		t.Fatalf("unexpected merged patient: %+v", p)
	}

	all, _ := svc.ViewAll(ctx)
	if all["p1"].BMI != 32.65 || all["p1"].Verdict != domain.VerdictObese {
		t.Fatalf("derived fields not recomputed: %+v", all["p1"])
	}
	if all["p2"].Name != "Jane" || all["p2"].Weight != 50 {
		t.Fatalf("other record touched: %+v", all["p2"])
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := seeded()
	svc := app.NewPatientService(db, nil)

	_, err := svc.Update(context.Background(), "nope", domain.PatientUpdate{Name: domain.Some("X")})
	if !errors.Is(err, domain.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if db.Saves() != 0 {
		t.Fatalf("expected no save, got %d", db.Saves())
	}
}

func TestUpdate_ValidationLeavesStore(t *testing.T) {
	db := seeded()
	svc := app.NewPatientService(db, nil)

	_, err := svc.Update(context.Background(), "p1", domain.PatientUpdate{Gender: domain.Some(domain.Gender("robot"))})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	all, _ := svc.ViewAll(context.Background())
	if all["p1"].Gender != domain.GenderMale {
		t.Fatalf("gender changed to %q", all["p1"].Gender)
	}
}

func TestDelete(t *testing.T) {
	db := seeded()
	svc := app.NewPatientService(db, nil)
	ctx := context.Background()

	if err := svc.Delete(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := svc.ViewAll(ctx)
	if _, ok := all["p1"]; ok {
		t.Fatal("p1 still present")
	}
	if len(all) != 1 || all["p2"].Name != "Jane" {
		t.Fatalf("unexpected remaining records: %+v", all)
	}

	if err := svc.Delete(ctx, "p1"); !errors.Is(err, domain.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	loadErr := domain.CorruptError("load", errors.New("unexpected EOF"))
	svc := app.NewPatientService(&mockStore{
		loadFn: func(_ context.Context) (map[string]domain.Record, error) { return nil, loadErr },
	}, nil)
	if _, err := svc.ViewAll(context.Background()); !errors.Is(err, domain.ErrStoreCorrupt) {
		t.Fatalf("expected ErrStoreCorrupt, got %v", err)
	}

	saveErr := domain.IOError("save", errors.New("disk full"))
	svc = app.NewPatientService(&mockStore{
		saveFn: func(_ context.Context, _ map[string]domain.Record) error { return saveErr },
	}, nil)
	if _, err := svc.Create(context.Background(), input("p1", 1.75, 70)); !errors.Is(err, domain.ErrStoreIO) {
		t.Fatalf("expected ErrStoreIO, got %v", err)
	}
}

func TestLockerIsHeldAcrossCycle(t *testing.T) {
	store := &lockingStore{}
	svc := app.NewPatientService(store, nil)
	store.loadFn = func(_ context.Context) (map[string]domain.Record, error) {
		if store.locked != store.released+1 {
			t.Error("load outside the store lock")
		}
		return map[string]domain.Record{}, nil
	}
	store.saveFn = func(_ context.Context, _ map[string]domain.Record) error {
		if store.locked != store.released+1 {
			t.Error("save outside the store lock")
		}
		return nil
	}

	if _, err := svc.Create(context.Background(), input("p1", 1.75, 70)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.locked != 1 || store.released != 1 {
		t.Fatalf("expected one lock/release, got %d/%d", store.locked, store.released)
	}

	store.lockErr = errors.New("timeout")
	if _, err := svc.ViewAll(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	// The service mutex must have been released after the failed lock.
	store.lockErr = nil
	if _, err := svc.ViewAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConcurrentCreatesKeepEveryWrite(t *testing.T) {
	db := memory.New(nil)
	svc := app.NewPatientService(db, nil)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(context.Background(), input(fmt.Sprintf("p%d", i), 1.7, 65)); err != nil {
				t.Errorf("create p%d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	all, _ := svc.ViewAll(context.Background())
	if len(all) != n {
		t.Fatalf("expected %d records, got %d", n, len(all))
	}
}

func TestCheck(t *testing.T) {
	db := memory.New(map[string]domain.Record{
		"ok":  {Name: "John", City: "Lisbon", Age: 30, Gender: domain.GenderMale, Height: 1.75, Weight: 70},
		"old": {Name: "Ana", City: "Braga", Age: 130, Gender: domain.GenderFemale, Height: 1.6, Weight: 55},
		"bad": {Name: "Rui", City: "Faro", Age: 20, Gender: "unknown", Height: 0, Weight: 55},
	})
	svc := app.NewPatientService(db, nil)

	report, err := svc.Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected total 3, got %d", report.Total)
	}
	if len(report.Invalid) != 2 || report.Invalid[0].ID != "bad" || report.Invalid[1].ID != "old" {
		t.Fatalf("unexpected invalid list: %+v", report.Invalid)
	}
}
