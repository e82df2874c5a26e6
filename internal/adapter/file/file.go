// Package file implements the patient store as a single JSON document on
// disk. The document is read in full on every load and replaced in full on
// every save.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"carelytics/internal/domain"
)

const lockRetryDelay = 10 * time.Millisecond

// Store is a JSON-file backed domain.PatientStore.
type Store struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	log         *zap.Logger
}

// Ensure interfaces are met.
var (
	_ domain.PatientStore = (*Store)(nil)
	_ domain.Locker       = (*Store)(nil)
)

// New returns a store persisting to path. Lock gives up after lockTimeout;
// zero waits until the caller's context is done.
func New(path string, lockTimeout time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: lockTimeout,
		log:         log,
	}
}

// Path returns the data file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the whole document. A missing file is an empty store.
func (s *Store) Load(ctx context.Context) (map[string]domain.Record, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]domain.Record{}, nil
	}
	if err != nil {
		return nil, domain.IOError("load "+s.path, err)
	}

	var patients map[string]domain.Record
	if err := json.Unmarshal(b, &patients); err != nil {
		return nil, domain.CorruptError("load "+s.path, err)
	}
	if patients == nil {
		return nil, domain.CorruptError("load "+s.path, errors.New("top-level value is not an object"))
	}
	return patients, nil
}

// Save replaces the whole document. The new content is written to a temporary
// file in the same directory and renamed over the old one, so a crash leaves
// either the old or the new document in place.
func (s *Store) Save(ctx context.Context, patients map[string]domain.Record) error {
	if patients == nil {
		patients = map[string]domain.Record{}
	}
	b, err := json.MarshalIndent(patients, "", "  ")
	if err != nil {
		return domain.IOError("save "+s.path, err)
	}
	b = append(b, '\n')

	if err := s.ensureDir(); err != nil {
		return domain.IOError("save "+s.path, err)
	}
	if err := renameio.WriteFile(s.path, b, 0o644); err != nil {
		return domain.IOError("save "+s.path, err)
	}
	return nil
}

// Lock takes an exclusive advisory lock on a sidecar file so that processes
// sharing the document serialize their read-modify-write cycles.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if err := s.ensureDir(); err != nil {
		return nil, domain.IOError("lock "+s.lock.Path(), err)
	}
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	start := time.Now()
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, domain.IOError("lock "+s.lock.Path(), err)
	}
	if !ok {
		return nil, domain.IOError("lock "+s.lock.Path(), errors.New("lock not acquired"))
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		s.log.Info("waited for store lock", zap.String("path", s.lock.Path()), zap.Duration("waited", waited))
	}
	return s.lock.Unlock, nil
}

func (s *Store) ensureDir() error {
	return os.MkdirAll(filepath.Dir(s.path), 0o755)
}
