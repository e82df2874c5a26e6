package domain

import "context"

// PatientStore is the port for patient persistence. Implementations read and
// write the whole id -> record mapping; callers own the read-modify-write.
type PatientStore interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, patients map[string]Record) error
}

// Locker is implemented by stores whose backing storage may be shared with
// other processes. Lock blocks until the caller holds exclusive access or ctx
// is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

