package uistate

import (
	"context"
	"sync"
	"time"

	"faultline-go/internal/constants"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/storage"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Persister durably writes one slot value.
type Persister interface {
	Persist(ctx context.Context, key string, value any) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, key string, value any) error

// Persist calls f.
func (f PersisterFunc) Persist(ctx context.Context, key string, value any) error {
	return f(ctx, key, value)
}

// BackendPersister stores values as JSON in a storage backend.
func BackendPersister(b storage.Backend) Persister {
	return PersisterFunc(func(ctx context.Context, key string, value any) error {
		ctx, cancel := context.WithTimeout(ctx, constants.StorageTimeout)
		defer cancel()
		return storage.SetJSON(ctx, b, key, value)
	})
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.PersistInitialInterval
	b.MaxInterval = constants.PersistMaxInterval
	b.MaxElapsedTime = constants.PersistMaxElapsed
	b.RandomizationFactor = 0.1
	return b
}

// keyLocks serializes writes per storage key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// persistSlot writes value in the background and commits version on the
// slot once the write settles. A write already overtaken by a newer commit
// is skipped. A write that keeps failing is committed anyway so the visible
// value never rolls back; the failure is only logged.
func persistSlot[T any](s *Store, key string, slot *Slot[T], version uint64, value T) {
	if s.persister == nil {
		slot.Commit(version, value)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lock := s.locks.get(key)
		lock.Lock()
		defer lock.Unlock()

		if slot.Superseded(version) {
			monitoring.StatePersistTotal.WithLabelValues(key, "skipped").Inc()
			return
		}

		start := time.Now()
		attempts := 0
		err := backoff.Retry(func() error {
			attempts++
			return s.persister.Persist(s.ctx, key, value)
		}, backoff.WithContext(s.newBackOff(), s.ctx))
		monitoring.StatePersistTotal.WithLabelValues(key, monitoring.ResultLabel(err)).Inc()
		if err != nil {
			log.WithFields(log.Fields{
				"key":      key,
				"version":  version,
				"attempts": attempts,
				"elapsed":  time.Since(start).String(),
			}).WithError(err).Warn("ui state persistence failed")
		}
		slot.Commit(version, value)
	}()
}
