package filestore

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Semaphores is the typed semaphore layer over a Store. Records persist
// across reboots until the store directory is externally reset.
type Semaphores struct {
	store ports.Store
}

func NewSemaphores(store ports.Store) *Semaphores {
	return &Semaphores{store: store}
}

func (s *Semaphores) Get(key string) (*domain.SemaphoreRecord, bool, error) {
	raw, ok, err := s.store.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec domain.SemaphoreRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("corrupt semaphore record %s", key))
	}
	return &rec, true, nil
}

func (s *Semaphores) Put(key string, rec domain.SemaphoreRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot encode semaphore record %s", key))
	}
	return s.store.Put(key, raw)
}

func (s *Semaphores) Reset() error {
	keys, err := s.store.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Semaphores) List() ([]domain.SemaphoreRecord, error) {
	keys, err := s.store.Keys()
	if err != nil {
		return nil, err
	}
	records := make([]domain.SemaphoreRecord, 0, len(keys))
	for _, key := range keys {
		rec, ok, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, *rec)
		}
	}
	return records, nil
}
