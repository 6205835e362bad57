package ports

import "github.com/olivierlemasle/cloud-init/internal/core/domain"

// Store is flat key-value persistence on durable local storage. Put must
// be atomic (write-new-then-rename) so a crash mid-write never exposes a
// torn record to concurrent readers.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

type SemaphoreStore interface {
	Get(key string) (*domain.SemaphoreRecord, bool, error)
	Put(key string, rec domain.SemaphoreRecord) error
	List() ([]domain.SemaphoreRecord, error)
	// Reset drops every record; it backs the external clean operation
	// and is never called during a normal boot.
	Reset() error
}

type MetadataCache interface {
	Load() (*domain.CacheRecord, bool, error)
	Save(rec domain.CacheRecord) error
	Clear() error
}
