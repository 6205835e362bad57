package filestore

import (
	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

const cacheKey = "datasource-cache"

// Cache persists the last successfully resolved datasource's metadata.
type Cache struct {
	store ports.Store
}

func NewCache(store ports.Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) Load() (*domain.CacheRecord, bool, error) {
	raw, ok, err := c.store.Get(cacheKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec domain.CacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeStorageError, "corrupt metadata cache record")
	}
	return &rec, true, nil
}

func (c *Cache) Save(rec domain.CacheRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "cannot encode metadata cache record")
	}
	return c.store.Put(cacheKey, raw)
}

func (c *Cache) Clear() error {
	return c.store.Delete(cacheKey)
}
