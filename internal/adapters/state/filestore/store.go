package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olivierlemasle/cloud-init/internal/errors"
)

// Store persists flat key-value records as individual files under a
// directory. Writes go to a temp file in the same directory and are
// renamed into place, so a concurrent reader (e.g. a status tool running
// mid-boot) never observes a torn record and a crash mid-write leaves the
// prior state intact.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New(errors.CodeConfigValidation, "store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot create store directory %s", dir))
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, encodeKey(key)+".json")
}

// encodeKey keeps keys usable as file names. Keys are opaque strings and
// may contain path separators.
func encodeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", string(filepath.Separator), "_")
	return replacer.Replace(key)
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot read record %s", key))
	}
	return data, true, nil
}

func (s *Store) Put(key string, value []byte) error {
	target := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "cannot create temp file for atomic write")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot write record %s", key))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot sync record %s", key))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot close record %s", key))
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot replace record %s", key))
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot delete record %s", key))
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "cannot list store directory")
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}
