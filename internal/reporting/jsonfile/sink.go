package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const SinkTypeJSONFile = "jsonfile"

// Sink appends one JSON event per line to a log file, the format external
// telemetry collectors tail.
type Sink struct {
	mu   sync.Mutex
	path string
}

func NewSink(path string) (*Sink, error) {
	if path == "" {
		return nil, errors.New(errors.CodeConfigValidation, "event log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot create event log directory for %s", path))
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Record(ctx context.Context, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "cannot encode event")
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot open event log %s", s.path))
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, fmt.Sprintf("cannot append to event log %s", s.path))
	}
	return nil
}
