package nocloud

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kdomanski/iso9660"
)

// isoSeed reads seed files from the root directory of an ISO9660 image.
// The writer mangles names (lowercase, ";1" version suffix), so lookups
// normalize both sides.
type isoSeed struct {
	path string
}

func (s *isoSeed) readFile(name string) ([]byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return nil, fmt.Errorf("open seed image %s: %w", s.path, err)
	}
	root, err := img.RootDir()
	if err != nil {
		return nil, fmt.Errorf("read seed image root: %w", err)
	}
	children, err := root.GetChildren()
	if err != nil {
		return nil, fmt.Errorf("list seed image root: %w", err)
	}

	want := normalizeISOName(name)
	for _, child := range children {
		if child.IsDir() {
			continue
		}
		if normalizeISOName(child.Name()) == want {
			return io.ReadAll(child.Reader())
		}
	}
	return nil, os.ErrNotExist
}

func normalizeISOName(name string) string {
	name = strings.ToLower(name)
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	return name
}
